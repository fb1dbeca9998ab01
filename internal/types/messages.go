package types

// StateUpdate is a decoded broker state message on its way to the
// attribute tree. It is handed over as an immutable value, never as
// shared state.
type StateUpdate struct {
	Path  string
	Value int
}

// BusWriteRequest is an externally requested attribute change waiting
// for an accept/reject decision from the device service loop.
type BusWriteRequest struct {
	Path  string
	Value interface{}
	Reply chan bool
}
