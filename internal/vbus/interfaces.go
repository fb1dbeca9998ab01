package vbus

// OnChangeFunc decides whether an externally requested change to a
// writeable node is applied. Returning false leaves the node unchanged.
type OnChangeFunc func(path string, value interface{}) bool

// Tree models one device's attribute tree on the bus. Values are ints,
// strings, or booleans encoded as 0/1 ints.
type Tree interface {
	// Register declares one node. It is only valid before PublishTree.
	Register(path string, initial interface{}, writeable bool, onChange OnChangeFunc) error

	// PublishTree makes the whole tree visible at once under the given
	// service name. No partial tree is ever observable.
	PublishTree(serviceName string) error

	ServiceName() string

	Read(path string) (interface{}, bool)

	// Write applies a locally-originated change and notifies the
	// value-changed observer. It does not invoke the node's change hook.
	Write(path string, value interface{}) error

	// RequestChange is the entry point for external writers. It rejects
	// unknown paths, non-writeable nodes and hook rejections.
	RequestChange(path string, value interface{}) bool

	// SetOnValueChanged registers the observer the bus transport uses to
	// propagate value changes to external readers.
	SetOnValueChanged(callback func(path string, value interface{}))
}
