package mqtt

import "errors"

// ErrNotConnected is returned by Publish while the broker connection is
// down. Callers log and drop, commands are not queued.
var ErrNotConnected = errors.New("not connected to MQTT broker")
