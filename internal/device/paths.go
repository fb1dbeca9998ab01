package device

import "fmt"

const (
	servicePrefix  = "com.victronenergy.switch"
	processName    = "vswitch2mqtt"
	processVersion = "0.1.0"

	productID   = 49257
	productName = "Virtual switch"

	// deviceState is the fixed top-level /State value of a virtual device.
	deviceState = 256

	outputType       = 1
	outputValidTypes = 7
)

type changeKind int

const (
	changeOutputState changeKind = iota
	changeDeviceCustomName
	changeOutputSetting
)

// changeTarget classifies one writeable path so the write dispatch is a
// single switch instead of string matching scattered over the handlers.
type changeTarget struct {
	kind        changeKind
	outputIndex int
	settingKey  string
}

func outputPrefix(outputIndex int) string {
	return fmt.Sprintf("/SwitchableOutput/output_%d", outputIndex)
}

func outputName(outputIndex int) string {
	return fmt.Sprintf("Switch %d", outputIndex)
}

func statePath(outputIndex int) string {
	return outputPrefix(outputIndex) + "/State"
}

func settingsPath(outputIndex int, key string) string {
	return outputPrefix(outputIndex) + "/Settings/" + key
}
