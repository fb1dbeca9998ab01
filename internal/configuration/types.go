package configuration

type GlobalConfiguration struct {
	// NumberOfDevices is 0 when the key is absent or unparsable,
	// the caller decides the default.
	NumberOfDevices int
	LogLevel        string
}

type MqttConfiguration struct {
	BrokerAddress string
	Port          int
	Username      string
	Password      string
}

type DeviceConfiguration struct {
	Index          int
	DeviceInstance int
	CustomName     string
	Serial         string
	// NumberOfSwitches is 0 when the key is absent or unparsable.
	NumberOfSwitches int
}

type OutputConfiguration struct {
	Index            int
	CustomName       string
	Group            string
	MqttStateTopic   string
	MqttCommandTopic string
}
