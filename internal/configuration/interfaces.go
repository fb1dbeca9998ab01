package configuration

type Store interface {
	HasSection(name string) bool
	Global() GlobalConfiguration
	MQTT() MqttConfiguration
	Device(index int) DeviceConfiguration
	Outputs(deviceIndex, count int) []OutputConfiguration
	SetValue(section, key, value string) error
}
