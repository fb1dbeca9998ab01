package configuration

import (
	"fmt"
	"os"
	"sync"

	"github.com/gofrs/flock"
	"gopkg.in/ini.v1"
)

const (
	GlobalSection = "Global"
	MqttSection   = "MQTT"

	defaultMqttPort = 1883
)

// DeviceSection returns the config section name for device index i.
func DeviceSection(index int) string {
	return fmt.Sprintf("Device_%d", index)
}

// OutputSection returns the config section name for output j of device i.
func OutputSection(deviceIndex, outputIndex int) string {
	return fmt.Sprintf("Output_%d_%d", deviceIndex, outputIndex)
}

// Init loads the ini config store from filename. A missing or unparsable
// file is an error, the caller treats it as fatal for its own process.
func Init(filename string) (Store, error) {
	if _, err := os.Stat(filename); err != nil {
		return nil, fmt.Errorf("configuration file not found: %w", err)
	}

	file, err := ini.Load(filename)
	if err != nil {
		return nil, fmt.Errorf("error parsing configuration file: %w", err)
	}

	return &store{
		filename: filename,
		file:     file,
		fileLock: flock.New(filename + ".lock"),
	}, nil
}

type store struct {
	filename string
	mu       sync.RWMutex
	file     *ini.File

	// fileLock serializes read-modify-write cycles between sibling
	// device processes sharing the same config file.
	fileLock *flock.Flock
}

func (s *store) HasSection(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := s.file.GetSection(name)
	return err == nil
}

func (s *store) Global() GlobalConfiguration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// GetSection keeps a missing section missing, Section would create it.
	section, err := s.file.GetSection(GlobalSection)
	if err != nil {
		return GlobalConfiguration{}
	}

	numDevices, err := section.Key("NumberOfDevices").Int()
	if err != nil {
		numDevices = 0
	}

	return GlobalConfiguration{
		NumberOfDevices: numDevices,
		LogLevel:        section.Key("LogLevel").String(),
	}
}

func (s *store) MQTT() MqttConfiguration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	section, err := s.file.GetSection(MqttSection)
	if err != nil {
		return MqttConfiguration{Port: defaultMqttPort}
	}

	return MqttConfiguration{
		BrokerAddress: section.Key("BrokerAddress").String(),
		Port:          section.Key("Port").MustInt(defaultMqttPort),
		Username:      section.Key("Username").String(),
		Password:      section.Key("Password").String(),
	}
}

func (s *store) Device(index int) DeviceConfiguration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	section, err := s.file.GetSection(DeviceSection(index))
	if err != nil {
		return DeviceConfiguration{Index: index}
	}

	numSwitches, err := section.Key("NumberOfSwitches").Int()
	if err != nil {
		numSwitches = 0
	}

	return DeviceConfiguration{
		Index:            index,
		DeviceInstance:   section.Key("DeviceInstance").MustInt(0),
		CustomName:       section.Key("CustomName").String(),
		Serial:           section.Key("Serial").String(),
		NumberOfSwitches: numSwitches,
	}
}

func (s *store) Outputs(deviceIndex, count int) []OutputConfiguration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	outputs := make([]OutputConfiguration, 0, count)
	for j := 1; j <= count; j++ {
		output := OutputConfiguration{Index: j}

		if section, err := s.file.GetSection(OutputSection(deviceIndex, j)); err == nil {
			output.CustomName = section.Key("CustomName").String()
			output.Group = section.Key("Group").String()
			output.MqttStateTopic = section.Key("MqttStateTopic").String()
			output.MqttCommandTopic = section.Key("MqttCommandTopic").String()
		}

		outputs = append(outputs, output)
	}

	return outputs
}

func (s *store) SetValue(section, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fileLock.Lock(); err != nil {
		return fmt.Errorf("error locking configuration file: %w", err)
	}
	defer s.fileLock.Unlock()

	// Re-read from disk so writes from sibling processes are not lost.
	file, err := ini.Load(s.filename)
	if err != nil {
		return fmt.Errorf("error re-reading configuration file: %w", err)
	}

	file.Section(section).Key(key).SetValue(value)

	if err := file.SaveTo(s.filename); err != nil {
		return fmt.Errorf("error saving configuration file: %w", err)
	}

	s.file = file

	return nil
}
