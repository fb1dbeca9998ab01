package device

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/virtbus/vswitch2mqtt/internal/configuration"
	"github.com/virtbus/vswitch2mqtt/internal/logger"
	"github.com/virtbus/vswitch2mqtt/internal/mqtt"
	"github.com/virtbus/vswitch2mqtt/internal/types"
	"github.com/virtbus/vswitch2mqtt/internal/vbus"
)

const updateQueueSize = 16

type service struct {
	deviceConfig configuration.DeviceConfiguration
	outputs      []configuration.OutputConfiguration
	store        configuration.Store
	tree         vbus.Tree
	mqttClient   mqtt.MqttClient
	logger       logger.Logger
	serial       string
	serviceName  string

	stateTopicToPath   map[string]string
	commandTopicByPath map[string]string
	changeTargets      map[string]changeTarget

	updates chan types.StateUpdate
	writes  chan types.BusWriteRequest
	stop    chan struct{}
	done    chan struct{}

	stopOnce sync.Once
}

// New loads device and output configuration for deviceIndex, builds the
// attribute tree, publishes it and subscribes to every configured state
// topic. The serial must already be resolved (see ResolveSerial), it is
// also the MQTT client id.
func New(
	store configuration.Store,
	deviceIndex int,
	serial string,
	tree vbus.Tree,
	mqttClient mqtt.MqttClient,
	log logger.Logger) (Service, error) {

	if !store.HasSection(configuration.DeviceSection(deviceIndex)) {
		return nil, fmt.Errorf("configuration section '%v' not found", configuration.DeviceSection(deviceIndex))
	}

	deviceConfig := store.Device(deviceIndex)

	numSwitches := deviceConfig.NumberOfSwitches
	if numSwitches < 1 {
		log.Warn("No valid 'NumberOfSwitches' found for device %d. Defaulting to 1 switch.", deviceIndex)
		numSwitches = 1
	}

	s := &service{
		deviceConfig:       deviceConfig,
		outputs:            store.Outputs(deviceIndex, numSwitches),
		store:              store,
		tree:               tree,
		mqttClient:         mqttClient,
		logger:             log,
		serial:             serial,
		serviceName:        fmt.Sprintf("%v.virtual_%v", servicePrefix, serial),
		stateTopicToPath:   make(map[string]string),
		commandTopicByPath: make(map[string]string),
		changeTargets:      make(map[string]changeTarget),
		updates:            make(chan types.StateUpdate, updateQueueSize),
		writes:             make(chan types.BusWriteRequest),
		stop:               make(chan struct{}),
		done:               make(chan struct{}),
	}

	if err := s.buildTree(); err != nil {
		return nil, fmt.Errorf("error building attribute tree: %w", err)
	}

	if err := s.tree.PublishTree(s.serviceName); err != nil {
		return nil, fmt.Errorf("error publishing attribute tree: %w", err)
	}

	s.mqttClient.SetMessageCallback(s.onBrokerMessage)
	for topic := range s.stateTopicToPath {
		s.mqttClient.Subscribe(topic)
	}

	log.Info("Service '%v' for device '%v' registered on the bus.", s.serviceName, deviceConfig.CustomName)

	return s, nil
}

func (s *service) buildTree() error {
	regs := []struct {
		path      string
		value     interface{}
		writeable bool
		onChange  vbus.OnChangeFunc
	}{
		{"/Mgmt/ProcessName", processName, false, nil},
		{"/Mgmt/ProcessVersion", processVersion, false, nil},
		{"/Mgmt/Connection", "Virtual", false, nil},
		{"/DeviceInstance", s.deviceConfig.DeviceInstance, false, nil},
		{"/ProductId", productID, false, nil},
		{"/ProductName", productName, false, nil},
		{"/CustomName", s.deviceConfig.CustomName, true, s.handleTreeChange},
		{"/Serial", s.serial, false, nil},
		{"/State", deviceState, false, nil},
		{"/FirmwareVersion", 0, false, nil},
		{"/HardwareVersion", 0, false, nil},
		{"/Connected", 1, false, nil},
	}

	s.changeTargets["/CustomName"] = changeTarget{kind: changeDeviceCustomName}

	for _, output := range s.outputs {
		j := output.Index

		regs = append(regs, []struct {
			path      string
			value     interface{}
			writeable bool
			onChange  vbus.OnChangeFunc
		}{
			{outputPrefix(j) + "/Name", outputName(j), false, nil},
			{outputPrefix(j) + "/Status", 0, false, nil},
			{statePath(j), 0, true, s.handleTreeChange},
			{settingsPath(j, "CustomName"), output.CustomName, true, s.handleTreeChange},
			{settingsPath(j, "Group"), output.Group, true, s.handleTreeChange},
			// Type is writeable but neither bridged nor persisted.
			{settingsPath(j, "Type"), outputType, true, nil},
			{settingsPath(j, "ValidTypes"), outputValidTypes, false, nil},
		}...)

		s.changeTargets[statePath(j)] = changeTarget{kind: changeOutputState, outputIndex: j}
		s.changeTargets[settingsPath(j, "CustomName")] = changeTarget{kind: changeOutputSetting, outputIndex: j, settingKey: "CustomName"}
		s.changeTargets[settingsPath(j, "Group")] = changeTarget{kind: changeOutputSetting, outputIndex: j, settingKey: "Group"}

		if output.MqttStateTopic != "" && output.MqttCommandTopic != "" {
			s.stateTopicToPath[output.MqttStateTopic] = statePath(j)
			s.commandTopicByPath[statePath(j)] = output.MqttCommandTopic
		}
	}

	for _, reg := range regs {
		if err := s.tree.Register(reg.path, reg.value, reg.writeable, reg.onChange); err != nil {
			return err
		}
	}

	return nil
}

func (s *service) StartAsync(ctx context.Context) {
	go s.loop(ctx)
}

func (s *service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

func (s *service) Serial() string {
	return s.serial
}

func (s *service) ServiceName() string {
	return s.serviceName
}

// loop is the single goroutine on which every attribute mutation and
// write decision happens. Both inbound broker updates and external bus
// writes are marshaled onto it as messages.
func (s *service) loop(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case update := <-s.updates:
			s.applyStateUpdate(update)
		case req := <-s.writes:
			req.Reply <- s.processBusWrite(req.Path, req.Value)
		}
	}
}

// onBrokerMessage runs on the MQTT client's delivery goroutine. It only
// decodes and enqueues, the tree is never touched from here.
func (s *service) onBrokerMessage(topic string, message []byte) {
	value, err := decodeStatePayload(message)
	if err != nil {
		s.logger.Warn("Invalid MQTT payload received on '%v': %v. Expected 'on', 'off', '0', or '1'.", topic, err)
		return
	}

	path, ok := s.stateTopicToPath[topic]
	if !ok {
		s.logger.Debug("No state path bound for topic '%v'", topic)
		return
	}

	select {
	case s.updates <- types.StateUpdate{Path: path, Value: value}:
	case <-s.done:
	}
}

func decodeStatePayload(message []byte) (int, error) {
	payload := strings.ToLower(strings.TrimSpace(string(message)))

	switch payload {
	case "on":
		return 1, nil
	case "off":
		return 0, nil
	}

	value, err := strconv.Atoi(payload)
	if err != nil {
		return 0, fmt.Errorf("undecodable state payload %q", payload)
	}
	if value != 0 && value != 1 {
		return 0, fmt.Errorf("state value %d out of range", value)
	}

	return value, nil
}

func (s *service) applyStateUpdate(update types.StateUpdate) {
	current, ok := s.tree.Read(update.Path)
	if ok && current == update.Value {
		s.logger.Debug("State of '%v' is already %v, ignoring redundant MQTT message.", update.Path, update.Value)
		return
	}

	if err := s.tree.Write(update.Path, update.Value); err != nil {
		s.logger.Error("Error writing '%v': %v", update.Path, err)
		return
	}

	s.logger.Debug("Changed '%v' to %v from MQTT.", update.Path, update.Value)
}

// handleTreeChange is the change hook on every writeable bridged or
// persisted path. It is invoked from the bus transport's context and
// hands the request over to the service loop, blocking for the verdict.
func (s *service) handleTreeChange(path string, value interface{}) bool {
	req := types.BusWriteRequest{
		Path:  path,
		Value: value,
		Reply: make(chan bool, 1),
	}

	select {
	case s.writes <- req:
	case <-s.done:
		return false
	}

	select {
	case accepted := <-req.Reply:
		return accepted
	case <-s.done:
		return false
	}
}

func (s *service) processBusWrite(path string, value interface{}) bool {
	target, ok := s.changeTargets[path]
	if !ok {
		s.logger.Warn("Unhandled change request for path: %v", path)
		return false
	}

	switch target.kind {
	case changeOutputState:
		return s.processStateWrite(path, value)
	case changeDeviceCustomName:
		s.persistSetting(configuration.DeviceSection(s.deviceConfig.Index), "CustomName", value)
		return true
	case changeOutputSetting:
		s.persistSetting(configuration.OutputSection(s.deviceConfig.Index, target.outputIndex), target.settingKey, value)
		return true
	}

	return false
}

// processStateWrite forwards an accepted bus state write to the bound
// command topic. Forwarding is best effort: a missing binding or a
// disconnected broker drops the command but still accepts the write.
func (s *service) processStateWrite(path string, value interface{}) bool {
	state, ok := toInt(value)
	if !ok || (state != 0 && state != 1) {
		s.logger.Warn("Invalid state value received for '%v': %v. Expected 0 or 1.", path, value)
		return false
	}

	topic, bound := s.commandTopicByPath[path]
	if !bound {
		s.logger.Warn("No command topic mapped for path: %v", path)
		return true
	}

	payload := "OFF"
	if state == 1 {
		payload = "ON"
	}

	if err := s.mqttClient.Publish(topic, []byte(payload), false); err != nil {
		s.logger.Warn("Cannot publish '%v' to '%v': %v", payload, topic, err)
		return true
	}

	s.logger.Debug("Publish request for '%v' sent to command topic '%v'.", path, topic)

	return true
}

func (s *service) persistSetting(section, key string, value interface{}) {
	str := fmt.Sprintf("%v", value)

	if err := s.store.SetValue(section, key, str); err != nil {
		s.logger.Warn("Failed to save setting '%v' in section '%v': %v", key, section, err)
		return
	}

	s.logger.Debug("Saved setting '%v' in section '%v'.", key, section)
}

func toInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		i := int(v)
		if float64(i) != v {
			return 0, false
		}
		return i, true
	}

	return 0, false
}
