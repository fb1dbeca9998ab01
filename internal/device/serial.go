package device

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/virtbus/vswitch2mqtt/internal/configuration"
	"github.com/virtbus/vswitch2mqtt/internal/logger"
)

const serialLength = 16

func generateSerial() (string, error) {
	buf := make([]byte, serialLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	for i := range buf {
		buf[i] = '0' + buf[i]%10
	}

	return string(buf), nil
}

// ResolveSerial returns the device serial, generating and persisting one
// when the config has none. A serial that cannot be persisted is an
// error, losing it would change the service name on the next restart.
func ResolveSerial(store configuration.Store, deviceIndex int, log logger.Logger) (string, error) {
	serial := strings.TrimSpace(store.Device(deviceIndex).Serial)
	if serial != "" {
		log.Debug("Using existing serial number '%v' for device %d", serial, deviceIndex)
		return serial, nil
	}

	serial, err := generateSerial()
	if err != nil {
		return "", fmt.Errorf("error generating serial number: %w", err)
	}

	if err := store.SetValue(configuration.DeviceSection(deviceIndex), "Serial", serial); err != nil {
		return "", fmt.Errorf("error persisting serial number: %w", err)
	}

	log.Debug("Generated new serial number '%v' for device %d", serial, deviceIndex)

	return serial, nil
}
