package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/virtbus/vswitch2mqtt/internal/configuration"
	"github.com/virtbus/vswitch2mqtt/internal/device"
	"github.com/virtbus/vswitch2mqtt/internal/logger"
	"github.com/virtbus/vswitch2mqtt/internal/mqtt"
	"github.com/virtbus/vswitch2mqtt/internal/supervisor"
	"github.com/virtbus/vswitch2mqtt/internal/vbus"
)

func main() {
	var configFile = flag.String("c", "./config.ini", "path to config file name")
	flag.Parse()

	log := logger.GetLogger("[main]", logger.LogLevelInfo)

	store, err := configuration.Init(*configFile)
	if err != nil {
		log.Error("Configuration initialization error: %v", err)
		os.Exit(1)
	}

	logLevel := logger.ParseLevel(store.Global().LogLevel)

	// A positional device index selects the child role, no argument
	// means this process is the launcher.
	if flag.NArg() > 0 {
		runDeviceService(store, logLevel, flag.Arg(0))
		return
	}

	runSupervisor(store, *configFile, logLevel)
}

func runSupervisor(store configuration.Store, configFile string, logLevel int) {
	log := logger.GetLogger("[supervisor]", logLevel)
	log.Info("Starting virtual switch service launcher.")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := supervisor.New(store, configFile, log).Run(ctx); err != nil {
		log.Error("Supervisor error: %v", err)
		os.Exit(1)
	}

	log.Info("exiting app...")
}

func runDeviceService(store configuration.Store, logLevel int, arg string) {
	deviceIndex, err := strconv.Atoi(arg)
	if err != nil || deviceIndex < 1 {
		logger.GetLogger("[device]", logLevel).Error("Invalid device index argument: %v", arg)
		os.Exit(1)
	}

	log := logger.GetLogger(fmt.Sprintf("[device %d]", deviceIndex), logLevel)
	log.Info("Starting device service process for device %d.", deviceIndex)

	if !store.HasSection(configuration.DeviceSection(deviceIndex)) {
		log.Error("Configuration section '%v' not found. Cannot start.", configuration.DeviceSection(deviceIndex))
		os.Exit(1)
	}

	serial, err := device.ResolveSerial(store, deviceIndex, log)
	if err != nil {
		log.Error("Serial number error: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mqttClient, mqttDisconnect := mqtt.NewClient(store.MQTT(), serial, logLevel)
	defer mqttDisconnect()

	svc, err := device.New(store, deviceIndex, serial, vbus.NewTree(), mqttClient, log)
	if err != nil {
		log.Error("Device service initialization error: %v", err)
		os.Exit(1)
	}

	svc.StartAsync(ctx)
	defer svc.Stop()

	waitForInterruptSignal()

	log.Info("exiting app...")
}

func waitForInterruptSignal() {
	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, os.Interrupt, syscall.SIGTERM)
	defer func() {
		signal.Stop(sigchan)
	}()
	<-sigchan
}
