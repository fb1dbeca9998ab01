package supervisor

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/virtbus/vswitch2mqtt/internal/configuration"
	"github.com/virtbus/vswitch2mqtt/internal/logger"
)

const defaultGracefulTimeout = 10 * time.Second

var ErrNoDevices = errors.New("no device processes could be started")

// Supervisor spawns one child process per configured device and tears
// them down on shutdown. Each child is its own fault boundary, a crash
// in one device never affects its siblings.
type Supervisor struct {
	store           configuration.Store
	logger          logger.Logger
	gracefulTimeout time.Duration

	// command builds the child invocation for a device index. The default
	// re-runs the current binary with the index as its sole argument.
	command func(deviceIndex int) *exec.Cmd
}

func New(store configuration.Store, configFile string, log logger.Logger) *Supervisor {
	binary, err := os.Executable()
	if err != nil {
		binary = os.Args[0]
	}

	return &Supervisor{
		store:           store,
		logger:          log,
		gracefulTimeout: defaultGracefulTimeout,
		command: func(deviceIndex int) *exec.Cmd {
			cmd := exec.Command(binary, "-c", configFile, strconv.Itoa(deviceIndex))
			cmd.Stdout = os.Stdout
			cmd.Stderr = os.Stderr
			cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
			return cmd
		},
	}
}

type child struct {
	index int
	cmd   *exec.Cmd
	done  chan struct{}
}

// Run spawns the children and blocks until ctx is cancelled, then
// terminates every live child. It returns ErrNoDevices when not a
// single child could be started.
func (s *Supervisor) Run(ctx context.Context) error {
	numDevices := s.store.Global().NumberOfDevices
	if numDevices < 1 {
		s.logger.Warn("No valid 'NumberOfDevices' found in [Global] section. Defaulting to 1 device.")
		numDevices = 1
	}

	var children []*child

	for i := 1; i <= numDevices; i++ {
		section := configuration.DeviceSection(i)
		if !s.store.HasSection(section) {
			s.logger.Warn("Configuration section '%v' not found. Skipping device %d.", section, i)
			continue
		}

		cmd := s.command(i)
		if err := cmd.Start(); err != nil {
			s.logger.Error("Failed to start process for device %d: %v", i, err)
			continue
		}

		c := &child{index: i, cmd: cmd, done: make(chan struct{})}
		go func() {
			err := cmd.Wait()
			close(c.done)

			select {
			case <-ctx.Done():
				// Shutdown, the exit is expected.
			default:
				if err != nil {
					s.logger.Warn("Process for device %d exited: %v", c.index, err)
				} else {
					s.logger.Warn("Process for device %d exited.", c.index)
				}
			}
		}()

		s.logger.Debug("Started process for virtual device %d (PID: %d)", i, cmd.Process.Pid)
		children = append(children, c)
	}

	if len(children) == 0 {
		return ErrNoDevices
	}

	s.logger.Info("Supervising %d virtual switch device process(es).", len(children))

	<-ctx.Done()

	s.logger.Debug("Terminating all child processes.")
	s.terminate(children)

	return nil
}

// terminate asks every live child to exit and waits, escalating to a
// kill when a child outlives the graceful timeout.
func (s *Supervisor) terminate(children []*child) {
	for _, c := range children {
		select {
		case <-c.done:
			continue
		default:
		}

		if err := c.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			s.logger.Debug("Error signalling process for device %d: %v", c.index, err)
		}
	}

	for _, c := range children {
		select {
		case <-c.done:
		case <-time.After(s.gracefulTimeout):
			s.logger.Warn("Process for device %d did not exit within %v, killing it.", c.index, s.gracefulTimeout)
			if err := c.cmd.Process.Kill(); err != nil {
				s.logger.Debug("Error killing process for device %d: %v", c.index, err)
			}
			<-c.done
		}
	}
}
