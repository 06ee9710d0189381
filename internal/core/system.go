package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/librescoot/librefsm"
	"github.com/rs/xid"

	"speed-service/internal/fsm"
	"speed-service/internal/hardware"
	"speed-service/internal/journal"
	"speed-service/internal/logger"
	"speed-service/internal/messaging"
	"speed-service/internal/speed"
	"speed-service/internal/types"
)

// ErrNotAccepting is returned for events received outside ready/driving.
var ErrNotAccepting = errors.New("not accepting sensor events")

// SpeedSystem wires the speed controller to its event sources and outputs.
// Messaging, hardware and journal are optional; nil disables them.
type SpeedSystem struct {
	ctrl    *speed.Controller
	redis   MessagingClient
	io      HardwareIO
	journal Journal
	logger  *logger.Logger

	machine *librefsm.Machine
	cancel  context.CancelFunc
	done    chan struct{}
	session string

	// mu serializes Observe and the outputs derived from it. Never held
	// while sending FSM events.
	mu sync.Mutex

	stateMu sync.RWMutex
	state   types.SystemState
}

func NewSpeedSystem(ctrl *speed.Controller, redis MessagingClient, io HardwareIO, jr Journal, l *logger.Logger) *SpeedSystem {
	if l == nil {
		l = logger.Discard()
	}
	return &SpeedSystem{
		ctrl:    ctrl,
		redis:   redis,
		io:      io,
		journal: jr,
		logger:  l,
		done:    make(chan struct{}),
		state:   types.StateInit,
	}
}

func (v *SpeedSystem) Start(ctx context.Context) error {
	v.logger.Infof("Starting speed system (mode=%s, speed=%d, min=%d)",
		v.ctrl.Mode(), v.ctrl.Speed(), v.ctrl.MinSpeed())

	ctx, cancel := context.WithCancel(ctx)
	v.cancel = cancel

	if err := v.initFSM(ctx); err != nil {
		return fmt.Errorf("failed to start state machine: %w", err)
	}

	v.session = xid.New().String()
	if v.journal != nil {
		if err := v.journal.Open(v.ctrl.Mode().String()); err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		v.session = v.journal.Session()
	}
	v.logger.Infof("Session %s", v.session)

	if v.redis != nil {
		v.redis.SetCallbacks(messaging.Callbacks{
			EventCallback: v.HandleEvent,
		})
		if err := v.redis.Connect(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
	}

	if v.io != nil {
		if err := v.io.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize hardware: %w", err)
		}
		for channel := range hardware.SensorEvents {
			v.io.RegisterInputCallback(channel, v.handleSensorInput)
		}
	}

	if err := v.sendEvent(fsm.EvStarted); err != nil {
		return fmt.Errorf("failed to enter ready state: %w", err)
	}

	// Listeners last so no event arrives before ready
	if v.redis != nil {
		if err := v.redis.StartListening(); err != nil {
			return fmt.Errorf("failed to start Redis listeners: %w", err)
		}
	}

	v.logger.Infof("System started successfully")
	return nil
}

// HandleEvent forwards one raw sensor event code to the controller and
// propagates the result. Unknown codes are not errors.
func (v *SpeedSystem) HandleEvent(code int) error {
	state := v.getCurrentState()
	if !state.AcceptsEvents() {
		v.logger.Warnf("Dropping event %d in state %s", code, state)
		return fmt.Errorf("event %d: %w (state %s)", code, ErrNotAccepting, state)
	}
	if state == types.StateReady {
		if err := v.sendEvent(fsm.EvSensorEvent); err != nil {
			v.logger.Warnf("Failed to enter driving state: %v", err)
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	id := speed.EventID(code)
	turboWasUsed := v.ctrl.TurboUsed()
	out := v.ctrl.Observe(id)
	snapshot := v.snapshotLocked()

	description := v.ctrl.Table().Describe(id)
	switch {
	case out.Rejected:
		v.logger.Infof("Event %d (%s): speed %d kept, %d is below minimum %d",
			code, description, out.Before, out.Target, v.ctrl.MinSpeed())
	case out.Applied:
		v.logger.Infof("Event %d (%s): speed %d -> %d", code, description, out.Before, out.After)
	default:
		v.logger.Debugf("Event %d (%s): no change", code, description)
	}

	if v.journal != nil {
		err := v.journal.Record(journal.Entry{
			Event:       code,
			Description: description,
			Before:      out.Before,
			After:       out.After,
			Applied:     out.Applied,
			Rejected:    out.Rejected,
		})
		if err != nil {
			v.logger.Warnf("Failed to journal event %d: %v", code, err)
		}
	}

	v.updateIndicators()

	if v.redis != nil {
		if err := v.redis.PublishSpeed(snapshot); err != nil {
			v.logger.Errorf("Failed to publish speed: %v", err)
		}
		if !turboWasUsed && v.ctrl.TurboUsed() {
			if err := v.redis.ReportTurboUsed(v.session, snapshot.Speed); err != nil {
				v.logger.Errorf("Failed to report emergency turbo: %v", err)
			}
		}
	}
	return nil
}

// handleSensorInput turns a sensor line assertion into its event code.
func (v *SpeedSystem) handleSensorInput(channel string, pressed bool) error {
	if !pressed {
		return nil
	}
	code, ok := hardware.SensorEvents[channel]
	if !ok {
		return fmt.Errorf("no event for sensor channel %s", channel)
	}
	return v.HandleEvent(code)
}

// Snapshot returns the current published view of the controller.
func (v *SpeedSystem) Snapshot() types.Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

func (v *SpeedSystem) snapshotLocked() types.Snapshot {
	active := v.ctrl.ActiveEvents()
	ids := make([]int, len(active))
	for i, id := range active {
		ids[i] = int(id)
	}
	return types.Snapshot{
		Session:      v.session,
		State:        v.getCurrentState(),
		Mode:         v.ctrl.Mode().String(),
		Speed:        v.ctrl.Speed(),
		MinSpeed:     v.ctrl.MinSpeed(),
		ActiveEvents: ids,
		TurboUsed:    v.ctrl.TurboUsed(),
		Timestamp:    time.Now(),
	}
}

// EventTable returns a copy of the controller's table.
func (v *SpeedSystem) EventTable() speed.EventTable {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ctrl.Table()
}

// AcceptingEvents reports whether HandleEvent currently forwards events.
func (v *SpeedSystem) AcceptingEvents() bool {
	return v.getCurrentState().AcceptsEvents()
}

// Done is closed once the service reaches the stopped state.
func (v *SpeedSystem) Done() <-chan struct{} {
	return v.done
}

func (v *SpeedSystem) publishSnapshot() {
	if v.redis == nil {
		return
	}
	if err := v.redis.PublishSpeed(v.Snapshot()); err != nil {
		v.logger.Errorf("Failed to publish speed: %v", err)
	}
}

// Shutdown drives the FSM through shutting-down and releases all outputs.
func (v *SpeedSystem) Shutdown() {
	v.logger.Infof("Shutting down speed system")

	if v.machine != nil {
		switch v.getCurrentState() {
		case types.StateShuttingDown, types.StateStopped:
		default:
			if err := v.sendEvent(fsm.EvShutdown); err != nil {
				v.logger.Warnf("Failed to send shutdown event: %v", err)
			}
		}

		select {
		case <-v.done:
		case <-time.After(fsm.ShutdownTimeout + time.Second):
			v.logger.Warnf("Timeout waiting for stopped state")
		}
	}

	if v.redis != nil {
		if err := v.redis.Close(); err != nil {
			v.logger.Warnf("Failed to close Redis client: %v", err)
		}
	}
	if v.io != nil {
		v.io.Cleanup()
	}
	if v.journal != nil {
		if err := v.journal.Close(); err != nil {
			v.logger.Warnf("Failed to close journal: %v", err)
		}
	}
	if v.cancel != nil {
		v.cancel()
	}
}
