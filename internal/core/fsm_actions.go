package core

import (
	"context"

	"github.com/librescoot/librefsm"

	"speed-service/internal/fsm"
	"speed-service/internal/types"
)

// stateIDToSystemState converts a librefsm StateID to types.SystemState
func stateIDToSystemState(id librefsm.StateID) types.SystemState {
	switch id {
	case fsm.StateInit:
		return types.StateInit
	case fsm.StateReady:
		return types.StateReady
	case fsm.StateDriving:
		return types.StateDriving
	case fsm.StateShuttingDown:
		return types.StateShuttingDown
	case fsm.StateStopped:
		return types.StateStopped
	default:
		return types.SystemState(string(id))
	}
}

// initFSM initializes and starts the librefsm machine
func (v *SpeedSystem) initFSM(ctx context.Context) error {
	def := fsm.NewDefinition(v)
	machine, err := def.Build()
	if err != nil {
		return err
	}
	v.machine = machine

	v.machine.OnStateChange(func(from, to librefsm.StateID) {
		newState := stateIDToSystemState(to)
		oldState := stateIDToSystemState(from)

		v.stateMu.Lock()
		v.state = newState
		v.stateMu.Unlock()

		v.logger.Infof("State transition: %s -> %s", oldState, newState)
	})

	if err := v.machine.Start(ctx); err != nil {
		return err
	}

	v.logger.Debugf("librefsm state machine started")
	return nil
}

// sendEvent sends an event to the FSM
func (v *SpeedSystem) sendEvent(event librefsm.EventID) error {
	return v.machine.SendSync(librefsm.Event{ID: event})
}

// === State Entry Actions ===

func (v *SpeedSystem) EnterReady(c *librefsm.Context) error {
	v.setState(types.StateReady)
	v.logger.Infof("Ready for sensor events")
	v.publishSnapshot()
	return nil
}

func (v *SpeedSystem) EnterDriving(c *librefsm.Context) error {
	v.setState(types.StateDriving)
	v.logger.Infof("First sensor event received, driving")
	return nil
}

func (v *SpeedSystem) EnterShuttingDown(c *librefsm.Context) error {
	v.setState(types.StateShuttingDown)

	if v.journal != nil {
		if err := v.journal.Flush(); err != nil {
			v.logger.Warnf("Failed to flush journal: %v", err)
		}
	}
	v.publishSnapshot()
	return nil
}

func (v *SpeedSystem) EnterStopped(c *librefsm.Context) error {
	v.setState(types.StateStopped)
	select {
	case <-v.done:
	default:
		close(v.done)
	}
	return nil
}

// === Transition Actions ===

func (v *SpeedSystem) OnShutdownTimeout(c *librefsm.Context) error {
	v.logger.Infof("Shutdown timeout elapsed, releasing outputs")
	v.clearIndicators()
	return nil
}
