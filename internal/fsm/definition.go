package fsm

import (
	"time"

	"github.com/librescoot/librefsm"
)

// ShutdownTimeout bounds how long pending publishes and journal writes get
// before the service reports stopped.
const ShutdownTimeout = 2 * time.Second

// NewDefinition creates the service FSM definition.
func NewDefinition(actions Actions) *librefsm.Definition {
	return librefsm.NewDefinition().
		State(StateInit).
		State(StateReady,
			librefsm.WithOnEnter(actions.EnterReady),
		).
		State(StateDriving,
			librefsm.WithOnEnter(actions.EnterDriving),
		).
		State(StateShuttingDown,
			librefsm.WithTimeout(ShutdownTimeout, EvShutdownTimeout),
			librefsm.WithOnEnter(actions.EnterShuttingDown),
		).
		State(StateStopped,
			librefsm.WithOnEnter(actions.EnterStopped),
		).

		// === Transitions ===
		Transition(StateInit, EvStarted, StateReady).
		Transition(StateInit, EvShutdown, StateShuttingDown).

		// First sensor event starts the drive
		Transition(StateReady, EvSensorEvent, StateDriving).
		Transition(StateReady, EvShutdown, StateShuttingDown).

		Transition(StateDriving, EvShutdown, StateShuttingDown).

		Transition(StateShuttingDown, EvShutdownTimeout, StateStopped,
			librefsm.WithAction(actions.OnShutdownTimeout),
		).
		Initial(StateInit)
}
