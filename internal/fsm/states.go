package fsm

import "github.com/librescoot/librefsm"

// Service states
const (
	StateInit         librefsm.StateID = "init"
	StateReady        librefsm.StateID = "ready"
	StateDriving      librefsm.StateID = "driving"
	StateShuttingDown librefsm.StateID = "shutting-down"
	StateStopped      librefsm.StateID = "stopped"
)

// Service events
const (
	EvStarted         librefsm.EventID = "started"
	EvSensorEvent     librefsm.EventID = "sensor-event"
	EvShutdown        librefsm.EventID = "shutdown"
	EvShutdownTimeout librefsm.EventID = "shutdown-timeout"
)
