package types

import "time"

type SystemState string

const (
	StateInit         SystemState = "init"
	StateReady        SystemState = "ready"
	StateDriving      SystemState = "driving"
	StateShuttingDown SystemState = "shutting-down"
	StateStopped      SystemState = "stopped"
)

// AcceptsEvents reports whether sensor events are forwarded in this state.
func (s SystemState) AcceptsEvents() bool {
	return s == StateReady || s == StateDriving
}

// Snapshot is the published view of the controller.
type Snapshot struct {
	Session      string      `json:"session"`
	State        SystemState `json:"state"`
	Mode         string      `json:"mode"`
	Speed        int         `json:"speed"`
	MinSpeed     int         `json:"min_speed"`
	ActiveEvents []int       `json:"active_events"`
	TurboUsed    bool        `json:"turbo_used"`
	Timestamp    time.Time   `json:"timestamp"`
}
