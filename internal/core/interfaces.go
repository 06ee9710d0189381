package core

import (
	"speed-service/internal/hardware"
	"speed-service/internal/journal"
	"speed-service/internal/messaging"
	"speed-service/internal/types"
)

// MessagingClient defines the Redis operations needed by SpeedSystem
type MessagingClient interface {
	SetCallbacks(callbacks messaging.Callbacks)
	Connect() error
	StartListening() error
	Close() error

	PublishSpeed(snapshot types.Snapshot) error
	ReportTurboUsed(session string, speed int) error
}

// HardwareIO defines the sensor inputs and indicator outputs needed by SpeedSystem
type HardwareIO interface {
	Initialize() error
	Cleanup()

	RegisterInputCallback(channel string, callback hardware.InputCallback)
	WriteDigitalOutput(channel string, value bool) error
}

// Journal records observed events
type Journal interface {
	Open(mode string) error
	Session() string
	Record(entry journal.Entry) error
	Flush() error
	Close() error
}
