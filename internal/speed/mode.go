package speed

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownMode is returned when a drive mode string is not recognized.
var ErrUnknownMode = errors.New("unknown mode")

// DriveMode selects which delta column of an event definition applies.
type DriveMode int

const (
	ModeNormal DriveMode = iota
	ModeSport
	ModeSafe
)

func (m DriveMode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeSport:
		return "sport"
	case ModeSafe:
		return "safe"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode matches s case-insensitively against normal, sport and safe.
func ParseMode(s string) (DriveMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal":
		return ModeNormal, nil
	case "sport":
		return ModeSport, nil
	case "safe":
		return ModeSafe, nil
	}
	return ModeNormal, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Modes lists the supported drive modes in display order.
func Modes() []DriveMode {
	return []DriveMode{ModeNormal, ModeSport, ModeSafe}
}
