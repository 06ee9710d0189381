package core

import (
	"speed-service/internal/hardware"
	"speed-service/internal/speed"
	"speed-service/internal/types"
)

// setState records the state ahead of the OnStateChange callback so entry
// actions already see it.
func (v *SpeedSystem) setState(state types.SystemState) {
	v.stateMu.Lock()
	defer v.stateMu.Unlock()
	v.state = state
}

// getCurrentState returns the cached state. Reading the machine directly
// from inside a callback would deadlock on the FSM mutex.
func (v *SpeedSystem) getCurrentState() types.SystemState {
	v.stateMu.RLock()
	defer v.stateMu.RUnlock()
	return v.state
}

// updateIndicators mirrors turbo and slippery road onto the indicator lines.
// Caller holds v.mu.
func (v *SpeedSystem) updateIndicators() {
	if v.io == nil {
		return
	}
	outputs := map[string]bool{
		hardware.OutputTurboIndicator:  v.ctrl.IsActive(speed.EvEmergencyTurbo),
		hardware.OutputSlipperyWarning: v.ctrl.IsActive(speed.EvSlipperyRoad),
	}
	for channel, value := range outputs {
		if err := v.io.WriteDigitalOutput(channel, value); err != nil {
			v.logger.Warnf("Failed to set %s: %v", channel, err)
		}
	}
}

func (v *SpeedSystem) clearIndicators() {
	if v.io == nil {
		return
	}
	for _, channel := range []string{hardware.OutputTurboIndicator, hardware.OutputSlipperyWarning} {
		if err := v.io.WriteDigitalOutput(channel, false); err != nil {
			v.logger.Warnf("Failed to clear %s: %v", channel, err)
		}
	}
}
