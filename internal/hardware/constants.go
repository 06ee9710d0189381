package hardware

const (
	// Sensor bus exposed through gpio-keys
	GpioKeysInput = "/dev/input/by-path/platform-gpio-keys-event"

	Consumer = "speed-service"
)

// Sensor input channels
const (
	ChannelTraffic           = "traffic"
	ChannelTrafficClear      = "traffic_clear"
	ChannelWeatherRainy      = "weather_rainy"
	ChannelWeatherClear      = "weather_clear"
	ChannelSlipperyRoad      = "slippery_road"
	ChannelSlipperyRoadClear = "slippery_road_clear"
	ChannelEmergencyTurbo    = "emergency_turbo"
)

// Digital outputs
const (
	OutputTurboIndicator  = "turbo_indicator"
	OutputSlipperyWarning = "slippery_warning"
)

// SensorEvents maps each input channel to the event code it reports.
var SensorEvents = map[string]int{
	ChannelTraffic:           1,
	ChannelTrafficClear:      2,
	ChannelWeatherRainy:      3,
	ChannelWeatherClear:      4,
	ChannelSlipperyRoad:      5,
	ChannelSlipperyRoadClear: 6,
	ChannelEmergencyTurbo:    7,
}

var DoMappings = map[string]struct {
	Chip int
	Line int
}{
	OutputTurboIndicator:  {2, 12},
	OutputSlipperyWarning: {2, 13},
}
