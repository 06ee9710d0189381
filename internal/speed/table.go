package speed

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EventID identifies a sensor event. Ids of 10 and above double as the
// speed read from a speed limit sign.
type EventID int

// Sensor events
const (
	EvNone              EventID = 0
	EvTraffic           EventID = 1
	EvTrafficClear      EventID = 2
	EvWeatherRainy      EventID = 3
	EvWeatherClear      EventID = 4
	EvSlipperyRoad      EventID = 5
	EvSlipperyRoadClear EventID = 6
	EvEmergencyTurbo    EventID = 7
	EvSpeedLimitSign    EventID = 10
)

const (
	// ids above this bound are ignored unless the table names them
	maxImplicitEventID EventID = 100

	DefaultInitialSpeed = 20
	DefaultMinSpeed     = 10
)

// EventDefinition holds the per-mode speed delta of one event.
type EventDefinition struct {
	Description string `yaml:"description"`
	Normal      int    `yaml:"normal"`
	Sport       int    `yaml:"sport"`
	Safe        int    `yaml:"safe"`
}

// Delta returns the delta for the given drive mode.
func (d EventDefinition) Delta(mode DriveMode) int {
	switch mode {
	case ModeSport:
		return d.Sport
	case ModeSafe:
		return d.Safe
	default:
		return d.Normal
	}
}

type EventTable map[EventID]EventDefinition

// DefaultEventTable returns a fresh copy of the built-in table.
func DefaultEventTable() EventTable {
	return EventTable{
		EvTraffic:           {Description: "Traffic", Normal: -10, Sport: -5, Safe: -15},
		EvTrafficClear:      {Description: "Traffic Clear", Normal: 10, Sport: 5, Safe: 15},
		EvWeatherRainy:      {Description: "Weather Rainy", Normal: -5, Sport: -5, Safe: -5},
		EvWeatherClear:      {Description: "Weather Clear", Normal: 5, Sport: 5, Safe: 5},
		EvSlipperyRoad:      {Description: "Slippery Road", Normal: -15, Sport: -15, Safe: -15},
		EvSlipperyRoadClear: {Description: "Slippery Road Clear", Normal: 15, Sport: 15, Safe: 15},
		EvEmergencyTurbo:    {Description: "Emergency Turbo", Normal: 20, Sport: 30, Safe: 10},
		EvSpeedLimitSign:    {Description: "Speed Limit Sign X", Normal: 0, Sport: 5, Safe: -5},
	}
}

// Describe returns a human readable name for id. Sign readings that are not
// table keys are described by the sign entry.
func (t EventTable) Describe(id EventID) string {
	if def, ok := t[id]; ok {
		return def.Description
	}
	if id >= EvSpeedLimitSign && id <= maxImplicitEventID {
		if def, ok := t[EvSpeedLimitSign]; ok {
			return fmt.Sprintf("%s (%d)", def.Description, id)
		}
	}
	return "unknown"
}

// Clone copies the table so callers can't mutate a controller's lookup.
func (t EventTable) Clone() EventTable {
	out := make(EventTable, len(t))
	for id, def := range t {
		out[id] = def
	}
	return out
}

type eventTableFile struct {
	Events map[int]EventDefinition `yaml:"events"`
}

// ParseEventTable decodes a YAML event table document.
func ParseEventTable(data []byte) (EventTable, error) {
	var file eventTableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode event table: %w", err)
	}
	if len(file.Events) == 0 {
		return nil, fmt.Errorf("event table has no events")
	}

	table := make(EventTable, len(file.Events))
	for id, def := range file.Events {
		if id <= 0 {
			return nil, fmt.Errorf("invalid event id %d: must be positive", id)
		}
		table[EventID(id)] = def
	}
	// the sign rule always reads this entry
	if _, ok := table[EvSpeedLimitSign]; !ok {
		return nil, fmt.Errorf("event table is missing the speed limit sign entry (%d)", EvSpeedLimitSign)
	}
	return table, nil
}

// LoadEventTable reads and decodes the YAML event table at path.
func LoadEventTable(path string) (EventTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read event table %s: %w", path, err)
	}
	table, err := ParseEventTable(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}

// MarshalYAML renders the table in the format ParseEventTable reads.
func (t EventTable) MarshalYAML() (interface{}, error) {
	file := eventTableFile{Events: make(map[int]EventDefinition, len(t))}
	for id, def := range t {
		file.Events[int(id)] = def
	}
	return file, nil
}
