// Package speed implements the event driven speed controller: sensor events
// adjust a single speed value through a drive mode dependent delta table.
package speed

import (
	"speed-service/internal/logger"
)

// Outcome describes what a single Observe call did.
type Outcome struct {
	Event    EventID
	Before   int
	After    int
	Target   int  // speed the rule asked for, valid when Applied
	Applied  bool // a rule fired for the event
	Rejected bool // Target was below the floor
}

// Changed reports whether the observed event moved the speed.
func (o Outcome) Changed() bool {
	return o.Before != o.After
}

// Controller owns the current speed and the memory of events in effect.
// It is not safe for concurrent use; callers serialize Observe.
type Controller struct {
	mode      DriveMode
	speed     int
	minSpeed  int
	table     EventTable
	active    EventSet
	turboUsed bool
	logger    *logger.Logger
}

type Option func(*Controller)

func WithInitialSpeed(speed int) Option {
	return func(c *Controller) { c.speed = speed }
}

func WithMinSpeed(min int) Option {
	return func(c *Controller) { c.minSpeed = min }
}

// WithEventTable replaces the default table. The table is used as given.
func WithEventTable(table EventTable) Option {
	return func(c *Controller) { c.table = table }
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

func New(mode DriveMode, opts ...Option) *Controller {
	c := &Controller{
		mode:     mode,
		speed:    DefaultInitialSpeed,
		minSpeed: DefaultMinSpeed,
		table:    DefaultEventTable(),
		active:   make(EventSet),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Discard()
	}
	c.logger.Debugf("Speed: %d", c.speed)
	return c
}

func (c *Controller) Speed() int {
	return c.speed
}

func (c *Controller) Mode() DriveMode {
	return c.mode
}

func (c *Controller) MinSpeed() int {
	return c.minSpeed
}

func (c *Controller) TurboUsed() bool {
	return c.turboUsed
}

func (c *Controller) IsActive(id EventID) bool {
	return c.active.Contains(id)
}

// ActiveEvents returns the events in effect in ascending order.
func (c *Controller) ActiveEvents() []EventID {
	return c.active.Sorted()
}

func (c *Controller) Table() EventTable {
	return c.table.Clone()
}

// Observe feeds one sensor event to the controller. Unknown events are
// ignored; they never produce an error.
func (c *Controller) Observe(id EventID) Outcome {
	out := Outcome{Event: id, Before: c.speed}

	_, known := c.table[id]
	switch {
	case id > maxImplicitEventID && !known:
		c.logger.Debugf("Ignoring unknown event %d", id)
	case id >= EvSpeedLimitSign:
		out.Applied, out.Target = c.speedLimitSign(id)
	case id == EvEmergencyTurbo:
		out.Applied, out.Target = c.emergencyTurbo()
	case id == EvTraffic, id == EvWeatherRainy, id == EvSlipperyRoad:
		out.Applied, out.Target = c.onset(id, id+1)
	case id == EvTrafficClear, id == EvWeatherClear, id == EvSlipperyRoadClear:
		out.Applied, out.Target = c.clear(id-1, id)
	default:
		c.logger.Debugf("Ignoring event %d", id)
	}

	out.After = c.speed
	out.Rejected = out.Applied && out.Target < c.minSpeed
	return out
}

// onset applies an onset event once until its clear event is seen.
func (c *Controller) onset(onset, clear EventID) (bool, int) {
	if c.active.Contains(onset) {
		return false, 0
	}
	delta, ok := c.delta(onset)
	if !ok {
		return false, 0
	}
	target := c.speed + delta
	c.setSpeed(target)
	c.active.Add(onset)
	c.active.Remove(clear)
	return true, target
}

// clear only applies after its onset event and only once.
func (c *Controller) clear(onset, clear EventID) (bool, int) {
	if c.active.Contains(clear) || !c.active.Contains(onset) {
		return false, 0
	}
	delta, ok := c.delta(clear)
	if !ok {
		return false, 0
	}
	target := c.speed + delta
	c.setSpeed(target)
	c.active.Add(clear)
	c.active.Remove(onset)
	return true, target
}

// emergencyTurbo fires once per controller and never on a slippery road.
func (c *Controller) emergencyTurbo() (bool, int) {
	if c.turboUsed || c.active.Contains(EvSlipperyRoad) {
		c.logger.Debugf("Emergency turbo refused (used=%v, slippery=%v)",
			c.turboUsed, c.active.Contains(EvSlipperyRoad))
		return false, 0
	}
	delta, ok := c.delta(EvEmergencyTurbo)
	if !ok {
		return false, 0
	}
	target := c.speed + delta
	c.setSpeed(target)
	c.turboUsed = true
	c.active.Add(EvEmergencyTurbo)
	return true, target
}

// speedLimitSign sets the speed from the sign reading rather than adding to it.
func (c *Controller) speedLimitSign(reading EventID) (bool, int) {
	delta, ok := c.delta(EvSpeedLimitSign)
	if !ok {
		return false, 0
	}
	target := int(reading) + delta
	c.setSpeed(target)
	c.active.Remove(EvEmergencyTurbo)
	return true, target
}

func (c *Controller) delta(id EventID) (int, bool) {
	def, ok := c.table[id]
	if !ok {
		c.logger.Warnf("No definition for event %d in event table", id)
		return 0, false
	}
	return def.Delta(c.mode), true
}

// setSpeed refuses values below the floor and reports whether it stored speed.
func (c *Controller) setSpeed(speed int) bool {
	ok := speed >= c.minSpeed
	if ok {
		c.speed = speed
	}
	c.logger.Debugf("Speed: %d", c.speed)
	return ok
}
