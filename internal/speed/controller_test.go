package speed

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speed-service/internal/logger"
)

func newNormal(opts ...Option) *Controller {
	return New(ModeNormal, opts...)
}

func TestNewDefaults(t *testing.T) {
	c := newNormal()

	assert.Equal(t, DefaultInitialSpeed, c.Speed())
	assert.Equal(t, DefaultMinSpeed, c.MinSpeed())
	assert.Equal(t, ModeNormal, c.Mode())
	assert.False(t, c.TurboUsed())
	assert.Empty(t, c.ActiveEvents())
	assert.Equal(t, DefaultEventTable(), c.Table())
}

func TestSetSpeedFloor(t *testing.T) {
	c := newNormal()

	assert.False(t, c.setSpeed(5))
	assert.Equal(t, 20, c.Speed())
	assert.True(t, c.setSpeed(11))
	assert.Equal(t, 11, c.Speed())
	assert.True(t, c.setSpeed(10))
	assert.Equal(t, 10, c.Speed())
	assert.True(t, c.setSpeed(200))
	assert.Equal(t, 200, c.Speed())
}

func TestPairedEvents(t *testing.T) {
	pairs := []struct {
		name          string
		onset, clear  EventID
		onsetDelta    int
		clearDelta    int
		startingSpeed int
	}{
		{"traffic", EvTraffic, EvTrafficClear, -10, 10, 50},
		{"weather", EvWeatherRainy, EvWeatherClear, -5, 5, 50},
		{"slippery road", EvSlipperyRoad, EvSlipperyRoadClear, -15, 15, 50},
	}

	for _, p := range pairs {
		t.Run(p.name, func(t *testing.T) {
			c := newNormal(WithInitialSpeed(p.startingSpeed))

			// clear before onset does nothing
			out := c.Observe(p.clear)
			assert.False(t, out.Applied)
			assert.Equal(t, p.startingSpeed, c.Speed())
			assert.Empty(t, c.ActiveEvents())

			c.Observe(p.onset)
			assert.Equal(t, p.startingSpeed+p.onsetDelta, c.Speed())
			assert.Equal(t, []EventID{p.onset}, c.ActiveEvents())

			// repeated onset is idempotent
			out = c.Observe(p.onset)
			assert.False(t, out.Applied)
			assert.Equal(t, p.startingSpeed+p.onsetDelta, c.Speed())

			c.Observe(p.clear)
			assert.Equal(t, p.startingSpeed+p.onsetDelta+p.clearDelta, c.Speed())
			assert.Equal(t, []EventID{p.clear}, c.ActiveEvents())

			// clearing twice has no effect
			out = c.Observe(p.clear)
			assert.False(t, out.Applied)

			c.Observe(p.onset)
			assert.Equal(t, p.startingSpeed+2*p.onsetDelta+p.clearDelta, c.Speed())
			assert.Equal(t, []EventID{p.onset}, c.ActiveEvents())
		})
	}
}

func TestDeltaPerMode(t *testing.T) {
	cases := []struct {
		mode DriveMode
		want int
	}{
		{ModeNormal, 40},
		{ModeSport, 45},
		{ModeSafe, 35},
	}
	for _, tc := range cases {
		c := New(tc.mode, WithInitialSpeed(50))
		c.Observe(EvTraffic)
		assert.Equal(t, tc.want, c.Speed(), tc.mode.String())
	}
}

func TestOnsetBelowFloorKeepsSpeedButMarksEvent(t *testing.T) {
	c := New(ModeSafe)

	out := c.Observe(EvTraffic)
	assert.True(t, out.Applied)
	assert.True(t, out.Rejected)
	assert.Equal(t, 5, out.Target)
	assert.False(t, out.Changed())
	assert.Equal(t, 20, c.Speed())
	assert.True(t, c.IsActive(EvTraffic))

	c.Observe(EvTrafficClear)
	assert.Equal(t, 35, c.Speed())
}

func TestEmergencyTurbo(t *testing.T) {
	c := newNormal()

	out := c.Observe(EvEmergencyTurbo)
	assert.True(t, out.Applied)
	assert.Equal(t, 40, c.Speed())
	assert.True(t, c.TurboUsed())
	assert.True(t, c.IsActive(EvEmergencyTurbo))

	// one shot per lifetime, even after a sign clears the marker
	c.Observe(60)
	assert.False(t, c.IsActive(EvEmergencyTurbo))
	out = c.Observe(EvEmergencyTurbo)
	assert.False(t, out.Applied)
	assert.Equal(t, 60, c.Speed())
	assert.True(t, c.TurboUsed())
}

func TestEmergencyTurboRefusedOnSlipperyRoad(t *testing.T) {
	c := newNormal(WithInitialSpeed(80))

	c.Observe(EvSlipperyRoad)
	require.Equal(t, 65, c.Speed())

	out := c.Observe(EvEmergencyTurbo)
	assert.False(t, out.Applied)
	assert.Equal(t, 65, c.Speed())
	assert.False(t, c.TurboUsed())
	assert.Equal(t, []EventID{EvSlipperyRoad}, c.ActiveEvents())

	c.Observe(EvSlipperyRoadClear)
	c.Observe(EvEmergencyTurbo)
	assert.Equal(t, 100, c.Speed())
	assert.True(t, c.TurboUsed())
	assert.Equal(t, []EventID{EvSlipperyRoadClear, EvEmergencyTurbo}, c.ActiveEvents())
}

func TestEmergencyTurboIgnoresTrafficAndRain(t *testing.T) {
	c := newNormal(WithInitialSpeed(50))
	c.Observe(EvTraffic)
	c.Observe(EvWeatherRainy)

	c.Observe(EvEmergencyTurbo)
	assert.Equal(t, 55, c.Speed())
	assert.True(t, c.TurboUsed())
}

func TestSpeedLimitSign(t *testing.T) {
	cases := []struct {
		mode    DriveMode
		reading EventID
		want    int
	}{
		{ModeNormal, 50, 50},
		{ModeSport, 50, 55},
		{ModeSafe, 50, 45},
		{ModeNormal, 10, 10},
		{ModeSport, 100, 105},
		// 12-5 is under the floor
		{ModeSafe, 12, 20},
	}
	for _, tc := range cases {
		c := New(tc.mode)
		c.Observe(EvTraffic)
		c.Observe(tc.reading)
		assert.Equal(t, tc.want, c.Speed(), "%s sign %d", tc.mode, tc.reading)
		// signs don't touch paired events
		assert.True(t, c.IsActive(EvTraffic))
	}
}

func TestSpeedLimitSignOverridesRatherThanAccumulates(t *testing.T) {
	c := newNormal()
	c.Observe(70)
	c.Observe(70)
	assert.Equal(t, 70, c.Speed())
	c.Observe(30)
	assert.Equal(t, 30, c.Speed())
}

func TestUnrecognizedEventsAreIgnored(t *testing.T) {
	for _, id := range []EventID{EvNone, 8, 9, -1, 101, 150, 5000} {
		c := newNormal(WithInitialSpeed(33))
		c.Observe(EvTraffic)

		out := c.Observe(id)
		assert.False(t, out.Applied, "event %d", id)
		assert.Equal(t, 23, c.Speed(), "event %d", id)
		assert.Equal(t, []EventID{EvTraffic}, c.ActiveEvents(), "event %d", id)
	}
}

func TestLargeTableKeyIsTreatedAsSign(t *testing.T) {
	table := DefaultEventTable()
	table[150] = EventDefinition{Description: "Highway Sign"}

	c := New(ModeSport, WithEventTable(table))
	c.Observe(150)
	assert.Equal(t, 155, c.Speed())
}

func TestMissingDefinitionIsNoop(t *testing.T) {
	table := DefaultEventTable()
	delete(table, EvTraffic)
	delete(table, EvSpeedLimitSign)

	c := newNormal(WithEventTable(table))
	assert.False(t, c.Observe(EvTraffic).Applied)
	assert.False(t, c.Observe(50).Applied)
	assert.Equal(t, 20, c.Speed())
	assert.Empty(t, c.ActiveEvents())
}

func TestObserveTrace(t *testing.T) {
	c := newNormal()

	steps := []struct {
		event  EventID
		speed  int
		active []EventID
		turbo  bool
	}{
		{EvTraffic, 10, []EventID{1}, false},
		{EvTraffic, 10, []EventID{1}, false},
		{EvTrafficClear, 20, []EventID{2}, false},
		{EvEmergencyTurbo, 40, []EventID{2, 7}, true},
		{EvEmergencyTurbo, 40, []EventID{2, 7}, true},
		{50, 50, []EventID{2}, true},
	}
	for i, s := range steps {
		c.Observe(s.event)
		assert.Equal(t, s.speed, c.Speed(), "step %d", i)
		assert.Equal(t, s.active, c.ActiveEvents(), "step %d", i)
		assert.Equal(t, s.turbo, c.TurboUsed(), "step %d", i)
	}
}

func TestObserveLongSequence(t *testing.T) {
	c := newNormal()

	c.Observe(50)
	assert.Equal(t, 50, c.Speed())
	c.Observe(EvTraffic)
	assert.Equal(t, 40, c.Speed())
	c.Observe(EvEmergencyTurbo)
	c.Observe(60)
	c.Observe(EvEmergencyTurbo)
	assert.Equal(t, 60, c.Speed())
	c.Observe(EvWeatherRainy)
	assert.Equal(t, 55, c.Speed())
	assert.Equal(t, []EventID{1, 3}, c.ActiveEvents())
	c.Observe(EvSlipperyRoad)
	assert.Equal(t, 40, c.Speed())
	assert.Equal(t, []EventID{1, 3, 5}, c.ActiveEvents())
	c.Observe(EvTrafficClear)
	assert.Equal(t, 50, c.Speed())
	assert.Equal(t, []EventID{2, 3, 5}, c.ActiveEvents())
	c.Observe(EvWeatherClear)
	assert.Equal(t, 55, c.Speed())
	assert.Equal(t, []EventID{2, 4, 5}, c.ActiveEvents())
	c.Observe(EvSlipperyRoadClear)
	assert.Equal(t, 70, c.Speed())
	assert.Equal(t, []EventID{2, 4, 6}, c.ActiveEvents())
	assert.True(t, c.TurboUsed())

	c.Observe(75)
	assert.Equal(t, 75, c.Speed())
	c.Observe(100)
	assert.Equal(t, 100, c.Speed())
	c.Observe(101)
	assert.Equal(t, 100, c.Speed())
	c.Observe(EvNone)
	assert.Equal(t, 100, c.Speed())
}

func TestSpeedNeverBelowFloor(t *testing.T) {
	seq := []EventID{1, 3, 5, 7, 12, 1, 2, 1, 3, 4, 3, 5, 6, 5, 11, 10, 7, 1}
	for _, mode := range Modes() {
		c := New(mode, WithInitialSpeed(15))
		for _, id := range seq {
			c.Observe(id)
			assert.GreaterOrEqual(t, c.Speed(), c.MinSpeed(), "%s after %d", mode, id)
		}
	}
}

func TestSpeedIsLoggedAtDebug(t *testing.T) {
	var buf bytes.Buffer
	l := logger.NewLogger(log.New(&buf, "", 0), logger.LogLevelDebug)

	c := newNormal(WithLogger(l))
	c.Observe(EvTraffic)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{"DEBUG: Speed: 20", "DEBUG: Speed: 10"}, lines)
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]DriveMode{
		"normal":  ModeNormal,
		"SPORT":   ModeSport,
		" Safe\n": ModeSafe,
	} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseMode("turbo")
	assert.ErrorIs(t, err, ErrUnknownMode)
}
