package speed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const highwayTable = `
events:
  1: {description: Traffic, normal: -20, sport: -10, safe: -30}
  2: {description: Traffic Clear, normal: 20, sport: 10, safe: 30}
  10: {description: Speed Limit Sign X, normal: 0, sport: 10, safe: -10}
`

func TestEventDefinitionDelta(t *testing.T) {
	def := EventDefinition{Normal: 1, Sport: 2, Safe: 3}
	assert.Equal(t, 1, def.Delta(ModeNormal))
	assert.Equal(t, 2, def.Delta(ModeSport))
	assert.Equal(t, 3, def.Delta(ModeSafe))
}

func TestParseEventTable(t *testing.T) {
	table, err := ParseEventTable([]byte(highwayTable))
	require.NoError(t, err)

	require.Len(t, table, 3)
	assert.Equal(t, "Traffic", table[EvTraffic].Description)
	assert.Equal(t, -30, table[EvTraffic].Safe)
	assert.Equal(t, 10, table[EvSpeedLimitSign].Sport)

	c := New(ModeSafe, WithEventTable(table), WithInitialSpeed(60))
	c.Observe(EvTraffic)
	assert.Equal(t, 30, c.Speed())
	// rain is not part of this table
	c.Observe(EvWeatherRainy)
	assert.Equal(t, 30, c.Speed())
}

func TestParseEventTableErrors(t *testing.T) {
	cases := map[string]string{
		"malformed":    "events: [",
		"empty":        "events: {}",
		"non positive": "events:\n  0: {description: Zero}\n  10: {description: Sign}\n",
		"missing sign": "events:\n  1: {description: Traffic, normal: -10}\n",
	}
	for name, doc := range cases {
		_, err := ParseEventTable([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestLoadEventTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.yaml")
	require.NoError(t, os.WriteFile(path, []byte(highwayTable), 0o644))

	table, err := LoadEventTable(path)
	require.NoError(t, err)
	assert.Len(t, table, 3)

	_, err = LoadEventTable(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultTableRoundTripsThroughYAML(t *testing.T) {
	data, err := yaml.Marshal(DefaultEventTable())
	require.NoError(t, err)

	table, err := ParseEventTable(data)
	require.NoError(t, err)
	assert.Equal(t, DefaultEventTable(), table)
}

func TestDescribe(t *testing.T) {
	table := DefaultEventTable()
	assert.Equal(t, "Traffic", table.Describe(EvTraffic))
	assert.Equal(t, "Speed Limit Sign X (50)", table.Describe(50))
	assert.Equal(t, "unknown", table.Describe(8))
	assert.Equal(t, "unknown", table.Describe(150))
}

func TestEventSet(t *testing.T) {
	s := make(EventSet)
	s.Add(5)
	s.Add(1)
	s.Add(5)
	assert.True(t, s.Contains(1))
	assert.Equal(t, []EventID{1, 5}, s.Sorted())

	s.Remove(1)
	s.Remove(9)
	assert.False(t, s.Contains(1))
	assert.Equal(t, []EventID{5}, s.Sorted())
}

func TestShippedEventTableMatchesDefault(t *testing.T) {
	table, err := LoadEventTable(filepath.Join("..", "..", "configs", "events.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultEventTable(), table)
}
