package journal

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openJournal(t *testing.T, batch int) *SQLiteJournal {
	t.Helper()
	j := NewSQLiteJournal(filepath.Join(t.TempDir(), "journal.sqlite3"), batch)
	require.NoError(t, j.Open("normal"))
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordBeforeOpen(t *testing.T) {
	j := NewSQLiteJournal(filepath.Join(t.TempDir(), "journal.sqlite3"), 10)
	assert.ErrorIs(t, j.Record(Entry{Event: 1}), ErrNotOpen)
	assert.Empty(t, j.Session())
}

func TestRecordAndReadBack(t *testing.T) {
	j := openJournal(t, 10)
	require.NotEmpty(t, j.Session())

	require.NoError(t, j.Record(Entry{Event: 1, Description: "Traffic", Before: 20, After: 10, Applied: true}))
	require.NoError(t, j.Record(Entry{Event: 1, Description: "Traffic", Before: 10, After: 10}))
	require.NoError(t, j.Record(Entry{Event: 3, Description: "Weather Rainy", Before: 10, After: 10, Applied: true, Rejected: true}))

	// still buffered
	entries, err := j.Observations(j.Session())
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, j.Flush())
	entries, err = j.Observations(j.Session())
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, 1, entries[0].Seq)
	assert.Equal(t, 10, entries[0].After)
	assert.True(t, entries[0].Applied)
	assert.False(t, entries[1].Applied)
	assert.True(t, entries[2].Rejected)
	assert.Equal(t, "Weather Rainy", entries[2].Description)
	assert.Equal(t, j.Session(), entries[2].Session)
	assert.False(t, entries[2].Time.IsZero())
}

func TestBatchFlushesWhenFull(t *testing.T) {
	j := openJournal(t, 2)

	require.NoError(t, j.Record(Entry{Event: 50, Before: 20, After: 50, Applied: true}))
	require.NoError(t, j.Record(Entry{Event: 60, Before: 50, After: 60, Applied: true}))

	entries, err := j.Observations(j.Session())
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestSessionsAreSeparate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.sqlite3")

	first := NewSQLiteJournal(path, 1)
	require.NoError(t, first.Open("sport"))
	require.NoError(t, first.Record(Entry{Event: 7, Before: 20, After: 50, Applied: true}))
	firstSession := first.Session()
	require.NoError(t, first.Close())

	second := NewSQLiteJournal(path, 1)
	require.NoError(t, second.Open("safe"))
	defer second.Close()
	assert.NotEqual(t, firstSession, second.Session())

	entries, err := second.Observations(firstSession)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 7, entries[0].Event)

	entries, err = second.Observations(second.Session())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
