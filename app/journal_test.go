package app

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJournalPrunesOldest(t *testing.T) {
	j := NewJournal(3)
	require.Equal(t, uint64(0), j.LastSeq())

	stored := j.Append(Event{Type: "a"}, Event{Type: "b"})
	require.Equal(t, uint64(1), stored[0].Seq)
	require.Equal(t, uint64(2), stored[1].Seq)

	j.Append(Event{Type: "c"}, Event{Type: "d"})
	require.Equal(t, 3, j.Len())
	require.Equal(t, uint64(4), j.LastSeq())

	events := j.Since(0, 0)
	require.Len(t, events, 3)
	require.Equal(t, "b", events[0].Type)
	require.Equal(t, "d", events[2].Type)
}

func TestJournalSinceLimit(t *testing.T) {
	j := NewJournal(100)
	for i := 0; i < 10; i++ {
		j.Append(Event{Type: "e"})
	}

	events := j.Since(4, 3)
	require.Len(t, events, 3)
	require.Equal(t, uint64(4), events[0].Seq)
	require.Equal(t, uint64(6), events[2].Seq)

	require.Empty(t, j.Since(11, 0))
}
