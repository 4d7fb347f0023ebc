package telemetry

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityLog_Bound(t *testing.T) {
	log := NewActivityLog(DefaultActivityCapacity)

	for i := 0; i < 57; i++ {
		log.Append(ActivityEntry{Topic: "t", Payload: fmt.Sprint(i)})
		assert.LessOrEqual(t, log.Len(), DefaultActivityCapacity)
	}

	entries := log.Entries()
	require.Len(t, entries, DefaultActivityCapacity)
	for i, e := range entries {
		assert.Equal(t, fmt.Sprint(57-DefaultActivityCapacity+i), e.Payload, "entry %d out of order", i)
	}
}

func TestActivityLog_PartiallyFilled(t *testing.T) {
	log := NewActivityLog(5)
	log.Append(ActivityEntry{Payload: "a"})
	log.Append(ActivityEntry{Payload: "b"})

	entries := log.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Payload)
	assert.Equal(t, "b", entries[1].Payload)
}

func TestActivityLog_GeneratesIDs(t *testing.T) {
	log := NewActivityLog(2)

	a := log.Append(ActivityEntry{})
	b := log.Append(ActivityEntry{ID: "fixed"})

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "fixed", b.ID)
}

func TestActivityLog_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultActivityCapacity, NewActivityLog(0).Capacity())
}

func TestActivityLog_Reset(t *testing.T) {
	log := NewActivityLog(3)
	for i := 0; i < 4; i++ {
		log.Append(ActivityEntry{})
	}

	log.Reset()

	assert.Equal(t, 0, log.Len())
	log.Append(ActivityEntry{Payload: "after"})
	assert.Equal(t, "after", log.Entries()[0].Payload)
}
