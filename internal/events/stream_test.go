package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamDeliversInOrder(t *testing.T) {
	s := NewStream(8)
	s.Publish(Event{Stage: StageRequestSigned, At: time.Now()})
	s.Publish(Event{Stage: StageQuoteRequested, At: time.Now()})
	s.Close()

	var stages []Stage
	for ev := range s.Events() {
		stages = append(stages, ev.Stage)
	}
	assert.Equal(t, []Stage{StageRequestSigned, StageQuoteRequested}, stages)
	assert.Zero(t, s.Dropped())
}

func TestStreamDropsWhenFull(t *testing.T) {
	s := NewStream(1)
	s.Publish(Event{Stage: StageRequestSigned})
	s.Publish(Event{Stage: StageQuoteRequested})
	s.Publish(Event{Stage: StageQuoteReceived})

	assert.Equal(t, 2, s.Dropped(), "publishing never blocks a full stream")

	s.Close()
	var count int
	for range s.Events() {
		count++
	}
	require.Equal(t, 1, count)
}

func TestNilStreamIsSafe(t *testing.T) {
	var s *Stream
	s.Publish(Event{Stage: StageCompleted})
	s.Close()
	assert.Zero(t, s.Dropped())
}
