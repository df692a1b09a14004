package diag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecent_ReturnsNewestFirst(t *testing.T) {
	l := NewLogger(10)
	l.Info("a", "first")
	l.Info("b", "second")
	l.Info("c", "third")

	recent := l.Recent(10)
	require.Len(t, recent, 3)
	assert.Equal(t, "third", recent[0].Message)
	assert.Equal(t, "second", recent[1].Message)
	assert.Equal(t, "first", recent[2].Message)
}

func TestRecent_CapsAtRequestedCount(t *testing.T) {
	l := NewLogger(10)
	for i := 0; i < 5; i++ {
		l.Info("a", "msg")
	}
	assert.Len(t, l.Recent(2), 2)
}

func TestRecent_WrapsAroundRingBuffer(t *testing.T) {
	l := NewLogger(3)
	l.Info("a", "1")
	l.Info("a", "2")
	l.Info("a", "3")
	l.Info("a", "4") // overwrites "1"

	recent := l.Recent(3)
	require.Len(t, recent, 3)
	assert.Equal(t, "4", recent[0].Message)
	assert.Equal(t, "3", recent[1].Message)
	assert.Equal(t, "2", recent[2].Message)
}

func TestLevelHelpers_SetCorrectLevel(t *testing.T) {
	l := NewLogger(10)
	l.Warn("x", "warned")
	l.Error("x", "errored")

	recent := l.Recent(2)
	assert.Equal(t, LevelError, recent[0].Level)
	assert.Equal(t, LevelWarn, recent[1].Level)
}

func TestEvents_ReceivesLoggedEvent(t *testing.T) {
	l := NewLogger(10)
	l.Info("comp", "hello")

	select {
	case ev := <-l.Events():
		assert.Equal(t, "hello", ev.Message)
		assert.Equal(t, "comp", ev.Component)
	default:
		t.Fatal("expected an event on the fan-out channel")
	}
}

func TestNewLogger_NonPositiveSizeDefaultsTo1000(t *testing.T) {
	l := NewLogger(0)
	assert.Len(t, l.buf, 1000)
}
