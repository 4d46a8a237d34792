package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_ExactAndWildcardDelivery(t *testing.T) {
	b := NewBus()
	var exact, wild []string
	b.On(JobComplete, func(ev Event) { exact = append(exact, ev.Name) })
	b.On(Wildcard, func(ev Event) { wild = append(wild, ev.Name) })

	b.Emit(Event{Name: JobComplete})
	b.Emit(Event{Name: JobError})

	assert.Equal(t, []string{JobComplete}, exact)
	assert.Equal(t, []string{JobComplete, JobError}, wild)
}

func TestBus_Unsubscribe(t *testing.T) {
	b := NewBus()
	calls := 0
	unsub := b.On(JobStart, func(Event) { calls++ })
	b.Emit(Event{Name: JobStart})
	unsub()
	b.Emit(Event{Name: JobStart})
	assert.Equal(t, 1, calls)
}

func TestBus_OnceFiresOnlyOnce(t *testing.T) {
	b := NewBus()
	calls := 0
	b.Once(JobStart, func(Event) { calls++ })
	b.Emit(Event{Name: JobStart})
	b.Emit(Event{Name: JobStart})
	assert.Equal(t, 1, calls)
}

func TestBus_PanicIsSwallowed(t *testing.T) {
	b := NewBus()
	b.On(JobStart, func(Event) { panic("boom") })
	var ran bool
	b.On(JobStart, func(Event) { ran = true })
	require.NotPanics(t, func() { b.Emit(Event{Name: JobStart}) })
	assert.True(t, ran)
}

func TestBus_TimestampDefaulted(t *testing.T) {
	b := NewBus()
	var got Event
	b.On(JobStart, func(ev Event) { got = ev })
	b.Emit(Event{Name: JobStart})
	assert.False(t, got.Timestamp.IsZero())
}
