package pubsub

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignal_EmitInConnectionOrder(t *testing.T) {
	s := NewSignal[string]()
	require.True(t, s.Empty())

	var got []string
	s.Connect(func(v string) { got = append(got, "a:"+v) })
	s.Connect(func(v string) { got = append(got, "b:"+v) })
	s.Connect(func(v string) { got = append(got, "c:"+v) })

	require.Equal(t, 3, s.Count())
	require.False(t, s.Empty())

	s.Emit("x")
	require.Equal(t, []string{"a:x", "b:x", "c:x"}, got)
}

func TestSignal_Disconnect(t *testing.T) {
	s := NewSignal[int]()

	calls := 0
	id := s.Connect(func(int) { calls++ })
	s.Connect(func(int) { calls += 10 })

	require.True(t, s.Disconnect(id))
	require.False(t, s.Disconnect(id), "second disconnect is a no-op")

	s.Emit(1)
	require.Equal(t, 10, calls)
}

func TestSignal_Clear(t *testing.T) {
	s := NewSignal[int]()
	s.Connect(func(int) { t.Fatal("cleared callback invoked") })
	s.Clear()

	require.True(t, s.Empty())
	s.Emit(1)
}

func TestSignal_CallbackMayDisconnectItself(t *testing.T) {
	s := NewSignal[int]()

	var id SlotID
	calls := 0
	id = s.Connect(func(int) {
		calls++
		s.Disconnect(id)
	})

	s.Emit(1)
	s.Emit(2)
	require.Equal(t, 1, calls)
	require.Equal(t, 0, s.Count())
}
