package notify

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	var r Recorder
	r.Notify(Notice{Type: Info, Message: "a"})
	r.Notify(Notice{Type: Negative, Message: "b"})
	r.Notify(Notice{Type: Info, Message: "c"})

	assert.Equal(t, 2, r.Count(Info))
	assert.Equal(t, 1, r.Count(Negative))
	assert.Equal(t, 0, r.Count(Positive))

	got := r.Notices()
	require.Len(t, got, 3)
	assert.Equal(t, "b", got[1].Message)

	got[0].Message = "mutated"
	assert.Equal(t, "a", r.Notices()[0].Message, "Notices must return a copy")
}

func TestLogNotifier_LevelByType(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	n.Notify(Notice{Type: Negative, Message: "expired", Timeout: 3 * time.Second})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "expired", entry["msg"])
	assert.Equal(t, "negative", entry["type"])
	assert.Equal(t, "notice", entry["component"])
}

func TestNotifierFunc(t *testing.T) {
	var got Notice
	NotifierFunc(func(n Notice) { got = n }).Notify(Notice{Type: Warning, Message: "w"})
	assert.Equal(t, Warning, got.Type)

	// Discard must be safe to call.
	Discard.Notify(Notice{Type: Info})
}

func TestBus_DeliversToAllSubscribers(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	a, cancelA := bus.Subscribe(1)
	defer cancelA()
	b, cancelB := bus.Subscribe(1)
	defer cancelB()

	bus.Emit(Event{Name: EventRecordOverwritten, Attrs: map[string]string{"slot": "lunch"}})

	for _, ch := range []<-chan Event{a, b} {
		select {
		case evt := <-ch:
			assert.Equal(t, EventRecordOverwritten, evt.Name)
			assert.Equal(t, "lunch", evt.Attrs["slot"])
			assert.False(t, evt.Time.IsZero())
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestBus_DropsWhenFull(t *testing.T) {
	bus := NewBus(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	defer bus.Close()

	ch, cancel := bus.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		bus.Emit(Event{Name: "one"})
		bus.Emit(Event{Name: "two"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full subscriber")
	}
	assert.Equal(t, "one", (<-ch).Name)
	assert.Len(t, ch, 0)
}

func TestBus_CancelAndClose(t *testing.T) {
	bus := NewBus(nil)
	ch, cancel := bus.Subscribe(0)
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open, "cancel should close the channel")

	other, _ := bus.Subscribe(0)
	bus.Close()
	_, open = <-other
	assert.False(t, open, "Close should close remaining channels")

	late, _ := bus.Subscribe(0)
	_, open = <-late
	assert.False(t, open, "subscribing after Close returns a closed channel")

	// Emitting after close is a no-op.
	bus.Emit(Event{Name: "ignored"})
}

func TestBus_ConcurrentEmitAndCancel(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, cancel := bus.Subscribe(4)
			for j := 0; j < 10; j++ {
				bus.Emit(Event{Name: "tick"})
			}
			cancel()
			for range ch {
			}
		}()
	}
	wg.Wait()
}
