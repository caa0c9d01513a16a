package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	models "online-market/model"
	"online-market/store"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.DiscardHandler)

type recordingPublisher struct {
	mu     sync.Mutex
	got    []models.Event
	failOn string
}

func (p *recordingPublisher) Publish(_ context.Context, ev models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev.EventID == p.failOn {
		return errors.New("broker unavailable")
	}
	p.got = append(p.got, ev)
	return nil
}

func seedEvents(t *testing.T, s *store.MemoryStore, ids ...string) {
	t.Helper()
	err := s.WithTx(context.Background(), func(tx store.Tx) error {
		for _, id := range ids {
			ev := models.Event{EventID: id, Type: models.EventOrderCreated, Key: "1", Payload: []byte(`{}`)}
			if err := tx.InsertEvent(context.Background(), &ev); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestDrainPublishesAndMarksInOrder(t *testing.T) {
	ms := store.NewMemoryStore()
	seedEvents(t, ms, "a", "b", "c")
	pub := &recordingPublisher{}
	r := NewRelay(ms, pub, discard, time.Second, 2)

	n, err := r.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = r.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, pub.got, 3)
	assert.Equal(t, "a", pub.got[0].EventID)
	assert.Equal(t, "c", pub.got[2].EventID)

	pending, err := ms.PendingEvents(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDrainStopsAtFirstFailure(t *testing.T) {
	ms := store.NewMemoryStore()
	seedEvents(t, ms, "a", "b", "c")
	pub := &recordingPublisher{failOn: "b"}
	r := NewRelay(ms, pub, discard, time.Second, 10)

	n, err := r.Drain(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, n)

	pending, err := ms.PendingEvents(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "b", pending[0].EventID)
}

func TestRunStopsWithContext(t *testing.T) {
	ms := store.NewMemoryStore()
	seedEvents(t, ms, "a")
	pub := &recordingPublisher{}
	r := NewRelay(ms, pub, discard, 10*time.Millisecond, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		pending, _ := ms.PendingEvents(context.Background(), 0)
		return len(pending) == 0
	}, time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

type fakeWriter struct {
	err  error
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaPublisherSetsKeyAndHeaders(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, discard)

	err := p.Publish(context.Background(), models.Event{
		EventID: "e-1", Type: models.EventOrderCreated, Key: "42", Payload: []byte(`{"order_id":42}`),
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "42", string(w.msgs[0].Key))
	assert.Equal(t, []kafka.Header{
		{Key: "event_type", Value: []byte(models.EventOrderCreated)},
		{Key: "event_id", Value: []byte("e-1")},
	}, w.msgs[0].Headers)
}

func TestKafkaPublisherOpensBreaker(t *testing.T) {
	w := &fakeWriter{err: errors.New("dial tcp: connection refused")}
	p := newKafkaPublisher(w, discard)

	for i := 0; i < 5; i++ {
		require.Error(t, p.Publish(context.Background(), models.Event{EventID: "e"}))
	}
	err := p.Publish(context.Background(), models.Event{EventID: "e"})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}
