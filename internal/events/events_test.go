package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	key    string
	msgs   []amqp.Publishing
	err    error
	closed bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.key = exchange + "/" + key
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeChannel) Close() error { f.closed = true; return nil }

func TestAMQP_Publish_PersistentJSON(t *testing.T) {
	t.Parallel()
	ch := &fakeChannel{}
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := &AMQP{ch: ch, queue: DefaultQueue, now: func() time.Time { return at }}

	require.NoError(t, p.Publish(context.Background(), Event{Type: BoardReordered, UserID: 1, ProjectID: 2, Count: 3}))
	require.Equal(t, "/"+DefaultQueue, ch.key)
	require.Len(t, ch.msgs, 1)

	msg := ch.msgs[0]
	require.Equal(t, amqp.Persistent, msg.DeliveryMode)
	require.Equal(t, "application/json", msg.ContentType)
	require.Equal(t, BoardReordered, msg.Type)

	var got Event
	require.NoError(t, json.Unmarshal(msg.Body, &got))
	require.Equal(t, Event{Type: BoardReordered, UserID: 1, ProjectID: 2, Count: 3, At: at}, got)
}

func TestAMQP_Publish_ErrorAndClose(t *testing.T) {
	t.Parallel()
	ch := &fakeChannel{err: errors.New("channel closed")}
	p := &AMQP{ch: ch, queue: "q", now: time.Now}

	require.Error(t, p.Publish(context.Background(), Event{Type: TaskCreated}))
	require.NoError(t, p.Close())
	require.True(t, ch.closed)
}
