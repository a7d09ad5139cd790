package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu    sync.Mutex
	got   []Notification
	err   error
	block chan struct{}
}

func (r *recordingSender) Send(_ context.Context, n Notification) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return r.err
}

func (r *recordingSender) sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.got...)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestDispatcher_DeliversAndDrainsOnClose(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, quietLogger(), 2, 16)

	for i := 0; i < 10; i++ {
		d.Notify(Notification{Kind: KindReminder, AppointmentID: uuid.New()})
	}
	d.Close()

	got := sender.sent()
	assert.Len(t, got, 10)
	for _, n := range got {
		assert.False(t, n.CreatedAt.IsZero())
	}
}

func TestDispatcher_DropsWhenQueueFull(t *testing.T) {
	log, hook := test.NewNullLogger()
	sender := &recordingSender{block: make(chan struct{})}
	d := NewDispatcher(sender, log, 1, 1)

	// one in flight, one queued, the rest dropped
	for i := 0; i < 5; i++ {
		d.Notify(Notification{Kind: KindCancellation})
	}

	require.Eventually(t, func() bool {
		for _, e := range hook.AllEntries() {
			if e.Message == "notification queue full, dropping notification" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	close(sender.block)
	d.Close()
	assert.Less(t, len(sender.sent()), 5)
}

func TestDispatcher_NotifyAfterCloseIsSafe(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, quietLogger(), 1, 4)
	d.Close()
	d.Close()

	assert.NotPanics(t, func() { d.Notify(Notification{Kind: KindReminder}) })
	assert.Empty(t, sender.sent())
}

func TestDispatcher_LogsSendFailures(t *testing.T) {
	log, hook := test.NewNullLogger()
	sender := &recordingSender{err: errors.New("smtp down")}
	d := NewDispatcher(sender, log, 1, 4)

	d.Notify(Notification{Kind: KindReminder})
	d.Close()

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "notification delivery failed", hook.LastEntry().Message)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestLogSender(t *testing.T) {
	log, hook := test.NewNullLogger()
	id := uuid.New()

	err := LogSender{Log: log}.Send(context.Background(), Notification{
		Kind:          KindWaitlistPromotion,
		Recipient:     "ana@example.com",
		AppointmentID: id,
	})
	require.NoError(t, err)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, KindWaitlistPromotion, hook.LastEntry().Data["kind"])
	assert.Equal(t, id, hook.LastEntry().Data["appointment_id"])
}

func TestRedisStreamSender_Appends(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sender := NewRedisStreamSender(client, "clinic:notifications")
	id := uuid.New()
	err := sender.Send(context.Background(), Notification{
		Kind:          KindReschedule,
		Recipient:     "dr.lee@example.com",
		AppointmentID: id,
		Fields:        map[string]string{"old_time": "10:00", "time": "11:00"},
		CreatedAt:     time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	msgs, err := client.XRange(context.Background(), "clinic:notifications", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	values := msgs[0].Values
	assert.Equal(t, "reschedule", values["kind"])
	assert.Equal(t, id.String(), values["appointment_id"])

	var fields map[string]string
	require.NoError(t, json.Unmarshal([]byte(values["fields"].(string)), &fields))
	assert.Equal(t, "10:00", fields["old_time"])
}
