package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedKeepsNewestFirst(t *testing.T) {
	f := NewFeed(3)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, f.Notify(ctx, "user_1", Info(fmt.Sprintf("n%d", i))))
	}
	require.NoError(t, f.Notify(ctx, "user_2", Error("other")))

	got := f.Recent("user_1", 0)
	require.Len(t, got, 3)
	assert.Equal(t, "n5", got[0].Message)
	assert.Equal(t, "n3", got[2].Message)

	assert.Len(t, f.Recent("user_1", 1), 1)
	assert.Empty(t, f.Recent("nobody", 0))
}

type failing struct{ err error }

func (f failing) Notify(context.Context, string, Notice) error { return f.err }

func TestMultiDeliversToAll(t *testing.T) {
	feed := NewFeed(0)
	boom := errors.New("boom")

	err := Multi{failing{boom}, feed, LogNotifier{}}.Notify(context.Background(), "user_1", Success("ok"))
	assert.ErrorIs(t, err, boom)
	assert.Len(t, feed.Recent("user_1", 0), 1)
}

type fakeSender struct {
	sent []*messaging.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, m *messaging.Message) (string, error) {
	f.sent = append(f.sent, m)
	return "msg-id", f.err
}

func TestFCMNotifier(t *testing.T) {
	devices := NewDevices()
	devices.Register("user_1", DeviceToken{Token: "tok-a", Platform: "android"})
	devices.Register("user_1", DeviceToken{Token: "tok-b", Platform: "ios"})
	devices.Register("user_1", DeviceToken{Token: "tok-c"})
	devices.Register("user_1", DeviceToken{Token: "tok-b", Platform: "android"})

	sender := &fakeSender{}
	n := NewFCMNotifierWithSender(sender, devices)

	require.NoError(t, n.Notify(context.Background(), "user_1", Error("Failed to add drinks.")))
	require.Len(t, sender.sent, 3)
	assert.Equal(t, "Failed to add drinks.", sender.sent[0].Notification.Body)
	assert.Equal(t, "error", sender.sent[0].Data["level"])

	require.NoError(t, n.Notify(context.Background(), "nobody", Info("skip")))
	assert.Len(t, sender.sent, 3)

	sender.err = errors.New("unregistered")
	assert.Error(t, n.Notify(context.Background(), "user_1", Info("x")))
}

func TestDevicesRegisterDeduplicates(t *testing.T) {
	d := NewDevices()
	d.Register("u", DeviceToken{Token: "t", Platform: "ios"})
	d.Register("u", DeviceToken{Token: "t", Platform: "android"})

	assert.Equal(t, []DeviceToken{{Token: "t", Platform: "android"}}, d.Tokens("u"))
}

type recording struct {
	mu      sync.Mutex
	got     []Notice
	release chan struct{}
}

func (r *recording) Notify(_ context.Context, _ string, n Notice) error {
	if r.release != nil {
		<-r.release
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return nil
}

func (r *recording) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func TestDispatcherDeliversAsync(t *testing.T) {
	rec := &recording{}
	d := NewDispatcher(rec, 2, 10)
	defer d.Stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, d.Notify(context.Background(), "user_1", Info("hi")))
	}
	assert.Eventually(t, func() bool { return rec.count() == 5 }, time.Second, 5*time.Millisecond)
}

func TestDispatcherQueueFull(t *testing.T) {
	rec := &recording{release: make(chan struct{})}
	d := NewDispatcher(rec, 1, 1)

	// One job held by the worker, one in the queue.
	require.NoError(t, d.Notify(context.Background(), "u", Info("a")))
	assert.Eventually(t, func() bool { return len(d.jobQueue) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, d.Notify(context.Background(), "u", Info("b")))

	assert.ErrorIs(t, d.Notify(context.Background(), "u", Info("c")), ErrQueueFull)

	close(rec.release)
	assert.Eventually(t, func() bool { return rec.count() == 2 }, time.Second, 5*time.Millisecond)
	d.Stop()
	assert.Error(t, d.Notify(context.Background(), "u", Info("late")))
}
