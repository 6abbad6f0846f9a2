package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	"github.com/mohammed-shakir/geoquery/internal/catalogsync"
)

type fakeReloader struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeReloader) Reload(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakeReloader) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newRunner(t *testing.T, rl Reloader) (*Runner, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return New(Config{Enabled: true}, rl, Options{Register: reg}), reg
}

func message(t *testing.T, ev catalogsync.Event, offset int64) *sarama.ConsumerMessage {
	t.Helper()
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &sarama.ConsumerMessage{Topic: "layer-catalog", Offset: offset, Timestamp: time.Now().UTC(), Value: b}
}

func event(rev uint64) catalogsync.Event {
	return catalogsync.Event{Version: 1, Op: catalogsync.OpReload, Revision: rev, TS: time.Now().UTC()}
}

func TestHandleMessage_ReloadsOncePerRevision(t *testing.T) {
	rl := &fakeReloader{}
	r, reg := newRunner(t, rl)
	ctx := context.Background()

	for i, rev := range []uint64{3, 3, 2, 4} {
		if err := r.handleMessage(ctx, message(t, event(rev), int64(i))); err != nil {
			t.Fatalf("rev %d: %v", rev, err)
		}
	}
	if rl.count() != 2 {
		t.Fatalf("reloads=%d want 2 (revisions 3 and 4)", rl.count())
	}
	if got := testutil.ToFloat64(r.ms.apply.WithLabelValues("skip_version")); got != 2 {
		t.Fatalf("skip_version=%v want 2", got)
	}
	if n, err := testutil.GatherAndCount(reg, "catalog_sync_processing_seconds"); err != nil || n == 0 {
		t.Fatalf("processing histogram not exported: n=%d err=%v", n, err)
	}
}

func TestHandleMessage_SourcesAreIndependent(t *testing.T) {
	rl := &fakeReloader{}
	r, _ := newRunner(t, rl)
	a, b := event(5), event(5)
	b.Source = "admin-ui"
	_ = r.handleMessage(context.Background(), message(t, a, 1))
	_ = r.handleMessage(context.Background(), message(t, b, 2))
	if rl.count() != 2 {
		t.Fatalf("reloads=%d want 2", rl.count())
	}
}

func TestHandleMessage_DropsMalformed(t *testing.T) {
	rl := &fakeReloader{}
	r, _ := newRunner(t, rl)
	bad := []*sarama.ConsumerMessage{
		{Value: []byte("{")},
		message(t, catalogsync.Event{Version: 1, Op: "drop_table", Revision: 1, TS: time.Now()}, 2),
	}
	for _, m := range bad {
		if err := r.handleMessage(context.Background(), m); err != nil {
			t.Fatalf("malformed events must not block the partition: %v", err)
		}
	}
	if rl.count() != 0 {
		t.Fatalf("reloads=%d want 0", rl.count())
	}
	if got := testutil.ToFloat64(r.ms.msgs.WithLabelValues("invalid")); got != 2 {
		t.Fatalf("invalid=%v want 2", got)
	}
}

func TestHandleMessage_FailedReloadIsRetried(t *testing.T) {
	rl := &fakeReloader{err: errors.New("connection refused")}
	r, _ := newRunner(t, rl)
	msg := message(t, event(9), 1)

	if err := r.handleMessage(context.Background(), msg); err == nil {
		t.Fatalf("expected error so the message is redelivered")
	}
	rl.mu.Lock()
	rl.err = nil
	rl.mu.Unlock()
	if err := r.handleMessage(context.Background(), msg); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if rl.count() != 2 {
		t.Fatalf("reloads=%d want 2", rl.count())
	}
}

type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Context() context.Context { return s.ctx }
func (s *fakeSession) Claims() map[string][]int32 {
	return map[string][]int32{"layer-catalog": {0, 2}}
}
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	s.marked = append(s.marked, msg.Offset)
	s.mu.Unlock()
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	ch chan *sarama.ConsumerMessage
}

func (c fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.ch }

func TestGroupHandler_SessionLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	rl := &fakeReloader{}
	r, _ := newRunner(t, rl)
	h := r.handler()
	sess := &fakeSession{ctx: context.Background()}

	if ready, _ := r.Readiness(); ready {
		t.Fatalf("ready before setup")
	}
	if err := h.Setup(sess); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	ready, parts := r.Readiness()
	if !ready || len(parts) != 2 {
		t.Fatalf("ready=%v parts=%v", ready, parts)
	}

	ch := make(chan *sarama.ConsumerMessage, 2)
	ch <- message(t, event(1), 10)
	ch <- message(t, event(2), 11)
	close(ch)
	if err := h.ConsumeClaim(sess, fakeClaim{ch: ch}); err != nil {
		t.Fatalf("ConsumeClaim: %v", err)
	}
	if len(sess.marked) != 2 || rl.count() != 2 {
		t.Fatalf("marked=%v reloads=%d", sess.marked, rl.count())
	}

	if err := h.Cleanup(sess); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if ready, _ := r.Readiness(); ready {
		t.Fatalf("still ready after cleanup")
	}
}

func TestStart_Disabled(t *testing.T) {
	defer goleak.VerifyNone(t)
	r := New(Config{}, &fakeReloader{}, Options{})
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	r.Stop()
}

func TestNewConfig_SplitsBrokers(t *testing.T) {
	got := split(" a:9092, ,b:9092 ")
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Fatalf("brokers=%v", got)
	}
}
