package smtppool

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/coldpost/coldpost/internal/config"
	"github.com/coldpost/coldpost/internal/domain"
)

// =============================================================================
// SMTP POOL TESTS
// =============================================================================

type stubConn struct {
	sends  int32
	closes int32
}

func (c *stubConn) Send(from string, to []string, msg io.WriterTo) error {
	atomic.AddInt32(&c.sends, 1)
	return nil
}

func (c *stubConn) Close() error {
	atomic.AddInt32(&c.closes, 1)
	return nil
}

func testPool(cfg config.SMTPPoolConfig) (*Pool, *[]*stubConn) {
	conns := &[]*stubConn{}
	p := New(cfg)
	p.SetDialFunc(func(host string, port int, username, password string, secure bool) (gomail.SendCloser, error) {
		c := &stubConn{}
		*conns = append(*conns, c)
		return c, nil
	})
	return p, conns
}

func testAccount() *domain.SmtpAccount {
	return &domain.SmtpAccount{ID: "acct-1", Host: "smtp.example.com", Port: 587, Username: "u", Secure: true}
}

func poolCfg() config.SMTPPoolConfig {
	return config.SMTPPoolConfig{
		MaxPoolSize:    2,
		IdleTimeoutSec: 300,
		MaxConnections: 2,
		MaxMessages:    100,
		RateLimit:      1000,
	}
}

func TestAcquireRelease_ReuseMetrics(t *testing.T) {
	p, conns := testPool(poolCfg())
	defer p.ShutdownAll()
	ctx := context.Background()

	tr, err := p.Acquire(ctx, testAccount(), "pw")
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	p.Release("acct-1", tr)

	tr2, err := p.Acquire(ctx, testAccount(), "pw")
	if err != nil {
		t.Fatalf("second Acquire() error: %v", err)
	}
	p.Release("acct-1", tr2)

	if len(*conns) != 1 {
		t.Errorf("dialed %d connections, want 1 (reuse)", len(*conns))
	}
	m := p.Metrics()
	if m.Opened != 1 || m.Hits != 1 || m.Misses != 1 {
		t.Errorf("metrics = %+v, want opened=1 hits=1 misses=1", m)
	}
	if m.HitRate != 0.5 {
		t.Errorf("hit rate = %v, want 0.5", m.HitRate)
	}
	if m.Live != 1 || m.Active != 0 {
		t.Errorf("live/active = %d/%d, want 1/0", m.Live, m.Active)
	}
}

func TestAcquire_BlocksAtCeiling(t *testing.T) {
	cfg := poolCfg()
	cfg.MaxPoolSize = 1
	p, _ := testPool(cfg)
	defer p.ShutdownAll()

	tr, err := p.Acquire(context.Background(), testAccount(), "pw")
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx, testAccount(), "pw"); err == nil {
		t.Fatal("Acquire() beyond maxPoolSize should block until timeout")
	}

	// Freeing the slot lets the next acquire through.
	p.Release("acct-1", tr)
	tr2, err := p.Acquire(context.Background(), testAccount(), "pw")
	if err != nil {
		t.Fatalf("Acquire() after release error: %v", err)
	}
	p.Release("acct-1", tr2)
}

func TestAcquire_RecyclesAfterMaxMessages(t *testing.T) {
	cfg := poolCfg()
	cfg.MaxMessages = 1
	p, conns := testPool(cfg)
	defer p.ShutdownAll()
	ctx := context.Background()

	tr, err := p.Acquire(ctx, testAccount(), "pw")
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	m := gomail.NewMessage()
	m.SetHeader("From", "a@x.com")
	m.SetHeader("To", "b@y.com")
	m.SetBody("text/html", "<p>hi</p>")
	if err := tr.Send(m); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	p.Release("acct-1", tr)

	// Message budget exhausted: the pooled connection is closed and a fresh
	// one dialed.
	if _, err := p.Acquire(ctx, testAccount(), "pw"); err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if len(*conns) != 2 {
		t.Errorf("dialed %d connections, want 2 (recycle)", len(*conns))
	}
	if got := atomic.LoadInt32(&(*conns)[0].closes); got != 1 {
		t.Errorf("first connection closed %d times, want 1", got)
	}
}

func TestDiscard_ClosesTransport(t *testing.T) {
	p, conns := testPool(poolCfg())
	defer p.ShutdownAll()

	tr, err := p.Acquire(context.Background(), testAccount(), "pw")
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	p.Discard("acct-1", tr)

	if got := atomic.LoadInt32(&(*conns)[0].closes); got != 1 {
		t.Errorf("discarded connection closed %d times, want 1", got)
	}
	if m := p.Metrics(); m.Live != 0 || m.Active != 0 {
		t.Errorf("live/active = %d/%d after discard, want 0/0", m.Live, m.Active)
	}
}

func TestReapIdle(t *testing.T) {
	p, conns := testPool(poolCfg())
	defer p.ShutdownAll()

	tr, err := p.Acquire(context.Background(), testAccount(), "pw")
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	p.Release("acct-1", tr)

	p.reapIdle(time.Now().Add(time.Hour))

	if got := atomic.LoadInt32(&(*conns)[0].closes); got != 1 {
		t.Errorf("idle connection closed %d times after reap, want 1", got)
	}
	if m := p.Metrics(); m.Live != 0 {
		t.Errorf("live = %d after reap, want 0", m.Live)
	}
}

func TestShutdownAll_ClosesEachTransportOnce(t *testing.T) {
	p, conns := testPool(poolCfg())
	ctx := context.Background()

	t1, err := p.Acquire(ctx, testAccount(), "pw")
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	t2, err := p.Acquire(ctx, testAccount(), "pw")
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	p.Release("acct-1", t1)
	p.Release("acct-1", t2)

	p.ShutdownAll()
	p.ShutdownAll()

	for i, c := range *conns {
		if got := atomic.LoadInt32(&c.closes); got != 1 {
			t.Errorf("connection %d closed %d times, want exactly 1", i, got)
		}
	}
}

func TestRateLimit_RespectsContext(t *testing.T) {
	b := newTokenBucket(1)

	// First token is available immediately.
	if err := b.wait(context.Background()); err != nil {
		t.Fatalf("wait() error: %v", err)
	}

	// Bucket empty, refill takes a full second: a short deadline must win.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := b.wait(ctx); err == nil {
		t.Fatal("wait() should fail when the context expires before refill")
	}
}

func TestVerify(t *testing.T) {
	p, conns := testPool(poolCfg())
	defer p.ShutdownAll()

	if err := p.Verify(testAccount(), "pw"); err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if got := atomic.LoadInt32(&(*conns)[0].closes); got != 1 {
		t.Errorf("verify connection closed %d times, want 1", got)
	}
}
