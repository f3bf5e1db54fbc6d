// Package smtppool maintains keyed pools of live SMTP transports, one pool
// per sending account. Pools bound concurrency per account, reuse
// connections across sends, reap idle transports, and rate-limit message
// throughput per account.
package smtppool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coldpost/coldpost/internal/config"
	"github.com/coldpost/coldpost/internal/domain"
	"github.com/coldpost/coldpost/internal/pkg/logger"
)

// Pool manages per-account transport pools.
type Pool struct {
	cfg  config.SMTPPoolConfig
	dial DialFunc
	log  *logger.Logger

	mu       sync.Mutex
	accounts map[string]*accountPool

	opened int64
	closed int64
	active int64
	hits   int64
	misses int64

	stop     chan struct{}
	stopOnce sync.Once
}

type accountPool struct {
	slots   chan struct{}
	dialSem chan struct{}
	bucket  *tokenBucket

	mu   sync.Mutex
	idle []*Transport
}

// Metrics is a point-in-time snapshot of pool counters.
type Metrics struct {
	Opened  int64   `json:"opened"`
	Closed  int64   `json:"closed"`
	Live    int64   `json:"live"`
	Active  int64   `json:"active"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hitRate"`
}

// New creates the pool and starts the idle reaper.
func New(cfg config.SMTPPoolConfig) *Pool {
	p := &Pool{
		cfg:      cfg,
		dial:     defaultDial,
		log:      logger.Component("smtppool"),
		accounts: make(map[string]*accountPool),
		stop:     make(chan struct{}),
	}
	go p.reapLoop()
	return p
}

// SetDialFunc replaces the SMTP dialer. Tests use this to inject a stub.
func (p *Pool) SetDialFunc(dial DialFunc) { p.dial = dial }

func (p *Pool) poolFor(accountID string) *accountPool {
	p.mu.Lock()
	defer p.mu.Unlock()
	ap, ok := p.accounts[accountID]
	if !ok {
		ap = &accountPool{
			slots:   make(chan struct{}, p.cfg.MaxPoolSize),
			dialSem: make(chan struct{}, p.cfg.MaxConnections),
			bucket:  newTokenBucket(p.cfg.RateLimit),
		}
		p.accounts[accountID] = ap
	}
	return ap
}

// Acquire returns an exclusive transport for the account, blocking while all
// maxPoolSize slots are checked out. Reused connections past their
// maxMessages budget are recycled with a fresh dial.
func (p *Pool) Acquire(ctx context.Context, account *domain.SmtpAccount, password string) (*Transport, error) {
	ap := p.poolFor(account.ID)

	select {
	case ap.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire transport for %s: %w", account.ID, ctx.Err())
	}

	if err := ap.bucket.wait(ctx); err != nil {
		<-ap.slots
		return nil, fmt.Errorf("rate limit wait for %s: %w", account.ID, err)
	}

	for {
		ap.mu.Lock()
		if n := len(ap.idle); n > 0 {
			t := ap.idle[n-1]
			ap.idle = ap.idle[:n-1]
			ap.mu.Unlock()

			if t.msgCount >= p.cfg.MaxMessages {
				p.closeTransport(t)
				continue
			}
			p.count(func() { p.hits++; p.active++ })
			return t, nil
		}
		ap.mu.Unlock()
		break
	}

	ap.dialSem <- struct{}{}
	sc, err := p.dial(account.Host, account.Port, account.Username, password, account.Secure)
	<-ap.dialSem
	if err != nil {
		<-ap.slots
		return nil, fmt.Errorf("dial %s:%d: %w", account.Host, account.Port, err)
	}

	p.count(func() { p.misses++; p.opened++; p.active++ })
	p.log.Debug("opened transport", "account_id", account.ID, "host", account.Host)
	return &Transport{sc: sc, lastUsed: time.Now()}, nil
}

// Release returns a healthy transport to its account pool.
func (p *Pool) Release(accountID string, t *Transport) {
	ap := p.poolFor(accountID)
	t.lastUsed = time.Now()

	ap.mu.Lock()
	ap.idle = append(ap.idle, t)
	ap.mu.Unlock()

	p.count(func() { p.active-- })
	<-ap.slots
}

// Discard closes a transport instead of returning it. Senders call this
// after a transport-level error so the next send dials fresh.
func (p *Pool) Discard(accountID string, t *Transport) {
	ap := p.poolFor(accountID)
	p.closeTransport(t)
	p.count(func() { p.active-- })
	<-ap.slots
}

func (p *Pool) closeTransport(t *Transport) {
	if err := t.close(); err != nil {
		p.log.Warn("close transport", "error", err.Error())
	}
	p.count(func() { p.closed++ })
}

func (p *Pool) count(fn func()) {
	p.mu.Lock()
	fn()
	p.mu.Unlock()
}

// Metrics reports connection reuse counters across all accounts.
func (p *Pool) Metrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()

	m := Metrics{
		Opened: p.opened,
		Closed: p.closed,
		Live:   p.opened - p.closed,
		Active: p.active,
		Hits:   p.hits,
		Misses: p.misses,
	}
	if total := p.hits + p.misses; total > 0 {
		m.HitRate = float64(p.hits) / float64(total)
	}
	return m
}

func (p *Pool) reapLoop() {
	interval := p.cfg.IdleTimeout() / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.reapIdle(time.Now())
		case <-p.stop:
			return
		}
	}
}

// reapIdle closes idle transports that outlived the idle timeout.
func (p *Pool) reapIdle(now time.Time) {
	p.mu.Lock()
	pools := make([]*accountPool, 0, len(p.accounts))
	for _, ap := range p.accounts {
		pools = append(pools, ap)
	}
	p.mu.Unlock()

	for _, ap := range pools {
		ap.mu.Lock()
		kept := ap.idle[:0]
		var reaped []*Transport
		for _, t := range ap.idle {
			if now.Sub(t.lastUsed) > p.cfg.IdleTimeout() {
				reaped = append(reaped, t)
			} else {
				kept = append(kept, t)
			}
		}
		ap.idle = kept
		ap.mu.Unlock()

		for _, t := range reaped {
			p.closeTransport(t)
		}
	}
}

// ShutdownAll stops the reaper and closes every pooled transport. Transport
// close is idempotent, so a transport still checked out when its worker
// discards it is not double-closed.
func (p *Pool) ShutdownAll() {
	p.stopOnce.Do(func() { close(p.stop) })

	p.mu.Lock()
	pools := make([]*accountPool, 0, len(p.accounts))
	for _, ap := range p.accounts {
		pools = append(pools, ap)
	}
	p.mu.Unlock()

	for _, ap := range pools {
		ap.mu.Lock()
		idle := ap.idle
		ap.idle = nil
		ap.mu.Unlock()
		for _, t := range idle {
			p.closeTransport(t)
		}
	}
	p.log.Info("smtp pool shut down")
}
