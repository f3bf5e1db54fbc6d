package smtppool

import (
	"crypto/tls"
	"fmt"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/coldpost/coldpost/internal/domain"
)

// Transport timeouts. gomail's Dialer blocks without bound, so dialing races
// against connectTimeout+greetingTimeout and sends race against
// socketTimeout.
const (
	connectTimeout  = 60 * time.Second
	greetingTimeout = 30 * time.Second
	socketTimeout   = 75 * time.Second
)

// DialFunc opens an authenticated SMTP connection. Tests swap in a stub.
type DialFunc func(host string, port int, username, password string, secure bool) (gomail.SendCloser, error)

// Transport is one live SMTP connection checked out of the pool. It is
// exclusive to a single send at a time.
type Transport struct {
	sc       gomail.SendCloser
	msgCount int
	lastUsed time.Time
	closed   bool
}

// Send delivers one message over the connection and advances the message
// counter used for the per-connection reconnect cap.
func (t *Transport) Send(m *gomail.Message) error {
	errCh := make(chan error, 1)
	go func() { errCh <- gomail.Send(t.sc, m) }()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
		t.msgCount++
		return nil
	case <-time.After(socketTimeout):
		return fmt.Errorf("smtp send timed out after %s", socketTimeout)
	}
}

func (t *Transport) close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return t.sc.Close()
}

func defaultDial(host string, port int, username, password string, secure bool) (gomail.SendCloser, error) {
	d := gomail.NewDialer(host, port, username, password)
	d.SSL = secure && port == 465
	if secure {
		d.TLSConfig = &tls.Config{ServerName: host}
	}

	type dialResult struct {
		sc  gomail.SendCloser
		err error
	}
	ch := make(chan dialResult, 1)
	go func() {
		sc, err := d.Dial()
		ch <- dialResult{sc, err}
	}()

	select {
	case res := <-ch:
		return res.sc, res.err
	case <-time.After(connectTimeout + greetingTimeout):
		return nil, fmt.Errorf("smtp dial %s:%d timed out", host, port)
	}
}

// Verify dials the account once and closes immediately. Account create and
// test endpoints use it to prove the credentials before anything is saved.
func (p *Pool) Verify(account *domain.SmtpAccount, password string) error {
	sc, err := p.dial(account.Host, account.Port, account.Username, password, account.Secure)
	if err != nil {
		return fmt.Errorf("verify smtp account %s: %w", account.Host, err)
	}
	return sc.Close()
}
