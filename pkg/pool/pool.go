// Package pool multiplexes one logical client over any number of relay
// sessions. Subscriptions registered with the pool are mirrored to every
// session, present and future, and publishes fan out to all of them.
package pool

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/nircnet/nirc/pkg/nostr/envelopes"
	"github.com/nircnet/nirc/pkg/nostr/event"
	"github.com/nircnet/nirc/pkg/nostr/filter"
	"github.com/nircnet/nirc/pkg/nostr/normalize"
	"github.com/nircnet/nirc/pkg/relay"
	"github.com/nircnet/nirc/pkg/slog"
	"github.com/puzpuzpuz/xsync/v2"
)

var log, _ = slog.New(os.Stderr)

// RelayStatus is one row of the pool's connection snapshot.
type RelayStatus struct {
	URL    string
	Status relay.Status
}

// Option configures a pool.
type Option func(*P)

// WithStatusHandler registers a callback invoked on every session status
// transition. The callback may be invoked concurrently from several
// sessions.
func WithStatusHandler(h func(url string, status relay.Status)) Option {
	return func(p *P) { p.onStatus = h }
}

// WithSessionOptions appends options passed through to every session the
// pool creates, used by tests to substitute the dialer.
func WithSessionOptions(opts ...relay.Option) Option {
	return func(p *P) { p.sessionOpts = append(p.sessionOpts, opts...) }
}

// P is a pool of relay sessions behind one subscription and publish
// surface.
type P struct {
	ctx         context.Context
	cancel      context.CancelFunc
	onStatus    func(url string, status relay.Status)
	sessionOpts []relay.Option

	sessions *xsync.MapOf[string, *relay.Session]
	subs     *xsync.MapOf[string, *relay.Subscription]
	serial   atomic.Int64
}

// New creates an empty pool. Sessions are added with Connect.
func New(ctx context.Context, opts ...Option) *P {
	ctx, cancel := context.WithCancel(ctx)
	p := &P{
		ctx:      ctx,
		cancel:   cancel,
		sessions: xsync.NewMapOf[*relay.Session](),
		subs:     xsync.NewMapOf[*relay.Subscription](),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Connect ensures a session exists for the url and is running. Connecting
// to an already known url is a no-op, so callers can pass their full relay
// list blindly. The normalized url is returned; "" means the url was
// unusable and nothing was added.
func (p *P) Connect(url string) string {
	nm := normalize.URL(url)
	if nm == "" {
		log.W.F("ignoring unusable relay url '%s'", url)
		return ""
	}
	if _, ok := p.sessions.Load(nm); ok {
		return nm
	}
	opts := append([]relay.Option{}, p.sessionOpts...)
	if p.onStatus != nil {
		opts = append(opts, relay.WithStatusHandler(func(s *relay.Session) {
			p.onStatus(s.URL, s.Status())
		}))
	}
	fresh := relay.NewSession(p.ctx, nm, opts...)
	s, loaded := p.sessions.LoadOrStore(nm, fresh)
	if loaded {
		// lost the race to another Connect; the session we built never ran.
		fresh.Close()
		return nm
	}
	// a new session inherits every live subscription before it dials, so
	// its first connection already carries the full REQ set.
	p.subs.Range(func(_ string, sub *relay.Subscription) bool {
		s.Subscribe(sub)
		return true
	})
	go s.Run()
	return nm
}

// Disconnect closes and removes the session for the url, if any.
func (p *P) Disconnect(url string) {
	nm := normalize.URL(url)
	if s, ok := p.sessions.LoadAndDelete(nm); ok {
		s.Close()
	}
}

// Close shuts down every session. The pool is not reusable afterwards.
func (p *P) Close() {
	p.cancel()
	p.sessions.Range(func(nm string, s *relay.Session) bool {
		p.sessions.Delete(nm)
		s.Close()
		return true
	})
}

// Subscribe registers filters with every session in the pool and returns
// the pool-unique subscription id. The callbacks may fire concurrently and
// may see the same event once per relay that carries it.
func (p *P) Subscribe(ff filter.S, onEvent func(ev *event.T, relayURL string),
	onEOSE func(relayURL, subscriptionID string)) string {

	id := fmt.Sprintf("nirc_%d", p.serial.Add(1))
	sub := &relay.Subscription{
		ID:      id,
		Filters: ff,
		OnEvent: onEvent,
		OnEOSE:  onEOSE,
	}
	p.subs.Store(id, sub)
	p.sessions.Range(func(_ string, s *relay.Session) bool {
		s.Subscribe(sub)
		return true
	})
	return id
}

// Unsubscribe cancels a subscription on every session.
func (p *P) Unsubscribe(id string) {
	if _, ok := p.subs.LoadAndDelete(id); !ok {
		return
	}
	p.sessions.Range(func(_ string, s *relay.Session) bool {
		s.Unsubscribe(id)
		return true
	})
}

// Publish fans a signed event out to every session. Sessions that are down
// queue the frame for their next connection.
func (p *P) Publish(ev *event.T) {
	env := &envelopes.Event{Event: ev}
	p.sessions.Range(func(_ string, s *relay.Session) bool {
		s.SendEnvelope(env)
		return true
	})
}

// Relays returns a point-in-time snapshot of every session's state.
func (p *P) Relays() []RelayStatus {
	var out []RelayStatus
	p.sessions.Range(func(nm string, s *relay.Session) bool {
		out = append(out, RelayStatus{URL: nm, Status: s.Status()})
		return true
	})
	return out
}

// Size returns the number of sessions in the pool.
func (p *P) Size() int {
	return p.sessions.Size()
}
