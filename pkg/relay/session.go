// Package relay implements one client session against one relay endpoint:
// the connect/backoff/reconnect state machine, the outbound queue that
// buffers frames while the socket is down, and the inbound dispatch that
// gates every delivered event behind signature verification.
package relay

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/nircnet/nirc/pkg/nostr/connection"
	"github.com/nircnet/nirc/pkg/nostr/envelopes"
	"github.com/nircnet/nirc/pkg/nostr/event"
	"github.com/nircnet/nirc/pkg/nostr/filter"
	"github.com/nircnet/nirc/pkg/slog"
	"github.com/puzpuzpuz/xsync/v2"
)

var log, chk = slog.New(os.Stderr)

// Status is the connection state of a session.
type Status int32

const (
	StatusConnecting Status = iota
	StatusConnected
	StatusDisconnected
	StatusErrored
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	case StatusErrored:
		return "error"
	case StatusClosed:
		return "closed"
	}
	return "unknown"
}

// Reconnect backoff: exponential with a ceiling, no jitter.
const (
	InitialBackoff    = time.Second
	BackoffMultiplier = 2
	MaxBackoff        = 60 * time.Second

	pingInterval = 29 * time.Second
	dialTimeout  = 7 * time.Second
)

// ReconnectDelay returns the wait before reconnect attempt number attempt
// (zero based): 1s, 2s, 4s, ... capped at 60s.
func ReconnectDelay(attempt int) time.Duration {
	d := InitialBackoff
	for i := 0; i < attempt; i++ {
		d *= BackoffMultiplier
		if d >= MaxBackoff {
			return MaxBackoff
		}
	}
	return d
}

// Subscription is one logical query with live delivery. The same value is
// mirrored into every session of a pool; the callbacks may be invoked
// concurrently from different sessions and more than once per event id (one
// relay each), deduplication being the store's responsibility.
type Subscription struct {
	ID      string
	Filters filter.S

	// OnEvent receives every verified matching event.
	OnEvent func(ev *event.T, relayURL string)

	// OnEOSE, when set, is called when a relay reports the end of its
	// stored events for this subscription.
	OnEOSE func(relayURL, subscriptionID string)
}

// Conn is the transport a session drives. Satisfied by *connection.C;
// substituted in tests.
type Conn interface {
	WriteMessage(data []byte) error
	ReadMessage(ctx context.Context, buf io.Writer) error
	Ping() error
	Close() error
}

// Dialer opens a Conn to a url.
type Dialer func(ctx context.Context, url string) (Conn, error)

func defaultDialer(ctx context.Context, url string) (Conn, error) {
	return connection.New(ctx, url, http.Header{})
}

// Session is one physical connection to one relay endpoint. It is created
// by the pool, reconnects itself until explicitly closed, and never
// surfaces transport faults except through its status.
type Session struct {
	URL string

	dial     Dialer
	ctx      context.Context
	cancel   context.CancelFunc
	onStatus func(*Session)

	mx       sync.Mutex
	status   Status
	attempts int
	pending  [][]byte // frames queued while not connected, FIFO
	conn     Conn

	subs *xsync.MapOf[string, *Subscription]

	kick chan struct{} // nudges the writer without blocking senders
}

// Option configures a session.
type Option func(*Session)

// WithDialer substitutes the websocket dialer, used by tests.
func WithDialer(d Dialer) Option {
	return func(s *Session) { s.dial = d }
}

// WithStatusHandler registers a callback invoked after every status
// transition.
func WithStatusHandler(h func(*Session)) Option {
	return func(s *Session) { s.onStatus = h }
}

// NewSession prepares a session for the endpoint. Run must be called to
// start connecting.
func NewSession(ctx context.Context, url string, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		URL:    url,
		dial:   defaultDialer,
		ctx:    ctx,
		cancel: cancel,
		status: StatusConnecting,
		subs:   xsync.NewMapOf[*Subscription](),
		kick:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status returns the current connection state.
func (s *Session) Status() Status {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.status
}

// Attempts returns the reconnect attempt count since the last successful
// connection.
func (s *Session) Attempts() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.attempts
}

// QueueLen returns the number of frames waiting for a connection.
func (s *Session) QueueLen() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return len(s.pending)
}

func (s *Session) setStatus(st Status) {
	s.mx.Lock()
	changed := s.status != st && s.status != StatusClosed
	if changed {
		s.status = st
	}
	s.mx.Unlock()
	if changed && s.onStatus != nil {
		s.onStatus(s)
	}
}

// Send queues a frame for delivery, transmitting immediately when
// connected. It never blocks and never fails; frames sent while
// disconnected wait in the unbounded FIFO queue for the next connection.
func (s *Session) Send(frame []byte) {
	s.mx.Lock()
	s.pending = append(s.pending, frame)
	s.mx.Unlock()
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// SendEnvelope marshals and sends an envelope.
func (s *Session) SendEnvelope(env envelopes.E) {
	b, err := env.MarshalJSON()
	if chk.E(err) {
		return
	}
	log.T.F("{%s} -> %s", s.URL, string(b))
	s.Send(b)
}

// Subscribe registers a subscription with this session and issues its REQ
// if currently connected. Registered subscriptions are re-issued on every
// reconnect; relays are not trusted to remember them.
func (s *Session) Subscribe(sub *Subscription) {
	s.subs.Store(sub.ID, sub)
	if s.Status() == StatusConnected {
		s.SendEnvelope(&envelopes.Req{
			SubscriptionID: sub.ID,
			Filters:        sub.Filters,
		})
	}
}

// Unsubscribe removes a subscription and tells the relay, when reachable,
// to stop serving it. Nothing is queued for a down connection: the
// subscription will simply not be re-issued.
func (s *Session) Unsubscribe(id string) {
	s.subs.Delete(id)
	if s.Status() == StatusConnected {
		s.SendEnvelope(envelopes.Close(id))
	}
}

// Close tears the session down for good: terminal status, queue cleared,
// no further reconnects.
func (s *Session) Close() {
	s.cancel()
	s.mx.Lock()
	s.status = StatusClosed
	s.pending = nil
	s.attempts = 0
	conn := s.conn
	s.conn = nil
	s.mx.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	if s.onStatus != nil {
		s.onStatus(s)
	}
}

// Run drives the session until Close or context cancellation: dial,
// converse, back off, repeat. It is started once, by the pool, in its own
// goroutine.
func (s *Session) Run() {
	for {
		if s.ctx.Err() != nil {
			return
		}
		s.setStatus(StatusConnecting)

		dialCtx, cancel := context.WithTimeout(s.ctx, dialTimeout)
		conn, err := s.dial(dialCtx, s.URL)
		cancel()
		if err != nil {
			log.D.F("{%s} dial failed: %v", s.URL, err)
			s.setStatus(StatusErrored)
			if !s.waitBackoff() {
				return
			}
			continue
		}

		s.mx.Lock()
		s.conn = conn
		s.attempts = 0
		s.mx.Unlock()
		s.setStatus(StatusConnected)
		log.I.F("{%s} connected", s.URL)

		// queued frames go out first, then every registered subscription
		// is freshly issued to this connection.
		s.resubscribe()

		s.converse(conn)

		s.mx.Lock()
		s.conn = nil
		s.mx.Unlock()
		_ = conn.Close()
		if s.ctx.Err() != nil {
			return
		}
		log.I.F("{%s} disconnected", s.URL)
		s.setStatus(StatusDisconnected)
		if !s.waitBackoff() {
			return
		}
	}
}

// waitBackoff sleeps out the reconnect delay for the current attempt count,
// returning false when the session is closed meanwhile.
func (s *Session) waitBackoff() bool {
	s.mx.Lock()
	delay := ReconnectDelay(s.attempts)
	s.attempts++
	s.mx.Unlock()
	log.D.F("{%s} reconnecting in %v", s.URL, delay)
	select {
	case <-time.After(delay):
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Session) resubscribe() {
	s.subs.Range(func(_ string, sub *Subscription) bool {
		s.SendEnvelope(&envelopes.Req{
			SubscriptionID: sub.ID,
			Filters:        sub.Filters,
		})
		return true
	})
}

// converse runs the writer and ping loops for one connection and reads
// inbound frames until the connection fails.
func (s *Session) converse(conn Conn) {
	connCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	// a reader stuck mid-frame only unblocks when the socket goes away, so
	// a failed write or ping must close the connection, not just cancel.
	go func() {
		<-connCtx.Done()
		_ = conn.Close()
	}()

	// all writes go through this goroutine so the socket never sees
	// interleaved frames.
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		s.flush(conn)
		for {
			select {
			case <-s.kick:
				if !s.flush(conn) {
					cancel()
					return
				}
			case <-ticker.C:
				if err := conn.Ping(); err != nil {
					log.D.F("{%s} ping failed: %v", s.URL, err)
					cancel()
					return
				}
			case <-connCtx.Done():
				return
			}
		}
	}()

	buf := new(bytes.Buffer)
	for {
		buf.Reset()
		if err := conn.ReadMessage(connCtx, buf); err != nil {
			log.D.F("{%s} read failed: %v", s.URL, err)
			return
		}
		s.handleMessage(buf.Bytes())
	}
}

// flush writes out the pending queue in FIFO order; false means the
// connection is broken and unsent frames stay queued.
func (s *Session) flush(conn Conn) bool {
	for {
		s.mx.Lock()
		if len(s.pending) == 0 || s.status != StatusConnected {
			s.mx.Unlock()
			return true
		}
		frame := s.pending[0]
		s.mx.Unlock()

		if err := conn.WriteMessage(frame); err != nil {
			log.D.F("{%s} write failed: %v", s.URL, err)
			return false
		}

		s.mx.Lock()
		if len(s.pending) > 0 {
			s.pending = s.pending[1:]
		}
		s.mx.Unlock()
	}
}

// handleMessage parses one inbound frame and dispatches it. Unknown and
// malformed frames are dropped here; events that fail signature
// verification never reach a subscription callback.
func (s *Session) handleMessage(message []byte) {
	log.T.F("{%s} <- %s", s.URL, string(message))
	env := envelopes.ParseMessage(message)
	if env == nil {
		log.T.F("{%s} dropping unparseable frame", s.URL)
		return
	}

	switch e := env.(type) {
	case *envelopes.Event:
		sub, ok := s.subs.Load(e.SubscriptionID)
		if !ok {
			log.T.F("{%s} no subscription with id '%s'", s.URL,
				e.SubscriptionID)
			return
		}
		if !sub.Filters.Match(e.Event) {
			log.T.F("{%s} event %s does not match subscription %s",
				s.URL, e.Event.ID, e.SubscriptionID)
			return
		}
		if valid, err := e.Event.CheckSignature(); !valid {
			if err != nil {
				log.D.F("{%s} bad signature on %s: %v", s.URL,
					e.Event.ID, err)
			} else {
				log.D.F("{%s} bad signature on %s", s.URL, e.Event.ID)
			}
			return
		}
		sub.OnEvent(e.Event, s.URL)
	case envelopes.EOSE:
		if sub, ok := s.subs.Load(string(e)); ok && sub.OnEOSE != nil {
			sub.OnEOSE(s.URL, string(e))
		}
	case *envelopes.OK:
		// advisory; publishes are fire-and-forget.
		log.D.F("{%s} OK %s %v %s", s.URL, e.EventID, e.OK, e.Reason)
	case envelopes.Notice:
		log.I.F("{%s} NOTICE: %s", s.URL, string(e))
	}
}
