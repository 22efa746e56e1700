package pool_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nircnet/nirc/pkg/nostr/event"
	"github.com/nircnet/nirc/pkg/nostr/filter"
	"github.com/nircnet/nirc/pkg/nostr/kind"
	"github.com/nircnet/nirc/pkg/pool"
	"github.com/nircnet/nirc/pkg/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSec = "1797f6f1d10593548b566ba32e81577aa4bc990eb0f16556bf884f1af4b17c25"

type scriptConn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mx     sync.Mutex
	writes []string
}

func newScriptConn() *scriptConn {
	return &scriptConn{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *scriptConn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return errors.New("closed")
	default:
	}
	c.mx.Lock()
	c.writes = append(c.writes, string(data))
	c.mx.Unlock()
	return nil
}

func (c *scriptConn) ReadMessage(ctx context.Context, buf io.Writer) error {
	select {
	case frame := <-c.in:
		_, _ = buf.Write(frame)
		return nil
	case <-c.closed:
		return errors.New("closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *scriptConn) Ping() error { return nil }

func (c *scriptConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *scriptConn) written() []string {
	c.mx.Lock()
	defer c.mx.Unlock()
	return append([]string(nil), c.writes...)
}

// connFarm hands each dialed url its own scripted connection.
type connFarm struct {
	mx    sync.Mutex
	conns map[string]*scriptConn
}

func newConnFarm() *connFarm {
	return &connFarm{conns: make(map[string]*scriptConn)}
}

func (f *connFarm) dial(_ context.Context, url string) (relay.Conn, error) {
	f.mx.Lock()
	defer f.mx.Unlock()
	c, ok := f.conns[url]
	if !ok {
		c = newScriptConn()
		f.conns[url] = c
	}
	return c, nil
}

func (f *connFarm) conn(url string) *scriptConn {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.conns[url]
}

func (f *connFarm) waitConn(t *testing.T, url string) *scriptConn {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c := f.conn(url); c != nil {
			return c
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no connection ever dialed for %s", url)
	return nil
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for " + what)
}

func TestConnectIsIdempotentAcrossSpellings(t *testing.T) {
	farm := newConnFarm()
	p := pool.New(context.Background(),
		pool.WithSessionOptions(relay.WithDialer(farm.dial)))
	defer p.Close()

	assert.Equal(t, "wss://relay.damus.io", p.Connect("wss://relay.damus.io"))
	assert.Equal(t, "wss://relay.damus.io", p.Connect("relay.damus.io"))
	assert.Equal(t, "wss://relay.damus.io", p.Connect("WSS://relay.damus.io/"))
	assert.Equal(t, "", p.Connect("   "))
	assert.Equal(t, 1, p.Size())
}

func TestSubscriptionMirroredToAllSessions(t *testing.T) {
	farm := newConnFarm()
	p := pool.New(context.Background(),
		pool.WithSessionOptions(relay.WithDialer(farm.dial)))
	defer p.Close()

	p.Connect("wss://one.example")
	id := p.Subscribe(filter.S{{Kinds: []kind.T{kind.ChannelCreation}}},
		func(*event.T, string) {}, nil)
	assert.True(t, strings.HasPrefix(id, "nirc_"))

	// a relay added after the subscription still receives its REQ.
	p.Connect("wss://two.example")

	for _, url := range []string{"wss://one.example", "wss://two.example"} {
		conn := farm.waitConn(t, url)
		waitFor(t, func() bool {
			for _, w := range conn.written() {
				if strings.Contains(w, `"REQ","`+id+`"`) {
					return true
				}
			}
			return false
		}, "REQ on "+url)
	}
}

func TestPublishFansOut(t *testing.T) {
	farm := newConnFarm()
	p := pool.New(context.Background(),
		pool.WithSessionOptions(relay.WithDialer(farm.dial)))
	defer p.Close()

	p.Connect("wss://one.example")
	p.Connect("wss://two.example")

	ev, err := event.New(kind.ChannelMessage, "hello", nil, testSec)
	require.NoError(t, err)
	p.Publish(ev)

	for _, url := range []string{"wss://one.example", "wss://two.example"} {
		conn := farm.waitConn(t, url)
		waitFor(t, func() bool {
			for _, w := range conn.written() {
				if strings.Contains(w, string(ev.ID)) {
					return true
				}
			}
			return false
		}, "publish on "+url)
	}
}

func TestEventsFromAnySessionReachTheCallback(t *testing.T) {
	farm := newConnFarm()
	p := pool.New(context.Background(),
		pool.WithSessionOptions(relay.WithDialer(farm.dial)))
	defer p.Close()

	delivered := make(chan string, 4)
	id := p.Subscribe(filter.S{{Kinds: []kind.T{kind.TextNote}}},
		func(_ *event.T, relayURL string) { delivered <- relayURL }, nil)

	p.Connect("wss://one.example")
	p.Connect("wss://two.example")

	ev, err := event.New(kind.TextNote, "hi", nil, testSec)
	require.NoError(t, err)
	frame := []byte(`["EVENT","` + id + `",` + ev.String() + `]`)

	farm.waitConn(t, "wss://one.example").in <- frame
	farm.waitConn(t, "wss://two.example").in <- frame

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case url := <-delivered:
			seen[url] = true
		case <-time.After(2 * time.Second):
			t.Fatal("event not delivered from both relays")
		}
	}
	assert.True(t, seen["wss://one.example"])
	assert.True(t, seen["wss://two.example"])
}

func TestDisconnectRemovesSession(t *testing.T) {
	farm := newConnFarm()
	p := pool.New(context.Background(),
		pool.WithSessionOptions(relay.WithDialer(farm.dial)))
	defer p.Close()

	p.Connect("wss://one.example")
	p.Connect("wss://two.example")
	require.Equal(t, 2, p.Size())

	p.Disconnect("one.example")
	assert.Equal(t, 1, p.Size())

	relays := p.Relays()
	require.Len(t, relays, 1)
	assert.Equal(t, "wss://two.example", relays[0].URL)
}

func TestStatusHandlerSeesConnections(t *testing.T) {
	farm := newConnFarm()
	var mx sync.Mutex
	statuses := map[string]relay.Status{}
	p := pool.New(context.Background(),
		pool.WithSessionOptions(relay.WithDialer(farm.dial)),
		pool.WithStatusHandler(func(url string, st relay.Status) {
			mx.Lock()
			statuses[url] = st
			mx.Unlock()
		}))
	defer p.Close()

	p.Connect("wss://one.example")
	waitFor(t, func() bool {
		mx.Lock()
		defer mx.Unlock()
		return statuses["wss://one.example"] == relay.StatusConnected
	}, "connected status callback")
}
