// nirc is a line-oriented IRC-style chat client for nostr: public chat
// channels, gift-wrapped direct messages, and a slash command surface over
// a pool of relay connections.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/nircnet/nirc/pkg/command"
	"github.com/nircnet/nirc/pkg/identity"
	"github.com/nircnet/nirc/pkg/nostr/eventid"
	"github.com/nircnet/nirc/pkg/pool"
	"github.com/nircnet/nirc/pkg/relay"
	"github.com/nircnet/nirc/pkg/slog"
	"github.com/nircnet/nirc/pkg/store"
)

var log, chk = slog.New(os.Stderr)

type config struct {
	Relay    []string `arg:"-r,--relay,separate" help:"relay to connect to (repeatable); default is the built-in list"`
	Profile  string   `arg:"-p,--profile" default:"nirc" help:"profile directory name under the home directory"`
	Nick     string   `arg:"-n,--nick" help:"set nickname on startup"`
	LogLevel string   `arg:"--loglevel" default:"warn" help:"log level [off,fatal,error,warn,info,debug,trace]"`
}

var args config

var (
	AppName = "nirc"
	Version = "v0.1.0"
)

func (config) Version() string { return AppName + " " + Version }

func levelFromName(name string) int32 {
	for i, spec := range []string{
		"off", "fatal", "error", "warn", "info", "debug", "trace",
	} {
		if strings.EqualFold(name, spec) {
			return int32(i)
		}
	}
	return slog.Warn
}

// view tracks the active pane across the input loop and the printer
// goroutine.
type view struct {
	mx sync.Mutex
	v  command.View
}

func (w *view) get() command.View {
	w.mx.Lock()
	defer w.mx.Unlock()
	return w.v
}

func (w *view) set(v command.View) {
	w.mx.Lock()
	w.v = v
	w.mx.Unlock()
}

func main() {
	arg.MustParse(&args)
	slog.SetLogLevel(levelFromName(args.LogLevel))

	home, err := os.UserHomeDir()
	if chk.E(err) {
		os.Exit(1)
	}
	profileDir := filepath.Join(home, "."+args.Profile)
	if err = os.MkdirAll(profileDir, 0700); chk.E(err) {
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relays := pool.New(ctx, pool.WithStatusHandler(
		func(url string, status relay.Status) {
			switch status {
			case relay.StatusConnected:
				fmt.Printf("-- Connected to %s\n", url)
			case relay.StatusDisconnected:
				fmt.Printf("-- Disconnected from %s\n", url)
			}
		}))
	defer relays.Close()

	st := store.New(relays, filepath.Join(profileDir, "identity.json"),
		store.WithStatusSink(func(line string) {
			fmt.Printf("-- %s\n", line)
		}))

	if err = st.InitIdentity(); chk.E(err) {
		os.Exit(1)
	}
	if args.Nick != "" {
		st.SetNick(args.Nick)
	}
	st.ConnectToRelays(args.Relay...)

	active := &view{v: command.View{Kind: command.ViewStatus}}
	go printLoop(ctx, st, active)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if line == "/quit" || line == "/q" {
				break
			}
			res := command.Process(line, commandContext(st, relays, active))
			switch res.Kind {
			case command.Error:
				fmt.Printf("-- %s\n", res.Message)
			case command.Clear:
				fmt.Print("\033[2J\033[H")
			}
			continue
		}
		// plain text goes to whatever is on screen.
		switch v := active.get(); v.Kind {
		case command.ViewChannel:
			st.SendMessage(v.ChannelID, line)
		case command.ViewDM:
			st.SendDM(v.PubKey, line)
		default:
			fmt.Println("-- Join a channel first: /join #channel")
		}
	}
	fmt.Println("-- Goodbye")
}

// commandContext snapshots the store surface for one command invocation.
func commandContext(st *store.T, relays *pool.P, active *view) *command.Context {
	id := st.Identity()
	ctx := &command.Context{
		View:   active.get(),
		SetView: func(v command.View) { active.set(v) },
		Status:  st.Status,
		JoinChannel: func(nameOrID string) {
			st.JoinChannel(nameOrID)
			if ch, ok := findJoined(st, nameOrID); ok {
				active.set(command.View{
					Kind:      command.ViewChannel,
					ChannelID: ch.ID,
				})
			}
		},
		PartChannel: func(channelID eventid.T) {
			st.PartChannel(channelID)
			active.set(command.View{Kind: command.ViewStatus})
		},
		SendMessage:  st.SendMessage,
		SendAction:   st.SendAction,
		SendDM:       st.SendDM,
		SetNick:      st.SetNick,
		ImportKey:    st.ImportKey,
		ConnectRelay: func(url string) { relays.Connect(url) },
		ResolveUser: func(nick string) (string, bool) {
			for _, c := range st.Contacts() {
				if strings.EqualFold(c.Name, nick) {
					return c.PubKey, true
				}
			}
			return "", false
		},
		ChannelUserNames: func(channelID eventid.T) []string {
			var names []string
			for _, pk := range st.ChannelUsers(channelID) {
				if p, ok := st.Profile(pk); ok && p.Name != "" {
					names = append(names, p.Name)
					continue
				}
				names = append(names, identity.ShortenPubKey(pk))
			}
			return names
		},
	}
	if id != nil {
		ctx.Nick = id.Nick
		ctx.PubKey = id.PublicKey
	}
	return ctx
}

// findJoined locates the joined channel a join command referred to, by id
// or by name.
func findJoined(st *store.T, nameOrID string) (store.Channel, bool) {
	name := strings.TrimPrefix(nameOrID, "#")
	for _, ch := range st.JoinedChannels() {
		if string(ch.ID) == nameOrID || strings.EqualFold(ch.Name, name) {
			return ch, true
		}
	}
	return store.Channel{}, false
}

// printLoop renders new entries of the active pane as they arrive. Each
// pane remembers how much of it was already printed, so switching views
// replays the other conversation from where it left off.
func printLoop(ctx context.Context, st *store.T, active *view) {
	printed := make(map[string]int)
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		switch v := active.get(); v.Kind {
		case command.ViewChannel:
			key := "c:" + string(v.ChannelID)
			msgs := st.Messages(v.ChannelID)
			for _, m := range msgs[min(printed[key], len(msgs)):] {
				printMessage(m)
			}
			printed[key] = len(msgs)
		case command.ViewDM:
			key := "d:" + v.PubKey
			dms := st.DirectMessages(v.PubKey)
			for _, m := range dms[min(printed[key], len(dms)):] {
				fmt.Printf("[%s] <%s> %s\n",
					m.CreatedAt.Time().Format("15:04"), m.Nick, m.Content)
			}
			printed[key] = len(dms)
		}
	}
}

func printMessage(m store.Message) {
	when := m.CreatedAt.Time().Format("15:04")
	switch {
	case m.System:
		fmt.Printf("[%s] -- %s\n", when, m.Content)
	case m.Action:
		fmt.Printf("[%s] * %s %s\n", when, m.Nick, m.Content)
	default:
		fmt.Printf("[%s] <%s> %s\n", when, m.Nick, m.Content)
	}
}
