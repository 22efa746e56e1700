// Package command is the slash-command processor. It is a pure function
// over a context of callbacks; it owns no state and performs no I/O of its
// own, so the whole command table is testable with plain fakes.
package command

import (
	"fmt"
	"strings"

	"github.com/nircnet/nirc/pkg/nostr/eventid"
	"github.com/nircnet/nirc/pkg/nostr/nip19"
)

// ViewKind says what the user is currently looking at.
type ViewKind int

const (
	ViewStatus ViewKind = iota
	ViewChannel
	ViewDM
)

// View is the active pane: the status window, one channel, or one DM
// conversation.
type View struct {
	Kind      ViewKind
	ChannelID eventid.T
	PubKey    string
}

// Kind classifies a command outcome.
type Kind int

const (
	// Handled: the command ran; any feedback went to the status sink.
	Handled Kind = iota
	// Clear: the front end should clear the active message pane.
	Clear
	// Error: user misuse; Message holds the one-line explanation.
	Error
)

// Result is what Process returns. Errors are recoverable usage mistakes,
// never faults.
type Result struct {
	Kind    Kind
	Message string
}

func errf(format string, a ...interface{}) Result {
	return Result{Kind: Error, Message: fmt.Sprintf(format, a...)}
}

var handled = Result{Kind: Handled}

// Context is everything a command may touch, supplied by the front end and
// the store.
type Context struct {
	View   View
	Nick   string
	PubKey string

	JoinChannel  func(nameOrID string)
	PartChannel  func(channelID eventid.T)
	SendMessage  func(channelID eventid.T, content string)
	SendAction   func(channelID eventid.T, action string)
	SendDM       func(pubKey, content string)
	SetNick      func(nick string)
	SetView      func(v View)
	Status       func(line string)
	ImportKey    func(secret string) bool
	ConnectRelay func(url string)

	// ResolveUser maps a nickname to a pubkey, reporting whether any
	// known profile carries that name.
	ResolveUser func(nick string) (pubKey string, ok bool)

	// ChannelUserNames lists display names seen speaking in a channel.
	ChannelUserNames func(channelID eventid.T) []string
}

var helpLines = []string{
	"--- nirc commands ---",
	"/join #channel    - Join or create a channel",
	"/part             - Leave current channel",
	"/msg <user> <msg> - Send a direct message",
	"/nick <name>      - Change your nickname",
	"/me <action>      - Send an action message",
	"/slap [target]    - Slap someone with a trout",
	"/hug [target]     - Hug someone",
	"/who              - List users in channel",
	"/clear            - Clear the message pane",
	"/key <nsec>       - Import a private key",
	"/relay <url>      - Connect to a relay",
	"/help             - Show this help",
}

// Process runs one slash command. Input not starting with "/" is not a
// command and is reported as such; routing plain text to the active
// conversation is the front end's business.
func Process(input string, ctx *Context) Result {
	if !strings.HasPrefix(input, "/") {
		return errf("Not a command")
	}
	parts := strings.Fields(input[1:])
	if len(parts) == 0 {
		return errf("Not a command")
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]
	argStr := strings.Join(args, " ")

	switch cmd {
	case "join", "j":
		if argStr == "" {
			return errf("Usage: /join #channel")
		}
		ctx.JoinChannel(argStr)
		return handled

	case "part", "leave":
		if ctx.View.Kind != ViewChannel {
			return errf("Not in a channel")
		}
		ctx.PartChannel(ctx.View.ChannelID)
		return handled

	case "msg", "m":
		if len(args) < 2 {
			return errf("Usage: /msg <npub/nick> <message>")
		}
		target := args[0]
		message := strings.Join(args[1:], " ")
		pubKey, ok := resolveTarget(target, ctx)
		if !ok {
			return errf("Unknown user: %s", target)
		}
		ctx.SendDM(pubKey, message)
		ctx.SetView(View{Kind: ViewDM, PubKey: pubKey})
		return handled

	case "nick":
		if argStr == "" {
			return errf("Usage: /nick <new_nick>")
		}
		ctx.SetNick(argStr)
		return handled

	case "me":
		if argStr == "" {
			return errf("Usage: /me <action>")
		}
		return channelAction(ctx, argStr)

	case "slap":
		target := argStr
		if target == "" {
			target = "everyone"
		}
		return channelAction(ctx,
			fmt.Sprintf("slaps %s around a bit with a large trout", target))

	case "hug":
		target := argStr
		if target == "" {
			target = "everyone"
		}
		return channelAction(ctx, fmt.Sprintf("hugs %s", target))

	case "who", "w":
		if ctx.View.Kind != ViewChannel {
			return errf("Not in a channel")
		}
		names := ctx.ChannelUserNames(ctx.View.ChannelID)
		if len(names) == 0 {
			ctx.Status("No users seen in this channel yet")
		} else {
			ctx.Status("Users in channel: " + strings.Join(names, ", "))
		}
		return handled

	case "clear":
		return Result{Kind: Clear}

	case "help":
		for _, line := range helpLines {
			ctx.Status(line)
		}
		return handled

	case "key":
		if argStr == "" {
			return errf("Usage: /key <nsec1...>")
		}
		if !ctx.ImportKey(argStr) {
			return errf("Invalid nsec key")
		}
		return handled

	case "relay":
		if argStr == "" {
			return errf("Usage: /relay wss://relay.example.com")
		}
		ctx.Status("Connecting to relay: " + argStr)
		ctx.ConnectRelay(argStr)
		return handled
	}
	return errf("Unknown command: /%s", cmd)
}

func channelAction(ctx *Context, action string) Result {
	if ctx.View.Kind != ViewChannel {
		return errf("Not in a channel")
	}
	ctx.SendAction(ctx.View.ChannelID, action)
	return handled
}

// resolveTarget accepts an npub, a 64 digit hex pubkey, or a known
// nickname.
func resolveTarget(target string, ctx *Context) (string, bool) {
	if strings.HasPrefix(target, nip19.PrefixPub) {
		prefix, pkHex, err := nip19.Decode(target)
		if err != nil || prefix != nip19.PrefixPub {
			return "", false
		}
		return pkHex, true
	}
	if len(target) == 64 {
		return target, true
	}
	if ctx.ResolveUser != nil {
		return ctx.ResolveUser(target)
	}
	return "", false
}
