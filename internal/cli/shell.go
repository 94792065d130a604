package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/vovakirdan/wirechat-relay/internal/peer"
)

// Chat is the node surface the shell drives.
type Chat interface {
	Username() string
	SendDirect(ctx context.Context, target, text string) (peer.Route, error)
	SendChannel(ctx context.Context, channel, text string) (map[string]peer.Route, error)
	Join(ctx context.Context, channel string) error
	PeerNames() []string
	Channels() []string
	History() *peer.History
}

// ErrUsage reports a malformed command line.
var ErrUsage = errors.New("usage")

// Command is one parsed shell line.
type Command struct {
	Name   string
	Target string
	Text   string
}

const helpText = `Commands:
  /dm <user> <text>      send a direct message
  /ch <channel> <text>   send to a channel
  /join <channel>        join or create a channel
  /peers                 list online peers
  /channels              list channels
  /history <context>     show a conversation (dm_<user> or a channel)
  /help                  show this help
  /quit                  leave`

// Parse splits a shell line into a command. Lines not starting with "/" are
// rejected.
func Parse(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return Command{}, fmt.Errorf("%w: commands start with /", ErrUsage)
	}

	name, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)
	cmd := Command{Name: strings.ToLower(name)}

	switch cmd.Name {
	case "dm", "ch":
		target, text, _ := strings.Cut(rest, " ")
		cmd.Target, cmd.Text = target, strings.TrimSpace(text)
		if cmd.Target == "" || cmd.Text == "" {
			return Command{}, fmt.Errorf("%w: /%s <target> <text>", ErrUsage, cmd.Name)
		}
	case "join", "history":
		if rest == "" || strings.Contains(rest, " ") {
			return Command{}, fmt.Errorf("%w: /%s <name>", ErrUsage, cmd.Name)
		}
		cmd.Target = rest
	case "peers", "channels", "help", "quit":
	default:
		return Command{}, fmt.Errorf("%w: unknown command /%s", ErrUsage, cmd.Name)
	}
	return cmd, nil
}

// Shell is a line-oriented chat front end.
type Shell struct {
	chat Chat
	in   *bufio.Scanner
	out  io.Writer
}

// NewShell reads commands from in and writes to out.
func NewShell(chat Chat, in io.Reader, out io.Writer) *Shell {
	return &Shell{chat: chat, in: bufio.NewScanner(in), out: out}
}

// Run processes lines until /quit, EOF or ctx is done.
func (s *Shell) Run(ctx context.Context) error {
	fmt.Fprintf(s.out, "Logged in as %s. Type /help for commands.\n", s.chat.Username())
	for s.in.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(s.in.Text())
		if line == "" {
			continue
		}

		cmd, err := Parse(line)
		if err != nil {
			fmt.Fprintln(s.out, err)
			continue
		}
		if cmd.Name == "quit" {
			fmt.Fprintln(s.out, "Bye!")
			return nil
		}
		if err := s.Exec(ctx, cmd); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
	return s.in.Err()
}

// Exec runs a single command.
func (s *Shell) Exec(ctx context.Context, cmd Command) error {
	switch cmd.Name {
	case "dm":
		route, err := s.chat.SendDirect(ctx, cmd.Target, cmd.Text)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "sent to %s (%s)\n", cmd.Target, route)

	case "ch":
		routes, err := s.chat.SendChannel(ctx, cmd.Target, cmd.Text)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "sent to %s: %s\n", cmd.Target, summarize(routes))

	case "join":
		if err := s.chat.Join(ctx, cmd.Target); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "joined %s\n", cmd.Target)

	case "peers":
		fmt.Fprintf(s.out, "online: %s\n", list(s.chat.PeerNames()))

	case "channels":
		fmt.Fprintf(s.out, "channels: %s\n", list(s.chat.Channels()))

	case "history":
		entries := s.chat.History().Conversation(cmd.Target)
		if len(entries) == 0 {
			fmt.Fprintf(s.out, "no messages in %s\n", cmd.Target)
			return nil
		}
		for _, e := range entries {
			fmt.Fprintln(s.out, FormatEntry(s.chat.Username(), e))
		}

	case "help":
		fmt.Fprintln(s.out, helpText)

	default:
		return fmt.Errorf("%w: unknown command /%s", ErrUsage, cmd.Name)
	}
	return nil
}

// FormatEntry renders one conversation line as seen by self.
func FormatEntry(self string, e peer.Entry) string {
	sender := e.From
	if sender == self {
		sender = "Me"
	}
	prefix := ""
	if e.IsOffline {
		prefix = "[Offline] "
	}
	return fmt.Sprintf("[%s]: %s%s", sender, prefix, e.Message.Message)
}

func list(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}

func summarize(routes map[string]peer.Route) string {
	if len(routes) == 0 {
		return "no other members online"
	}
	names := make([]string, 0, len(routes))
	for name := range routes {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+routes[name].String())
	}
	return strings.Join(parts, " ")
}
