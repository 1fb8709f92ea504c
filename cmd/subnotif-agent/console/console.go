// Package console provides the interactive command line of subnotif-agent.
package console

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/chzyer/readline"

	"github.com/AdianComits/netopeer2/pkg/agent"
	"github.com/AdianComits/netopeer2/pkg/datastore"
	"github.com/AdianComits/netopeer2/pkg/subscription"
	"github.com/AdianComits/netopeer2/pkg/tree"
)

// Console runs operator commands against a running agent.
type Console struct {
	agent *agent.Agent
	mem   *datastore.Memory
	rl    *readline.Instance
	out   io.Writer
}

// New creates a console reading from the terminal.
func New(a *agent.Agent, mem *datastore.Memory) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "agent> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{agent: a, mem: mem, rl: rl, out: rl.Stdout()}, nil
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
		if c.Exec(line) {
			cancel()
			return
		}
	}
}

// Exec runs one command line. It returns true when the console should
// exit.
func (c *Console) Exec(line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()
	case "subs", "ls":
		c.cmdSubscriptions()
	case "show":
		c.cmdShow(args)
	case "sessions":
		c.cmdSessions()
	case "filters":
		c.cmdFilters()
	case "streams":
		c.cmdStreams()
	case "publish", "pub":
		c.cmdPublish(args)
	case "get":
		c.cmdGet(args)
	case "set":
		c.cmdSet(args)
	case "del":
		c.cmdDelete(args)
	case "kill":
		c.cmdKill(args)
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Exiting...")
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
Agent Commands:
  Subscriptions:
    subs                           - List active subscriptions
    show <id>                      - Show operational state of a subscription
    kill <id>                      - Terminate a subscription
    sessions                       - List control sessions
    filters                        - List named filters

  Datastore:
    streams                        - List event streams
    publish <stream> <event> [k=v] - Publish an event record
    get <datastore> [path]         - Print a subtree
    set <datastore> <path> <value> - Set a leaf
    del <datastore> <path>         - Delete a node

  quit                             - Exit the agent`)
}

func (c *Console) cmdSubscriptions() {
	states := c.agent.Manager().States()
	if len(states) == 0 {
		fmt.Fprintln(c.out, "No active subscriptions")
		return
	}
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tOWNER\tKIND\tFILTER\tSENT\tEXCLUDED\tSTOP")
	for _, s := range states {
		stop := "-"
		if !s.StopTime.IsZero() {
			stop = s.StopTime.Format(time.RFC3339)
		}
		filter := s.Filter
		if filter == "" {
			filter = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%s\n", s.ID, s.Owner, s.Tag, filter, s.Sent, s.Excluded, stop)
	}
	w.Flush()
}

func (c *Console) cmdShow(args []string) {
	id, ok := c.parseID(args)
	if !ok {
		return
	}
	st, err := c.agent.Manager().State(id)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprint(c.out, st.Tree().String())
}

func (c *Console) cmdSessions() {
	sessions := c.agent.Sessions()
	if len(sessions) == 0 {
		fmt.Fprintln(c.out, "No sessions")
		return
	}
	for _, s := range sessions {
		user := "(no hello)"
		if id, ok := s.Identity(); ok {
			user = id.User
			if id.Privileged {
				user += " [privileged]"
			}
		}
		fmt.Fprintf(c.out, "  %s  %-21s  %s\n", s.ID(), s.RemoteAddr(), user)
	}
}

func (c *Console) cmdFilters() {
	names := c.agent.Filters().Names()
	slices.Sort(names)
	if len(names) == 0 {
		fmt.Fprintln(c.out, "No named filters")
		return
	}
	for _, name := range names {
		f, err := c.agent.Filters().Resolve(name)
		if err != nil {
			continue
		}
		fmt.Fprintf(c.out, "  %-16s %s\n", name, f)
	}
}

func (c *Console) cmdStreams() {
	for _, name := range c.mem.StreamNames() {
		info, err := c.mem.Stream(name)
		if err != nil {
			continue
		}
		replay := "no replay"
		if info.Replay {
			replay = "replay"
			if !info.Oldest.IsZero() {
				replay += " since " + info.Oldest.Format(time.RFC3339)
			}
		}
		fmt.Fprintf(c.out, "  %-16s %s\n", name, replay)
	}
}

func (c *Console) cmdPublish(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: publish <stream> <event> [key=value ...]")
		return
	}
	event := tree.New(args[1])
	for _, kv := range args[2:] {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			fmt.Fprintf(c.out, "Error: %q is not key=value\n", kv)
			return
		}
		event.Add(tree.Leaf(k, parseValue(v)))
	}
	at, err := c.mem.Publish(args[0], event)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Published %s on %s at %s\n", args[1], args[0], at.Format(time.RFC3339Nano))
}

func (c *Console) cmdGet(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "Usage: get <datastore> [path]")
		return
	}
	path := "/"
	if len(args) > 1 {
		path = args[1]
	}
	n, err := c.mem.Get(context.Background(), args[0], path)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprint(c.out, n.String())
}

func (c *Console) cmdSet(args []string) {
	if len(args) < 3 {
		fmt.Fprintln(c.out, "Usage: set <datastore> <path> <value>")
		return
	}
	if err := c.mem.Set(args[0], args[1], parseValue(strings.Join(args[2:], " "))); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Set %s %s\n", args[0], args[1])
}

func (c *Console) cmdDelete(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: del <datastore> <path>")
		return
	}
	if err := c.mem.Delete(args[0], args[1]); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Deleted %s %s\n", args[0], args[1])
}

func (c *Console) cmdKill(args []string) {
	id, ok := c.parseID(args)
	if !ok {
		return
	}
	if err := c.agent.Manager().Terminate(id, subscription.ReasonKilled); err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Subscription %d killed\n", id)
}

func (c *Console) parseID(args []string) (uint32, bool) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "Usage: <command> <subscription-id>")
		return 0, false
	}
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Fprintf(c.out, "Error: invalid subscription id %q\n", args[0])
		return 0, false
	}
	return uint32(id), true
}

// parseValue turns console input into a leaf value: integers, floats and
// booleans are typed, anything else stays a string.
func parseValue(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
