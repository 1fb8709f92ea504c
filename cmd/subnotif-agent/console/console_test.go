package console

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdianComits/netopeer2/pkg/access"
	"github.com/AdianComits/netopeer2/pkg/agent"
	"github.com/AdianComits/netopeer2/pkg/datastore"
	"github.com/AdianComits/netopeer2/pkg/filter"
	"github.com/AdianComits/netopeer2/pkg/stream"
	"github.com/AdianComits/netopeer2/pkg/subscription"
	"github.com/AdianComits/netopeer2/pkg/tree"
	"github.com/AdianComits/netopeer2/pkg/wire"
)

func newTestConsole(t *testing.T) (*Console, *bytes.Buffer) {
	t.Helper()
	mem, err := datastore.NewMemory(datastore.DefaultMemoryConfig())
	require.NoError(t, err)
	filters := filter.NewStore()
	mgr := subscription.NewManager(subscription.DefaultConfig(),
		stream.New(stream.Config{Datastore: mem, Filters: filters}))
	a, err := agent.New(agent.Config{Manager: mgr, Filters: filters})
	require.NoError(t, err)
	t.Cleanup(func() {
		mgr.Close()
		_ = mem.Close()
	})

	var out bytes.Buffer
	return &Console{agent: a, mem: mem, out: &out}, &out
}

func TestConsoleDatastoreCommands(t *testing.T) {
	c, out := newTestConsole(t)

	assert.False(t, c.Exec("set running system/hostname edge9"))
	assert.Contains(t, out.String(), "Set running system/hostname")

	n, err := c.mem.Get(context.Background(), datastore.Running, "system/hostname")
	require.NoError(t, err)
	assert.Equal(t, "edge9", n.Value)

	out.Reset()
	c.Exec("get running /system")
	assert.Contains(t, out.String(), "edge9")

	out.Reset()
	c.Exec("del running system/hostname")
	assert.Contains(t, out.String(), "Deleted")

	out.Reset()
	c.Exec("set nowhere a/b 1")
	assert.Contains(t, out.String(), "Error:")
}

func TestConsoleSubscriptionCommands(t *testing.T) {
	c, out := newTestConsole(t)

	c.Exec("subs")
	assert.Contains(t, out.String(), "No active subscriptions")

	res, err := c.agent.Manager().Establish(context.Background(), subscription.EstablishRequest{
		Identity: access.Identity{User: "alice"},
		Tag:      subscription.TagStream,
		Params:   stream.Params{Stream: datastore.NETCONF},
		Sender:   subscription.SenderFunc(func(wire.Notification) error { return nil }),
	})
	require.NoError(t, err)

	out.Reset()
	c.Exec("subs")
	assert.Contains(t, out.String(), "alice")
	assert.Contains(t, out.String(), "stream")

	out.Reset()
	c.Exec("publish NETCONF link-down if=eth0 speed=1000")
	assert.Contains(t, out.String(), "Published link-down on NETCONF")

	out.Reset()
	c.Exec("show 999")
	assert.Contains(t, out.String(), "Error:")

	out.Reset()
	c.Exec("kill abc")
	assert.Contains(t, out.String(), "invalid subscription id")

	out.Reset()
	c.Exec("kill " + tree.ValueString(res.ID))
	assert.Contains(t, out.String(), "killed")
	assert.Equal(t, 0, c.agent.Manager().Len())
}

func TestConsoleMisc(t *testing.T) {
	c, out := newTestConsole(t)

	c.Exec("streams")
	assert.Contains(t, out.String(), "NETCONF")

	out.Reset()
	c.Exec("sessions")
	assert.Contains(t, out.String(), "No sessions")

	require.NoError(t, c.agent.Filters().Register("alarms", mustPath(t, "/alarm")))
	out.Reset()
	c.Exec("filters")
	assert.Contains(t, out.String(), "alarms")

	out.Reset()
	c.Exec("bogus")
	assert.Contains(t, out.String(), "Unknown command")

	assert.True(t, c.Exec("quit"))
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, int64(42), parseValue("42"))
	assert.Equal(t, 1.5, parseValue("1.5"))
	assert.Equal(t, true, parseValue("true"))
	assert.Equal(t, "eth0", parseValue("eth0"))
}

func mustPath(t *testing.T, expr string) *filter.Filter {
	t.Helper()
	f, err := filter.NewPath(expr)
	require.NoError(t, err)
	return f
}
