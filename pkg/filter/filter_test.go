package filter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdianComits/netopeer2/pkg/tree"
)

func alarm(severity, resource string) *tree.Node {
	return tree.New("alarm",
		tree.Leaf("severity", severity),
		tree.Leaf("resource", resource),
		tree.New("details", tree.Leaf("text", "link down")),
	)
}

func interfaces() *tree.Node {
	return tree.New("interfaces",
		tree.New("interface", tree.Leaf("name", "eth0"), tree.Leaf("mtu", 1500), tree.Leaf("enabled", true)),
		tree.New("interface", tree.Leaf("name", "eth1"), tree.Leaf("mtu", 9000), tree.Leaf("enabled", false)),
	)
}

func TestSubtreeMatch(t *testing.T) {
	tests := []struct {
		name    string
		filter  *tree.Node
		payload *tree.Node
		want    bool
	}{
		{"root selection", tree.New("alarm"), alarm("major", "eth0"), true},
		{"root name mismatch", tree.New("event"), alarm("major", "eth0"), false},
		{"wildcard root", tree.New("*", tree.Leaf("severity", "major")), alarm("major", "eth0"), true},
		{"content match", tree.New("alarm", tree.Leaf("severity", "major")), alarm("major", "eth0"), true},
		{"content mismatch", tree.New("alarm", tree.Leaf("severity", "major")), alarm("minor", "eth0"), false},
		{"all content must match", tree.New("alarm", tree.Leaf("severity", "major"), tree.Leaf("resource", "eth1")), alarm("major", "eth0"), false},
		{"selection leaf present", tree.New("alarm", tree.New("details")), alarm("minor", "eth0"), true},
		{"selection leaf absent", tree.New("alarm", tree.New("cause")), alarm("minor", "eth0"), false},
		{"containment", tree.New("alarm", tree.New("details", tree.Leaf("text", "link down"))), alarm("minor", "eth0"), true},
		{"containment mismatch", tree.New("alarm", tree.New("details", tree.Leaf("text", "fan"))), alarm("minor", "eth0"), false},
		{"numeric value compared as text", tree.New("interfaces", tree.New("interface", tree.Leaf("mtu", "9000"))), interfaces(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewSubtree(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, Match(f, tt.payload))
		})
	}
}

func TestSubtreeApplySelectsListEntry(t *testing.T) {
	f, err := NewSubtree(tree.New("interfaces",
		tree.New("interface", tree.Leaf("name", "eth1"), tree.New("mtu")),
	))
	require.NoError(t, err)

	got, ok := Apply(f, interfaces())
	require.True(t, ok)

	want := tree.New("interfaces",
		tree.New("interface", tree.Leaf("name", "eth1"), tree.Leaf("mtu", 9000)),
	)
	assert.True(t, tree.Equal(want, got), "got:\n%s", got)
}

func TestNilFilterMatchesEverything(t *testing.T) {
	assert.True(t, Match(nil, alarm("minor", "x")))
	assert.False(t, Match(nil, nil))

	data := interfaces()
	got, ok := Apply(nil, data)
	require.True(t, ok)
	assert.True(t, tree.Equal(data, got))
	assert.NotSame(t, data, got)
}

func TestNewSubtreeRejectsUnnamedNodes(t *testing.T) {
	_, err := NewSubtree(nil)
	assert.True(t, errors.Is(err, ErrInvalidFilter))

	_, err = NewSubtree(tree.New("alarm", tree.Leaf("", "x")))
	assert.True(t, errors.Is(err, ErrInvalidFilter))
}

func TestNewSubtreeClonesInput(t *testing.T) {
	root := tree.New("alarm", tree.Leaf("severity", "major"))
	f, err := NewSubtree(root)
	require.NoError(t, err)

	root.Children[0].Value = "minor"
	assert.True(t, Match(f, alarm("major", "eth0")))
}

func TestParseRef(t *testing.T) {
	_, err := Parse(Ref{Path: "/a", Subtree: tree.New("a")})
	assert.True(t, errors.Is(err, ErrInvalidFilter), "path and subtree together")

	f, err := Parse(Ref{})
	require.NoError(t, err)
	assert.Nil(t, f)

	f, err = Parse(Ref{Path: "/alarm"})
	require.NoError(t, err)
	assert.Equal(t, KindPath, f.Kind)

	_, err = Parse(Ref{Name: "x"})
	assert.Error(t, err)
}

func TestRefIdentity(t *testing.T) {
	assert.Equal(t, "major-alarms", Ref{Name: "major-alarms"}.Identity())
	assert.Equal(t, "/alarm", Ref{Path: "/alarm"}.Identity())
	assert.Equal(t, `alarm{severity="major"}`, Ref{Subtree: tree.New("alarm", tree.Leaf("severity", "major"))}.Identity())
	assert.True(t, Ref{}.IsZero())
}
