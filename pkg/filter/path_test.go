package filter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdianComits/netopeer2/pkg/tree"
)

func TestPathMatch(t *testing.T) {
	tests := []struct {
		expr    string
		payload *tree.Node
		want    bool
	}{
		{"/alarm", alarm("major", "eth0"), true},
		{"/event", alarm("major", "eth0"), false},
		{"/*", alarm("major", "eth0"), true},
		{"/alarm/severity", alarm("major", "eth0"), true},
		{"/alarm[severity='major']", alarm("major", "eth0"), true},
		{"/alarm[severity='major']", alarm("minor", "eth0"), false},
		{"/alarm[severity!='major']", alarm("minor", "eth0"), true},
		{`/alarm[severity="major" or severity="critical"]`, alarm("critical", "eth0"), true},
		{"/alarm[severity='major' and resource='eth1']", alarm("major", "eth0"), false},
		{"/alarm[details/text='link down']", alarm("minor", "eth0"), true},
		{"/alarm[cause]", alarm("minor", "eth0"), false},
		{"//text", alarm("minor", "eth0"), true},
		{"//text[.='fan']", alarm("minor", "eth0"), false},
		{"/interfaces/interface[mtu=9000]", interfaces(), true},
		{"/interfaces/interface[3]", interfaces(), false},
		{"/event | /alarm", alarm("minor", "eth0"), true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			f, err := NewPath(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, Match(f, tt.payload))
		})
	}
}

func TestPathParseErrors(t *testing.T) {
	for _, expr := range []string{
		"",
		"alarm",
		"/alarm/..",
		"/alarm[",
		"/alarm[severity=]",
		"/alarm[severity='major]",
		"/alarm[0]",
		"/alarm]",
		"/",
	} {
		t.Run(expr, func(t *testing.T) {
			_, err := NewPath(expr)
			assert.True(t, errors.Is(err, ErrInvalidFilter), "NewPath(%q) error = %v", expr, err)
		})
	}
}

func TestPathApplyKeepsListEntriesDistinct(t *testing.T) {
	f, err := NewPath("/interfaces/interface[name='eth1']/mtu")
	require.NoError(t, err)

	got, ok := Apply(f, interfaces())
	require.True(t, ok)

	want := tree.New("interfaces", tree.New("interface", tree.Leaf("mtu", 9000)))
	assert.True(t, tree.Equal(want, got), "got:\n%s", got)
}

func TestPathApplyPositional(t *testing.T) {
	f, err := NewPath("/interfaces/interface[2]")
	require.NoError(t, err)

	got, ok := Apply(f, interfaces())
	require.True(t, ok)
	require.Len(t, got.Children, 1)
	assert.Equal(t, "eth1", got.Children[0].Find("name").Value)
}

func TestPathApplyNoSelection(t *testing.T) {
	f, err := NewPath("/interfaces/interface[name='eth9']")
	require.NoError(t, err)

	got, ok := Apply(f, interfaces())
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestPathApplyDescendantUnion(t *testing.T) {
	f, err := NewPath("//name | /interfaces/interface/name")
	require.NoError(t, err)

	got, ok := Apply(f, interfaces())
	require.True(t, ok)
	assert.Len(t, got.ChildrenNamed("interface"), 2)
	for _, entry := range got.Children {
		assert.Len(t, entry.Children, 1)
	}
}
