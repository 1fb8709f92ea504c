package access

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AdianComits/netopeer2/pkg/tree"
)

// ErrInvalidRule is returned for malformed rules.
var ErrInvalidRule = errors.New("invalid access rule")

// Action is the outcome of a rule.
type Action string

const (
	ActionPermit Action = "permit"
	ActionDeny   Action = "deny"
)

// Rule grants or denies access to payloads containing Path. A rule with no
// users and no groups applies to everyone. An empty path or "/" covers
// every payload.
type Rule struct {
	Name   string   `yaml:"name"`
	Users  []string `yaml:"users,omitempty"`
	Groups []string `yaml:"groups,omitempty"`
	Path   string   `yaml:"path,omitempty"`
	Action Action   `yaml:"action"`
}

func (r *Rule) appliesTo(id Identity) bool {
	if len(r.Users) == 0 && len(r.Groups) == 0 {
		return true
	}
	for _, u := range r.Users {
		if u == id.User || u == "*" {
			return true
		}
	}
	for _, g := range r.Groups {
		if id.InGroup(g) {
			return true
		}
	}
	return false
}

func (r *Rule) covers(payload *tree.Node) bool {
	segs := tree.SplitPath(r.Path)
	if len(segs) == 0 {
		return true
	}
	if payload == nil || (segs[0] != "*" && segs[0] != payload.Name) {
		return false
	}
	return payload.Find(tree.JoinPath(segs[1:])) != nil
}

// Rules is an ordered rule list: the first rule that applies to the
// identity and covers the payload decides. Rules is immutable once built.
type Rules struct {
	rules []Rule
	deflt Action
}

// NewRules validates rules and builds a checker. defaultAction applies
// when no rule matches; an empty default denies.
func NewRules(rules []Rule, defaultAction Action) (*Rules, error) {
	if defaultAction == "" {
		defaultAction = ActionDeny
	}
	if err := validateAction(defaultAction); err != nil {
		return nil, fmt.Errorf("default: %w", err)
	}
	out := make([]Rule, len(rules))
	for i, r := range rules {
		if err := validateAction(r.Action); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, r.Name, err)
		}
		if strings.ContainsAny(r.Path, "[]=") {
			return nil, fmt.Errorf("%w: rule %d (%s): path %q must be plain node names", ErrInvalidRule, i, r.Name, r.Path)
		}
		out[i] = r
	}
	return &Rules{rules: out, deflt: defaultAction}, nil
}

func validateAction(a Action) error {
	if a != ActionPermit && a != ActionDeny {
		return fmt.Errorf("%w: action %q", ErrInvalidRule, a)
	}
	return nil
}

// Permit applies the rules. Privileged identities are always permitted.
func (r *Rules) Permit(id Identity, payload *tree.Node) bool {
	if id.Privileged {
		return true
	}
	for i := range r.rules {
		rule := &r.rules[i]
		if rule.appliesTo(id) && rule.covers(payload) {
			return rule.Action == ActionPermit
		}
	}
	return r.deflt == ActionPermit
}

// Len returns the number of rules.
func (r *Rules) Len() int {
	return len(r.rules)
}

var _ Checker = (*Rules)(nil)
