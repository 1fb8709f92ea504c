// Package version provides control protocol version parsing and
// negotiation.
//
// A client offers a version in Hello; the agent accepts any offer with the
// same major version and answers with the version it speaks. Agents
// advertise the major version over mDNS.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// Current is the protocol version implemented by this agent.
	Current = "1.0"

	// CurrentMajor is the major component of Current, as advertised.
	CurrentMajor = "1"
)

// ErrIncompatible is returned for an offer with a different major version.
var ErrIncompatible = errors.New("incompatible protocol version")

// Version represents a parsed "major.minor" protocol version.
type Version struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string. A bare "major" parses with
// minor 0.
func Parse(s string) (Version, error) {
	majorStr, minorStr, hasMinor := strings.Cut(s, ".")

	major, err := strconv.ParseUint(majorStr, 10, 16)
	if err != nil || majorStr == "" {
		return Version{}, fmt.Errorf("invalid version %q: bad major component", s)
	}
	if !hasMinor {
		return Version{Major: uint16(major)}, nil
	}

	minor, err := strconv.ParseUint(minorStr, 10, 16)
	if err != nil || minorStr == "" {
		return Version{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}

	return Version{Major: uint16(major), Minor: uint16(minor)}, nil
}

// String returns the version as "major.minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible returns true if the other version has the same major version.
func (v Version) Compatible(other Version) bool {
	return v.Major == other.Major
}

// Negotiate checks a peer's offered version against Current. An empty
// offer means the peer did not say and is accepted.
func Negotiate(offered string) (Version, error) {
	current, _ := Parse(Current)
	if offered == "" {
		return current, nil
	}
	v, err := Parse(offered)
	if err != nil {
		return Version{}, err
	}
	if !current.Compatible(v) {
		return Version{}, fmt.Errorf("%w: %s (agent speaks %s)", ErrIncompatible, v, current)
	}
	return current, nil
}
