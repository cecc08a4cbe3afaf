package spawn

import "regexp"

// Match is the result of a successful Expect. It holds the matched region and
// every capture group with both raw-byte and text accessors; group numbering
// follows the pattern (0 is the full match). Groups that did not participate
// are nil.
type Match struct {
	pattern *regexp.Regexp
	groups  [][]byte
}

// matchFromIndex builds a Match from FindSubmatchIndex output, copying out of
// data so the cache can be mutated afterwards.
func matchFromIndex(re *regexp.Regexp, data []byte, loc []int) *Match {
	groups := make([][]byte, len(loc)/2)
	for i := range groups {
		start, end := loc[2*i], loc[2*i+1]
		if start < 0 {
			continue
		}
		groups[i] = append([]byte(nil), data[start:end]...)
	}
	return &Match{pattern: re, groups: groups}
}

// Bytes returns the full matched region.
func (m *Match) Bytes() []byte { return m.groups[0] }

// Text returns the full matched region as a string.
func (m *Match) Text() string { return string(m.groups[0]) }

// GroupCount reports the number of capture groups in the pattern, excluding
// the full match.
func (m *Match) GroupCount() int { return len(m.groups) - 1 }

// Group returns capture group i, nil when out of range or unparticipating.
func (m *Match) Group(i int) []byte {
	if i < 0 || i >= len(m.groups) {
		return nil
	}
	return m.groups[i]
}

// GroupText returns capture group i as a string, "" when absent.
func (m *Match) GroupText(i int) string { return string(m.Group(i)) }

// Named returns the capture group with the given name, nil when the pattern
// has no such group or it did not participate.
func (m *Match) Named(name string) []byte {
	i := m.pattern.SubexpIndex(name)
	if i < 0 {
		return nil
	}
	return m.Group(i)
}

// NamedText returns the named capture group as a string, "" when absent.
func (m *Match) NamedText(name string) string { return string(m.Named(name)) }

// Pattern returns the regexp that produced this match.
func (m *Match) Pattern() *regexp.Regexp { return m.pattern }
