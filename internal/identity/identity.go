// Package identity resolves candidate and party identity across differently
// shaped result sets: tally sheets, TCP assignments and historical exports.
package identity

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize folds a name for comparison: NFKC, upper case, single spaces.
func Normalize(name string) string {
	name = norm.NFKC.String(name)
	return strings.ToUpper(strings.Join(strings.Fields(name), " "))
}

// PartyOf returns the text inside a trailing parenthesis, e.g.
// "Smith (Liberal)" -> "Liberal". It returns "" when there is none.
func PartyOf(name string) string {
	name = strings.TrimSpace(name)
	if !strings.HasSuffix(name, ")") {
		return ""
	}
	open := strings.LastIndex(name, "(")
	if open < 0 {
		return ""
	}
	return strings.TrimSpace(name[open+1 : len(name)-1])
}

// BareName strips a trailing party parenthesis.
func BareName(name string) string {
	name = strings.TrimSpace(name)
	if PartyOf(name) == "" {
		return name
	}
	return strings.TrimSpace(name[:strings.LastIndex(name, "(")])
}

// HasParty reports whether label mentions party, case-insensitively.
// An empty party never matches.
func HasParty(label, party string) bool {
	p := Normalize(party)
	if p == "" {
		return false
	}
	return strings.Contains(Normalize(label), p)
}

// SameCandidate reports whether two labels name the same candidate, ignoring
// case, spacing and any trailing party parenthesis.
func SameCandidate(a, b string) bool {
	na, nb := Normalize(BareName(a)), Normalize(BareName(b))
	return na != "" && na == nb
}

// Assignment is one of the two candidates tracked for an electorate's
// two-candidate-preferred count.
type Assignment struct {
	Electorate    string `json:"electorate"`
	Position      int    `json:"position"`
	CandidateName string `json:"candidate_name"`
	Party         string `json:"party"`
}

// Label is the assignment's display label, "Name (Party)" when a party is known.
func (a Assignment) Label() string {
	if a.Party == "" {
		return a.CandidateName
	}
	return a.CandidateName + " (" + a.Party + ")"
}

// TCPLabels orders assignments by position and returns the two labels.
// Missing positions are taken from fallback.
func TCPLabels(assignments []Assignment, fallback [2]string) [2]string {
	sorted := append([]Assignment(nil), assignments...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })

	labels := fallback
	for _, a := range sorted {
		if a.Position < 1 || a.Position > 2 || a.CandidateName == "" {
			continue
		}
		labels[a.Position-1] = a.Label()
	}
	return labels
}

// PositionOf returns which TCP slot (0 or 1) a name belongs to, or -1.
func PositionOf(name string, labels [2]string) int {
	for i, l := range labels {
		if SameCandidate(name, l) {
			return i
		}
	}
	return -1
}
