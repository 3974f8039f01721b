// Package swing compares a booth's current two-candidate-preferred split
// against the same booth's result at the previous election.
//
// Historical exports carry only two party-denominated lines (the coalition
// line and the labor line), while the current count may pair a major party
// with an independent. Identity is therefore resolved by party label first,
// then by name, and only as a last resort by position.
package swing

import (
	"math"

	"github.com/amalfiblue/amalfiResults-sub000/internal/identity"
)

// Booth is one polling place's result from the previous election.
type Booth struct {
	Division       string  `json:"division_name"`
	PollingPlace   string  `json:"polling_place_name"`
	CoalitionLabel string  `json:"coalition_label"`
	CoalitionVotes int     `json:"coalition_votes"`
	CoalitionPct   float64 `json:"coalition_percentage"`
	LaborLabel     string  `json:"labor_label"`
	LaborVotes     int     `json:"labor_votes"`
	LaborPct       float64 `json:"labor_percentage"`
	TotalVotes     int     `json:"total_votes"`
}

// Current is a booth's present TCP split.
type Current struct {
	TCP1Pct  float64
	TCP2Pct  float64
	TCP1Name string
	TCP2Name string
}

// Config carries the party whose line anchors the party-match path.
type Config struct {
	AnchorParty string
}

// Method names the identity resolution that produced a swing.
type Method string

const (
	MethodParty      Method = "party"
	MethodName       Method = "name"
	MethodPositional Method = "positional"
)

// Result is a reconciled swing in percentage points. A positive value is a
// swing toward the candidate named in Toward.
type Result struct {
	Value  float64 `json:"value"`
	Method Method  `json:"method"`
	Toward string  `json:"toward"`
	// LowConfidence is set when candidate correspondence was assumed
	// from position rather than resolved.
	LowConfidence bool `json:"low_confidence"`
}

// Round2 rounds to two decimal places, halves away from zero.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func missing(x float64) bool {
	return x == 0 || math.IsNaN(x) || math.IsInf(x, 0)
}

// Reconcile computes the swing for one booth. It returns nil when the
// inputs are not comparable: no historical booth, or any percentage absent.
func Reconcile(cur Current, hist *Booth, cfg Config) *Result {
	if hist == nil {
		return nil
	}
	for _, pct := range []float64{cur.TCP1Pct, cur.TCP2Pct, hist.CoalitionPct, hist.LaborPct} {
		if missing(pct) {
			return nil
		}
	}

	if r := byParty(cur, hist, cfg.AnchorParty); r != nil {
		return r
	}
	if r := byName(cur, hist); r != nil {
		return r
	}

	return &Result{
		Value:         symmetric(cur.TCP1Pct, cur.TCP2Pct, hist.CoalitionPct, hist.LaborPct),
		Method:        MethodPositional,
		Toward:        cur.TCP1Name,
		LowConfidence: true,
	}
}

// byParty differences the anchor party's current share against its
// historical line.
func byParty(cur Current, hist *Booth, anchor string) *Result {
	var pct float64
	var name string
	switch {
	case identity.HasParty(cur.TCP1Name, anchor):
		pct, name = cur.TCP1Pct, cur.TCP1Name
	case identity.HasParty(cur.TCP2Name, anchor):
		pct, name = cur.TCP2Pct, cur.TCP2Name
	default:
		return nil
	}

	var histPct float64
	switch {
	case identity.HasParty(hist.CoalitionLabel, anchor):
		histPct = hist.CoalitionPct
	case identity.HasParty(hist.LaborLabel, anchor):
		histPct = hist.LaborPct
	default:
		return nil
	}
	return &Result{Value: Round2(pct - histPct), Method: MethodParty, Toward: name}
}

// byName matches the current candidates against the historical line labels,
// either directly or through the party in a "Name (Party)" label.
func byName(cur Current, hist *Booth) *Result {
	h1, h2 := hist.CoalitionPct, hist.LaborPct
	switch {
	case matches(cur.TCP1Name, hist.CoalitionLabel) && matches(cur.TCP2Name, hist.LaborLabel):
	case matches(cur.TCP1Name, hist.LaborLabel) && matches(cur.TCP2Name, hist.CoalitionLabel):
		h1, h2 = h2, h1
	default:
		return nil
	}
	return &Result{
		Value:  symmetric(cur.TCP1Pct, cur.TCP2Pct, h1, h2),
		Method: MethodName,
		Toward: cur.TCP1Name,
	}
}

func matches(name, label string) bool {
	if identity.SameCandidate(name, label) {
		return true
	}
	party := identity.PartyOf(name)
	return party != "" && identity.Normalize(party) == identity.Normalize(label)
}

func symmetric(c1, c2, h1, h2 float64) float64 {
	return Round2(((c1 - h1) - (c2 - h2)) / 2)
}

// SecondaryPartySwing is the coarse booth-level swing used for division
// reporting: the plain difference between two pre-extracted percentages,
// with no identity resolution. ok is false when either side is absent.
func SecondaryPartySwing(currentPct, historicalPct float64) (value float64, ok bool) {
	if missing(currentPct) || missing(historicalPct) {
		return 0, false
	}
	return Round2(currentPct - historicalPct), true
}
