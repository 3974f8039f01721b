// Package aggregate rolls booth results up into a division summary with
// swings against the previous election.
package aggregate

import (
	"github.com/amalfiblue/amalfiResults-sub000/internal/database"
	"github.com/amalfiblue/amalfiResults-sub000/internal/identity"
	"github.com/amalfiblue/amalfiResults-sub000/internal/swing"
	"github.com/amalfiblue/amalfiResults-sub000/internal/tally"
)

// Options controls what is counted and how swings are reconciled.
type Options struct {
	// ReviewedOnly excludes results a reviewer has not approved yet.
	ReviewedOnly bool
	Swing        swing.Config
	// CoalitionLabel and LaborLabel name the two party lines of the
	// historical feed.
	CoalitionLabel string
	LaborLabel     string
}

// Booth is one booth's contribution to the division.
type Booth struct {
	ResultID   int64         `json:"result_id"`
	Name       string        `json:"booth_name"`
	IsReviewed bool          `json:"is_reviewed"`
	Formal     int           `json:"formal"`
	Informal   int           `json:"informal"`
	Total      int           `json:"total"`
	TCP        [2]int        `json:"tcp"`
	TCPPct     *[2]float64   `json:"tcp_percentage"`
	Historical *swing.Booth  `json:"historical,omitempty"`
	Swing      *swing.Result `json:"swing"`
	// SecondarySwing is the coarse swing on the non-anchor line.
	SecondarySwing *float64 `json:"secondary_swing"`
}

// Summary is a division-wide roll-up.
type Summary struct {
	Electorate   string         `json:"electorate"`
	TCPLabels    [2]string      `json:"tcp_labels"`
	Booths       []Booth        `json:"booths"`
	Primary      tally.VoteList `json:"primary_votes"`
	TCP          [2]int         `json:"tcp"`
	TCPPct       *[2]float64    `json:"tcp_percentage"`
	Formal       int            `json:"formal"`
	Informal     int            `json:"informal"`
	Total        int            `json:"total"`
	Reviewed     int            `json:"reviewed"`
	Pending      int            `json:"pending"`
	AverageSwing *float64       `json:"average_swing"`
	SwingBooths  int            `json:"swing_booths"`
}

// Summarize aggregates an electorate's results. TCP columns are aligned to
// labels by candidate identity, falling back to column order.
func Summarize(electorate string, results []database.Result, labels [2]string, history []database.HistoricalResult, opts Options) *Summary {
	s := &Summary{
		Electorate: electorate,
		TCPLabels:  labels,
		Booths:     []Booth{},
		Primary:    tally.VoteList{},
	}

	byBooth := make(map[string]*swing.Booth, len(history))
	for _, h := range history {
		byBooth[identity.Normalize(h.PollingPlaceName)] = historicalBooth(h, opts)
	}

	var swingSum float64
	for i := range results {
		r := &results[i]
		if r.IsReviewed {
			s.Reviewed++
		} else {
			s.Pending++
		}
		if opts.ReviewedOnly && !r.IsReviewed {
			continue
		}

		b := boothSummary(r, labels)
		b.Historical = byBooth[identity.Normalize(r.BoothName)]
		if b.TCPPct != nil {
			cur := swing.Current{
				TCP1Pct: b.TCPPct[0], TCP2Pct: b.TCPPct[1],
				TCP1Name: labels[0], TCP2Name: labels[1],
			}
			b.Swing = swing.Reconcile(cur, b.Historical, opts.Swing)
			b.SecondarySwing = secondarySwing(cur, b.Historical, opts.Swing.AnchorParty)
		}
		if b.Swing != nil {
			swingSum += b.Swing.Value
			s.SwingBooths++
		}

		for _, v := range r.Data.Primary {
			current, _ := s.Primary.Get(v.Name)
			s.Primary.Set(v.Name, current+v.Votes)
		}
		s.TCP[0] += b.TCP[0]
		s.TCP[1] += b.TCP[1]
		s.Formal += b.Formal
		s.Informal += b.Informal
		s.Total += b.Total
		s.Booths = append(s.Booths, b)
	}

	s.TCPPct = shares(s.TCP)
	if s.SwingBooths > 0 {
		avg := swing.Round2(swingSum / float64(s.SwingBooths))
		s.AverageSwing = &avg
	}
	return s
}

func boothSummary(r *database.Result, labels [2]string) Booth {
	b := Booth{
		ResultID:   r.ID,
		Name:       r.BoothName,
		IsReviewed: r.IsReviewed,
		Formal:     deref(r.Data.Totals.Formal),
		Informal:   deref(r.Data.Totals.Informal),
		Total:      deref(r.Data.Totals.Total),
	}

	slots := [2]int{
		identity.PositionOf(r.Data.TCP[0].Label, labels),
		identity.PositionOf(r.Data.TCP[1].Label, labels),
	}
	if slots[0] < 0 || slots[1] < 0 || slots[0] == slots[1] {
		slots = [2]int{0, 1}
	}
	for i, col := range r.Data.TCP {
		b.TCP[slots[i]] = col.Votes.Sum()
	}
	b.TCPPct = shares(b.TCP)
	return b
}

// shares returns each side's percentage of the two-way total, or nil when
// no votes were counted.
func shares(tcp [2]int) *[2]float64 {
	total := tcp[0] + tcp[1]
	if total <= 0 {
		return nil
	}
	return &[2]float64{
		swing.Round2(float64(tcp[0]) / float64(total) * 100),
		swing.Round2(float64(tcp[1]) / float64(total) * 100),
	}
}

func historicalBooth(h database.HistoricalResult, opts Options) *swing.Booth {
	return &swing.Booth{
		Division:       h.DivisionName,
		PollingPlace:   h.PollingPlaceName,
		CoalitionLabel: opts.CoalitionLabel,
		CoalitionVotes: h.CoalitionVotes,
		CoalitionPct:   h.CoalitionPct,
		LaborLabel:     opts.LaborLabel,
		LaborVotes:     h.LaborVotes,
		LaborPct:       h.LaborPct,
		TotalVotes:     h.TotalVotes,
	}
}

// secondarySwing compares the current non-anchor candidate's share with the
// historical line that is not the anchor's.
func secondarySwing(cur swing.Current, hist *swing.Booth, anchor string) *float64 {
	if hist == nil {
		return nil
	}
	currentPct := cur.TCP2Pct
	if identity.HasParty(cur.TCP2Name, anchor) && !identity.HasParty(cur.TCP1Name, anchor) {
		currentPct = cur.TCP1Pct
	}
	historicalPct := hist.LaborPct
	if identity.HasParty(hist.LaborLabel, anchor) {
		historicalPct = hist.CoalitionPct
	}
	v, ok := swing.SecondaryPartySwing(currentPct, historicalPct)
	if !ok {
		return nil
	}
	return &v
}

func deref(n *int) int {
	if n == nil {
		return 0
	}
	return *n
}
