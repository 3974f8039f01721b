package report

import (
	"strings"
	"testing"

	"github.com/amalfiblue/amalfiResults-sub000/internal/aggregate"
	"github.com/amalfiblue/amalfiResults-sub000/internal/swing"
	"github.com/amalfiblue/amalfiResults-sub000/internal/tally"
)

func summary() *aggregate.Summary {
	avg := -3.0
	return &aggregate.Summary{
		Electorate: "Bradfield",
		TCPLabels:  [2]string{"KAPTERIAN (Liberal)", "BOELE (Independent)"},
		Primary:    tally.VoteList{{Name: "KAPTERIAN", Votes: 1200}, {Name: "BOELE", Votes: 800}},
		TCP:        [2]int{1050, 950},
		TCPPct:     &[2]float64{52.5, 47.5},
		Formal:     2000,
		Informal:   20,
		Total:      2020,
		Reviewed:   1,
		Pending:    1,
		Booths: []aggregate.Booth{
			{Name: "Gordon", IsReviewed: true, Formal: 1000, TCPPct: &[2]float64{45, 55},
				Swing: &swing.Result{Value: -3, Method: swing.MethodParty}},
			{Name: "Pymble", Formal: 1000, TCPPct: &[2]float64{60, 40},
				Swing: &swing.Result{Value: 1.5, Method: swing.MethodPositional, LowConfidence: true}},
		},
		AverageSwing: &avg,
		SwingBooths:  2,
	}
}

func TestMarkdown(t *testing.T) {
	md := Markdown(summary())

	for _, want := range []string{
		"# Division of Bradfield",
		"**KAPTERIAN (Liberal)** 52.50% (1,050)",
		"- Formal votes: 2,000",
		"- Booths counted: 2 (1 reviewed, 1 pending review)",
		"Average swing across 2 comparable booths: -3.00",
		"| KAPTERIAN | 1,200 | 60.00% |",
		"| Gordon | reviewed | 1,000 | 45.00% | 55.00% | -3.00 |",
		"| Pymble | pending | 1,000 | 60.00% | 40.00% | +1.50* |",
		"positional correspondence",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("expected markdown to contain %q\n%s", want, md)
		}
	}
}

func TestMarkdownEmpty(t *testing.T) {
	md := Markdown(&aggregate.Summary{Electorate: "Bradfield"})
	if !strings.Contains(md, "No two-candidate-preferred votes counted yet.") {
		t.Errorf("expected empty notice, got:\n%s", md)
	}
	if strings.Contains(md, "## Booths") {
		t.Error("expected no booth table without booths")
	}
}

func TestEscapePipes(t *testing.T) {
	if got := escape("A|B"); got != `A\|B` {
		t.Errorf("expected escaped pipe, got %q", got)
	}
}
