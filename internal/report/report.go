// Package report renders a division summary as markdown.
package report

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/amalfiblue/amalfiResults-sub000/internal/aggregate"
	"github.com/amalfiblue/amalfiResults-sub000/internal/swing"
)

const noData = "–"

// Markdown renders the summary: headline figures, primary votes and the
// booth-by-booth table.
func Markdown(s *aggregate.Summary) string {
	sections := []string{headline(s)}
	if len(s.Primary) > 0 {
		sections = append(sections, primaryTable(s))
	}
	if len(s.Booths) > 0 {
		sections = append(sections, boothTable(s))
	}
	return strings.Join(sections, "\n\n---\n\n") + "\n"
}

func headline(s *aggregate.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Division of %s\n\n", s.Electorate)

	if s.TCPPct != nil {
		fmt.Fprintf(&b, "**%s** %s%% (%s) vs **%s** %s%% (%s)\n\n",
			s.TCPLabels[0], pct(s.TCPPct[0]), humanize.Comma(int64(s.TCP[0])),
			s.TCPLabels[1], pct(s.TCPPct[1]), humanize.Comma(int64(s.TCP[1])))
	} else {
		b.WriteString("No two-candidate-preferred votes counted yet.\n\n")
	}

	fmt.Fprintf(&b, "- Booths counted: %d (%d reviewed, %d pending review)\n",
		len(s.Booths), s.Reviewed, s.Pending)
	fmt.Fprintf(&b, "- Formal votes: %s\n", humanize.Comma(int64(s.Formal)))
	fmt.Fprintf(&b, "- Informal votes: %s\n", humanize.Comma(int64(s.Informal)))
	fmt.Fprintf(&b, "- Total votes: %s", humanize.Comma(int64(s.Total)))
	if s.AverageSwing != nil {
		fmt.Fprintf(&b, "\n- Average swing across %d comparable booths: %s", s.SwingBooths, signed(*s.AverageSwing))
	}
	return b.String()
}

func primaryTable(s *aggregate.Summary) string {
	var b strings.Builder
	b.WriteString("## Primary votes\n\n")
	b.WriteString("| Candidate | Votes | Share |\n|---|---:|---:|\n")
	sum := s.Primary.Sum()
	for _, v := range s.Primary {
		share := noData
		if sum > 0 {
			share = pct(swing.Round2(float64(v.Votes)/float64(sum)*100)) + "%"
		}
		fmt.Fprintf(&b, "| %s | %s | %s |\n", escape(v.Name), humanize.Comma(int64(v.Votes)), share)
	}
	return strings.TrimRight(b.String(), "\n")
}

func boothTable(s *aggregate.Summary) string {
	var b strings.Builder
	b.WriteString("## Booths\n\n")
	fmt.Fprintf(&b, "| Booth | Status | Formal | %s | %s | Swing |\n|---|---|---:|---:|---:|---:|\n",
		escape(s.TCPLabels[0]), escape(s.TCPLabels[1]))

	lowConfidence := false
	for _, booth := range s.Booths {
		status := "pending"
		if booth.IsReviewed {
			status = "reviewed"
		}
		a, c := noData, noData
		if booth.TCPPct != nil {
			a, c = pct(booth.TCPPct[0])+"%", pct(booth.TCPPct[1])+"%"
		}
		sw := noData
		if booth.Swing != nil {
			sw = signed(booth.Swing.Value)
			if booth.Swing.LowConfidence {
				sw += "*"
				lowConfidence = true
			}
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
			escape(booth.Name), status, humanize.Comma(int64(booth.Formal)), a, c, sw)
	}
	if lowConfidence {
		b.WriteString("\n\\* Candidates could not be matched to last election's party lines; swing assumes positional correspondence.\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func pct(v float64) string {
	return humanize.FormatFloat("#,###.##", v)
}

func signed(v float64) string {
	if v > 0 {
		return "+" + pct(v)
	}
	return pct(v)
}

func escape(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
