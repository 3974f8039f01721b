package tally

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Width is the number of columns kept per reconstructed row.
const Width = 4

// DefaultInformal is used when a sheet carries no informal count.
const DefaultInformal = 10

// DefaultBooth names a record whose booth label could not be detected.
const DefaultBooth = "Unknown Booth"

// ErrExtractionFailed is returned when no table data was supplied at all.
var ErrExtractionFailed = errors.New("extraction failed: no table data")

// Cell is one positioned text cell from table recognition. Indices are 1-based.
type Cell struct {
	Row    int    `json:"row_index"`
	Column int    `json:"column_index"`
	Text   string `json:"text"`
}

// Row is a reconstructed table row.
type Row [Width]string

// Blank reports whether every cell is empty after trimming.
func (r Row) Blank() bool {
	for _, s := range r {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return true
}

func (r Row) upper() string {
	return strings.ToUpper(strings.Join(r[:], " "))
}

// Layout locates the vote columns among a data row's numeric tokens.
// The default suits the common sheet template: one primary count followed
// by the two TCP counts.
type Layout struct {
	Primary int
	TCP     [2]int
}

// DefaultLayout is the primary / TCP A / TCP B token order.
var DefaultLayout = Layout{Primary: 0, TCP: [2]int{1, 2}}

// Valid reports whether the positions are non-negative and distinct.
func (l Layout) Valid() bool {
	if l.Primary < 0 || l.TCP[0] < 0 || l.TCP[1] < 0 {
		return false
	}
	return l.TCP[0] != l.TCP[1] && l.Primary != l.TCP[0] && l.Primary != l.TCP[1]
}

func (l Layout) tcpWidth() int {
	if l.TCP[0] > l.TCP[1] {
		return l.TCP[0] + 1
	}
	return l.TCP[1] + 1
}

// Config parameterizes extraction for one electorate.
type Config struct {
	Electorate string
	// TCPLabels name the two candidates whose preference flow is tracked.
	TCPLabels       [2]string
	Layout          Layout
	InformalDefault int
	BoothDefault    string
}

func (c Config) withDefaults() Config {
	if c.TCPLabels[0] == "" {
		c.TCPLabels[0] = "TCP 1"
	}
	if c.TCPLabels[1] == "" {
		c.TCPLabels[1] = "TCP 2"
	}
	if !c.Layout.Valid() {
		c.Layout = DefaultLayout
	}
	if c.InformalDefault <= 0 {
		c.InformalDefault = DefaultInformal
	}
	if c.BoothDefault == "" {
		c.BoothDefault = DefaultBooth
	}
	return c
}

// WarningKind classifies a non-fatal extraction problem.
type WarningKind string

const (
	WarnHeaderMissing     WarningKind = "header_missing"
	WarnRowSkipped        WarningKind = "row_skipped"
	WarnNoVotes           WarningKind = "no_votes"
	WarnBadNumber         WarningKind = "bad_number"
	WarnDuplicate         WarningKind = "duplicate_candidate"
	WarnBoothDefaulted    WarningKind = "booth_defaulted"
	WarnFormalDefaulted   WarningKind = "formal_defaulted"
	WarnInformalDefaulted WarningKind = "informal_defaulted"
	WarnTotalDefaulted    WarningKind = "total_defaulted"
)

// Warning records a fallback taken during extraction. Row is 0 for
// record-level warnings.
type Warning struct {
	Row     int         `json:"row,omitempty"`
	Kind    WarningKind `json:"kind"`
	Message string      `json:"message"`
}

// Extraction is a best-effort record plus the fallbacks it needed.
type Extraction struct {
	Record   Record    `json:"record"`
	Warnings []Warning `json:"warnings"`
}

// Clean reports whether extraction needed no fallbacks.
func (e *Extraction) Clean() bool {
	return len(e.Warnings) == 0
}

// Has reports whether a warning of the given kind was raised.
func (e *Extraction) Has(kind WarningKind) bool {
	for _, w := range e.Warnings {
		if w.Kind == kind {
			return true
		}
	}
	return false
}

func (e *Extraction) warn(row int, kind WarningKind, format string, args ...any) {
	e.Warnings = append(e.Warnings, Warning{Row: row, Kind: kind, Message: fmt.Sprintf(format, args...)})
}

// Reconstruct groups cells into fixed-width rows keyed by row index.
// Cells outside the width are dropped; later cells overwrite earlier ones.
func Reconstruct(cells []Cell) map[int]Row {
	rows := make(map[int]Row)
	for _, c := range cells {
		col := c.Column - 1
		if col < 0 || col >= Width {
			continue
		}
		row := rows[c.Row]
		row[col] = c.Text
		rows[c.Row] = row
	}
	return rows
}

func rowOrder(rows map[int]Row) []int {
	order := make([]int, 0, len(rows))
	for idx := range rows {
		order = append(order, idx)
	}
	sort.Ints(order)
	return order
}

// Extract turns recognized table cells into a tally record. It fails only
// when there is no table content at all; malformed rows degrade to warnings.
func Extract(cells []Cell, boothLabel string, cfg Config) (*Extraction, error) {
	if len(cells) == 0 {
		return nil, ErrExtractionFailed
	}
	cfg = cfg.withDefaults()

	rows := Reconstruct(cells)
	order := rowOrder(rows)
	readable := false
	for _, idx := range order {
		if !rows[idx].Blank() {
			readable = true
			break
		}
	}
	if !readable {
		return nil, fmt.Errorf("%w: %d cells carried no readable text", ErrExtractionFailed, len(cells))
	}

	ex := &Extraction{
		Record: Record{
			Electorate: cfg.Electorate,
			BoothName:  strings.TrimSpace(boothLabel),
			Candidates: []string{},
			Primary:    VoteList{},
			TCP: TCP{
				{Label: cfg.TCPLabels[0], Votes: VoteList{}},
				{Label: cfg.TCPLabels[1], Votes: VoteList{}},
			},
		},
		Warnings: []Warning{},
	}
	if ex.Record.BoothName == "" {
		ex.Record.BoothName = cfg.BoothDefault
		ex.warn(0, WarnBoothDefaulted, "no booth label detected, using %q", cfg.BoothDefault)
	}

	start, ok := dataStart(rows, order)
	if !ok {
		ex.warn(0, WarnHeaderMissing, "no CANDIDATE header row, reading from row %d", start)
	}

	for _, idx := range order {
		if idx < start {
			continue
		}
		row := rows[idx]
		if row.Blank() || isTotalsRow(row) {
			break
		}
		ex.parseRow(idx, row, cfg.Layout)
	}

	ex.Record.Totals = parseTotals(rows, order)
	ex.applyFallbacks(cfg.InformalDefault)
	return ex, nil
}

// dataStart returns the row index after the first CANDIDATE header, or the
// lowest row index when no header exists.
func dataStart(rows map[int]Row, order []int) (int, bool) {
	for _, idx := range order {
		for _, cell := range rows[idx] {
			if strings.Contains(strings.ToUpper(cell), "CANDIDATE") {
				return idx + 1, true
			}
		}
	}
	return order[0], false
}

func isTotalsRow(row Row) bool {
	text := row.upper()
	return strings.Contains(text, "TOTAL FORMAL") || strings.Contains(text, "TOTAL VOTES")
}

var ocrConfusions = strings.NewReplacer("O", "0", "I", "1", "l", "1")

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (e *Extraction) parseRow(idx int, row Row, layout Layout) {
	var words []string
	var numbers []int
	for _, cell := range row {
		tok := strings.TrimSpace(cell)
		if tok == "" {
			continue
		}
		// Digits are classified on the folded form; names keep the sheet's text.
		sub := ocrConfusions.Replace(strings.TrimSpace(norm.NFKC.String(tok)))
		if !isDigits(sub) {
			words = append(words, tok)
			continue
		}
		n, err := strconv.Atoi(sub)
		if err != nil {
			e.warn(idx, WarnBadNumber, "dropping unreadable count %q", tok)
			continue
		}
		numbers = append(numbers, n)
	}

	name := strings.TrimSpace(strings.Join(words, " "))
	if name == "" {
		e.warn(idx, WarnRowSkipped, "row has %d counts but no candidate name", len(numbers))
		return
	}

	rec := &e.Record
	if !contains(rec.Candidates, name) {
		rec.Candidates = append(rec.Candidates, name)
	}
	if len(numbers) == 0 {
		e.warn(idx, WarnNoVotes, "no counts read for %s", name)
		return
	}

	if len(numbers) > layout.Primary {
		if rec.Primary.Set(name, numbers[layout.Primary]) {
			e.warn(idx, WarnDuplicate, "%s appears more than once, keeping the later count", name)
		}
	}
	if len(numbers) >= layout.tcpWidth() {
		rec.TCP[0].Votes.Set(name, numbers[layout.TCP[0]])
		rec.TCP[1].Votes.Set(name, numbers[layout.TCP[1]])
	}
}

// parseTotals scans every row for the totals section. The first count found
// for each category wins.
func parseTotals(rows map[int]Row, order []int) Totals {
	var t Totals
	for _, idx := range order {
		row := rows[idx]
		text := row.upper()

		var slot **int
		switch {
		case strings.Contains(text, "TOTAL FORMAL"):
			slot = &t.Formal
		case strings.Contains(text, "INFORMAL"):
			slot = &t.Informal
		case strings.Contains(text, "TOTAL VOTES"):
			slot = &t.Total
		default:
			continue
		}
		if *slot != nil {
			continue
		}
		for _, cell := range row {
			tok := strings.TrimSpace(cell)
			if !isDigits(tok) {
				continue
			}
			if n, err := strconv.Atoi(tok); err == nil {
				*slot = &n
				break
			}
		}
	}
	return t
}

func (e *Extraction) applyFallbacks(informal int) {
	t := &e.Record.Totals
	if t.Formal == nil {
		formal := e.Record.Primary.Sum()
		t.Formal = &formal
		e.warn(0, WarnFormalDefaulted, "total formal not found, using primary sum %d", formal)
	}
	if t.Informal == nil {
		n := informal
		t.Informal = &n
		e.warn(0, WarnInformalDefaulted, "informal count not found, using default %d", informal)
	}
	if t.Total == nil {
		total := *t.Formal + *t.Informal
		t.Total = &total
		e.warn(0, WarnTotalDefaulted, "total votes not found, using formal + informal = %d", total)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
