package tally

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Vote is a single candidate count.
type Vote struct {
	Name  string
	Votes int
}

// VoteList is an insertion-ordered set of candidate counts keyed by name.
// It serializes as a JSON object whose key order matches the list order.
type VoteList []Vote

// Get returns the count recorded for name.
func (l VoteList) Get(name string) (int, bool) {
	for _, v := range l {
		if v.Name == name {
			return v.Votes, true
		}
	}
	return 0, false
}

// Set records votes for name. An existing entry keeps its position and
// reports replaced = true.
func (l *VoteList) Set(name string, votes int) (replaced bool) {
	for i := range *l {
		if (*l)[i].Name == name {
			(*l)[i].Votes = votes
			return true
		}
	}
	*l = append(*l, Vote{Name: name, Votes: votes})
	return false
}

// Sum returns the total of all counts.
func (l VoteList) Sum() int {
	var total int
	for _, v := range l {
		total += v.Votes
	}
	return total
}

// Names returns candidate names in order.
func (l VoteList) Names() []string {
	names := make([]string, len(l))
	for i, v := range l {
		names[i] = v.Name
	}
	return names
}

func (l VoteList) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, v := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(v.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		fmt.Fprintf(&buf, ":%d", v.Votes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (l *VoteList) UnmarshalJSON(data []byte) error {
	list := VoteList{}
	err := decodeOrderedObject(data, func(key string, raw json.RawMessage) error {
		var n int
		if err := json.Unmarshal(raw, &n); err != nil {
			return fmt.Errorf("votes for %q: %w", key, err)
		}
		list.Set(key, n)
		return nil
	})
	if err != nil {
		return err
	}
	*l = list
	return nil
}

// TCPColumn holds the two-candidate-preferred distribution toward one of the
// two tracked candidates, broken down by the candidate whose ballots flowed.
type TCPColumn struct {
	Label string
	Votes VoteList
}

// TCP is the fixed pair of two-candidate-preferred columns.
// It serializes as {"<label A>": {...}, "<label B>": {...}}.
type TCP [2]TCPColumn

func (t TCP) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range t {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col.Label)
		if err != nil {
			return nil, err
		}
		votes, err := col.Votes.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(votes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (t *TCP) UnmarshalJSON(data []byte) error {
	var cols []TCPColumn
	err := decodeOrderedObject(data, func(key string, raw json.RawMessage) error {
		var votes VoteList
		if err := json.Unmarshal(raw, &votes); err != nil {
			return fmt.Errorf("tcp column %q: %w", key, err)
		}
		cols = append(cols, TCPColumn{Label: key, Votes: votes})
		return nil
	})
	if err != nil {
		return err
	}
	if len(cols) != 2 {
		return fmt.Errorf("two_candidate_preferred needs exactly 2 labels, got %d", len(cols))
	}
	*t = TCP{cols[0], cols[1]}
	return nil
}

// Totals are the sheet's formal, informal and total ballot counts.
// A nil field was neither read from the sheet nor defaulted.
type Totals struct {
	Formal   *int `json:"formal"`
	Informal *int `json:"informal"`
	Total    *int `json:"total"`
}

// Record is a structured ballot count for one booth.
type Record struct {
	Electorate string   `json:"electorate"`
	BoothName  string   `json:"booth_name"`
	Candidates []string `json:"candidates"`
	Primary    VoteList `json:"primary_votes"`
	TCP        TCP      `json:"two_candidate_preferred"`
	Totals     Totals   `json:"totals"`
}

// TCPTotals sums each TCP column across all candidates.
func (r *Record) TCPTotals() (a, b int) {
	return r.TCP[0].Votes.Sum(), r.TCP[1].Votes.Sum()
}

// TCPPercentages returns each TCP column's share of the two-party total.
// ok is false when no TCP votes were recorded.
func (r *Record) TCPPercentages() (a, b float64, ok bool) {
	ta, tb := r.TCPTotals()
	if ta+tb <= 0 {
		return 0, 0, false
	}
	sum := float64(ta + tb)
	return float64(ta) / sum * 100, float64(tb) / sum * 100, true
}

var errInvalidRecord = errors.New("invalid record")

// Validate checks a reviewer-supplied record before it is stored.
func (r *Record) Validate() error {
	if r.TCP[0].Label == "" || r.TCP[1].Label == "" {
		return fmt.Errorf("%w: both TCP labels are required", errInvalidRecord)
	}
	if r.TCP[0].Label == r.TCP[1].Label {
		return fmt.Errorf("%w: TCP labels must differ", errInvalidRecord)
	}
	for _, v := range r.Primary {
		if v.Name == "" {
			return fmt.Errorf("%w: empty candidate name", errInvalidRecord)
		}
		if v.Votes < 0 {
			return fmt.Errorf("%w: negative primary votes for %s", errInvalidRecord, v.Name)
		}
	}
	for _, col := range r.TCP {
		for _, v := range col.Votes {
			if v.Votes < 0 {
				return fmt.Errorf("%w: negative %s votes for %s", errInvalidRecord, col.Label, v.Name)
			}
		}
	}
	for name, n := range map[string]*int{"formal": r.Totals.Formal, "informal": r.Totals.Informal, "total": r.Totals.Total} {
		if n != nil && *n < 0 {
			return fmt.Errorf("%w: negative %s total", errInvalidRecord, name)
		}
	}
	return nil
}

// decodeOrderedObject walks a JSON object's members in document order.
func decodeOrderedObject(data []byte, fn func(key string, raw json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if err := fn(key, raw); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}
