// Package reference downloads the electoral commission's public CSV feeds:
// candidates, polling places and the previous election's two-party-preferred
// result by polling place.
package reference

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/amalfiblue/amalfiResults-sub000/internal/database"
)

// CandidateRow is one row of the House candidates download.
type CandidateRow struct {
	StateAb        string `csv:"StateAb"`
	DivisionID     int    `csv:"DivisionID"`
	DivisionNm     string `csv:"DivisionNm"`
	PartyAb        string `csv:"PartyAb"`
	PartyNm        string `csv:"PartyNm"`
	CandidateID    int    `csv:"CandidateID"`
	Surname        string `csv:"Surname"`
	GivenNm        string `csv:"GivenNm"`
	BallotPosition int    `csv:"BallotPosition"`
}

// PollingPlaceRow is one row of the general polling places download.
type PollingPlaceRow struct {
	State            string `csv:"State"`
	DivisionID       int    `csv:"DivisionID"`
	DivisionNm       string `csv:"DivisionNm"`
	PollingPlaceID   int    `csv:"PollingPlaceID"`
	PollingPlaceNm   string `csv:"PollingPlaceNm"`
	PremisesNm       string `csv:"PremisesNm"`
	PremisesAddress1 string `csv:"PremisesAddress1"`
	PremisesAddress2 string `csv:"PremisesAddress2"`
	PremisesSuburb   string `csv:"PremisesSuburb"`
	PremisesPostCode string `csv:"PremisesPostCode"`
	Latitude         string `csv:"Latitude"`
	Longitude        string `csv:"Longitude"`
}

// TPPRow is one row of the two-party-preferred by polling place download.
type TPPRow struct {
	StateAb        string  `csv:"StateAb" json:"StateAb"`
	DivisionID     int     `csv:"DivisionID" json:"DivisionID"`
	DivisionNm     string  `csv:"DivisionNm" json:"DivisionNm"`
	PollingPlaceID int     `csv:"PollingPlaceID" json:"PollingPlaceID"`
	PollingPlace   string  `csv:"PollingPlace" json:"PollingPlace"`
	CoalitionVotes int     `csv:"Liberal/National Coalition Votes" json:"Liberal/National Coalition Votes"`
	CoalitionPct   float64 `csv:"Liberal/National Coalition Percentage" json:"Liberal/National Coalition Percentage"`
	LaborVotes     int     `csv:"Australian Labor Party Votes" json:"Australian Labor Party Votes"`
	LaborPct       float64 `csv:"Australian Labor Party Percentage" json:"Australian Labor Party Percentage"`
	TotalVotes     int     `csv:"TotalVotes" json:"TotalVotes"`
	Swing          float64 `csv:"Swing" json:"Swing"`
}

// skipPreamble drops the descriptive lines the commission puts above the
// header row. The header is the first line containing marker.
func skipPreamble(data []byte, marker string) ([]byte, error) {
	rest := data
	for len(rest) > 0 {
		line, next := rest, []byte(nil)
		if i := bytes.IndexByte(rest, '\n'); i >= 0 {
			line, next = rest[:i], rest[i+1:]
		}
		if bytes.Contains(line, []byte(marker)) {
			return rest, nil
		}
		rest = next
	}
	return nil, fmt.Errorf("no header row containing %q", marker)
}

func decode[T any](data []byte, marker string) ([]T, error) {
	body, err := skipPreamble(bytes.TrimPrefix(data, []byte("\ufeff")), marker)
	if err != nil {
		return nil, err
	}
	var rows []T
	if err := gocsv.UnmarshalBytes(body, &rows); err != nil {
		return nil, fmt.Errorf("decoding csv: %w", err)
	}
	return rows, nil
}

// ParseCandidates decodes the candidates feed.
func ParseCandidates(data []byte) ([]database.Candidate, error) {
	rows, err := decode[CandidateRow](data, "Surname")
	if err != nil {
		return nil, err
	}
	out := make([]database.Candidate, 0, len(rows))
	for _, r := range rows {
		if r.DivisionNm == "" || r.Surname == "" {
			continue
		}
		out = append(out, database.Candidate{
			State:          r.StateAb,
			DivisionID:     r.DivisionID,
			DivisionName:   r.DivisionNm,
			CandidateID:    r.CandidateID,
			Surname:        r.Surname,
			GivenName:      r.GivenNm,
			PartyName:      r.PartyNm,
			PartyAb:        r.PartyAb,
			BallotPosition: r.BallotPosition,
		})
	}
	return out, nil
}

// ParsePollingPlaces decodes the polling places feed.
func ParsePollingPlaces(data []byte) ([]database.PollingPlace, error) {
	rows, err := decode[PollingPlaceRow](data, "PollingPlaceNm")
	if err != nil {
		return nil, err
	}
	out := make([]database.PollingPlace, 0, len(rows))
	for _, r := range rows {
		if r.DivisionNm == "" || r.PollingPlaceNm == "" {
			continue
		}
		out = append(out, database.PollingPlace{
			State:          r.State,
			DivisionID:     r.DivisionID,
			DivisionName:   r.DivisionNm,
			PollingPlaceID: r.PollingPlaceID,
			Name:           r.PollingPlaceNm,
			PremisesName:   r.PremisesNm,
			Address:        strings.TrimSpace(strings.Join([]string{r.PremisesAddress1, r.PremisesAddress2}, " ")),
			Suburb:         r.PremisesSuburb,
			Postcode:       r.PremisesPostCode,
			Latitude:       parseCoord(r.Latitude),
			Longitude:      parseCoord(r.Longitude),
		})
	}
	return out, nil
}

func parseCoord(s string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &v
}

// ParseHistorical decodes the two-party-preferred by polling place feed.
func ParseHistorical(data []byte) ([]database.HistoricalResult, error) {
	rows, err := decode[TPPRow](data, "PollingPlace")
	if err != nil {
		return nil, err
	}
	out := make([]database.HistoricalResult, 0, len(rows))
	for _, r := range rows {
		if r.DivisionNm == "" || r.PollingPlace == "" {
			continue
		}
		raw, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("encoding raw row: %w", err)
		}
		out = append(out, database.HistoricalResult{
			State:            r.StateAb,
			DivisionID:       r.DivisionID,
			DivisionName:     r.DivisionNm,
			PollingPlaceID:   r.PollingPlaceID,
			PollingPlaceName: r.PollingPlace,
			CoalitionVotes:   r.CoalitionVotes,
			CoalitionPct:     r.CoalitionPct,
			LaborVotes:       r.LaborVotes,
			LaborPct:         r.LaborPct,
			TotalVotes:       r.TotalVotes,
			Swing:            r.Swing,
			RawJSON:          string(raw),
		})
	}
	return out, nil
}
