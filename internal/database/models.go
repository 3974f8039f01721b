package database

import (
	"strings"

	"github.com/amalfiblue/amalfiResults-sub000/internal/tally"
)

// Result is a stored tally record for one booth.
type Result struct {
	ID         int64           `json:"id"`
	Electorate string          `json:"electorate"`
	BoothName  string          `json:"booth_name"`
	ImagePath  *string         `json:"image_path,omitempty"`
	Data       tally.Record    `json:"data"`
	Warnings   []tally.Warning `json:"warnings"`
	IsReviewed bool            `json:"is_reviewed"`
	Reviewer   *string         `json:"reviewer"`
	CreatedAt  *string         `json:"created_at"`
	UpdatedAt  *string         `json:"updated_at"`
}

// Candidate is a nominated candidate from the commission's candidate feed.
type Candidate struct {
	ID             int64  `json:"id"`
	State          string `json:"state"`
	DivisionID     int    `json:"division_id"`
	DivisionName   string `json:"division_name"`
	CandidateID    int    `json:"candidate_id"`
	Surname        string `json:"surname"`
	GivenName      string `json:"given_name"`
	PartyName      string `json:"party_name"`
	PartyAb        string `json:"party_ab"`
	BallotPosition int    `json:"ballot_position"`
}

// DisplayName formats the candidate the way ballot papers do: "SURNAME Given".
func (c Candidate) DisplayName() string {
	return strings.TrimSpace(strings.ToUpper(c.Surname) + " " + c.GivenName)
}

// PollingPlace is a booth from the commission's polling place feed.
type PollingPlace struct {
	ID             int64    `json:"id"`
	State          string   `json:"state"`
	DivisionID     int      `json:"division_id"`
	DivisionName   string   `json:"division_name"`
	PollingPlaceID int      `json:"polling_place_id"`
	Name           string   `json:"polling_place_name"`
	PremisesName   string   `json:"premises_name"`
	Address        string   `json:"address"`
	Suburb         string   `json:"suburb"`
	Postcode       string   `json:"postcode"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
}

// HistoricalResult is a booth's two-party-preferred result from the
// previous election.
type HistoricalResult struct {
	ID               int64   `json:"id"`
	State            string  `json:"state"`
	DivisionID       int     `json:"division_id"`
	DivisionName     string  `json:"division_name"`
	PollingPlaceID   int     `json:"polling_place_id"`
	PollingPlaceName string  `json:"polling_place_name"`
	CoalitionVotes   int     `json:"coalition_votes"`
	CoalitionPct     float64 `json:"coalition_percentage"`
	LaborVotes       int     `json:"labor_votes"`
	LaborPct         float64 `json:"labor_percentage"`
	TotalVotes       int     `json:"total_votes"`
	Swing            float64 `json:"swing"`
	RawJSON          string  `json:"-"`
}

// Stats contains aggregate database statistics.
type Stats struct {
	Results          int
	ReviewedResults  int
	PendingResults   int
	Electorates      int
	TCPAssignments   int
	Candidates       int
	PollingPlaces    int
	HistoricalBooths int
}
