package database

import (
	"database/sql"
	"fmt"
)

// ReplaceCandidates swaps the candidate table for a fresh feed download.
func (db *DB) ReplaceCandidates(candidates []Candidate) error {
	return db.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM candidates"); err != nil {
			return fmt.Errorf("clearing candidates: %w", err)
		}
		stmt, err := tx.Prepare(
			`INSERT INTO candidates (state, division_id, division_name, candidate_id,
			surname, given_name, party_name, party_ab, ballot_position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, c := range candidates {
			if _, err := stmt.Exec(c.State, c.DivisionID, c.DivisionName, c.CandidateID,
				c.Surname, c.GivenName, c.PartyName, c.PartyAb, c.BallotPosition); err != nil {
				return fmt.Errorf("inserting candidate %s: %w", c.DisplayName(), err)
			}
		}
		return nil
	})
}

// GetCandidatesForDivision returns a division's candidates in ballot order.
func (db *DB) GetCandidatesForDivision(division string) ([]Candidate, error) {
	rows, err := db.conn.Query(
		`SELECT id, COALESCE(state, ''), COALESCE(division_id, 0), division_name,
		COALESCE(candidate_id, 0), surname, COALESCE(given_name, ''),
		COALESCE(party_name, ''), COALESCE(party_ab, ''), COALESCE(ballot_position, 0)
		FROM candidates WHERE division_name = ? COLLATE NOCASE
		ORDER BY ballot_position, surname`, division,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ID, &c.State, &c.DivisionID, &c.DivisionName, &c.CandidateID,
			&c.Surname, &c.GivenName, &c.PartyName, &c.PartyAb, &c.BallotPosition); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ReplacePollingPlaces swaps the polling place table for a fresh feed download.
func (db *DB) ReplacePollingPlaces(places []PollingPlace) error {
	return db.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM polling_places"); err != nil {
			return fmt.Errorf("clearing polling places: %w", err)
		}
		stmt, err := tx.Prepare(
			`INSERT INTO polling_places (state, division_id, division_name, polling_place_id,
			polling_place_name, premises_name, address, suburb, postcode, latitude, longitude)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, p := range places {
			if _, err := stmt.Exec(p.State, p.DivisionID, p.DivisionName, p.PollingPlaceID,
				p.Name, p.PremisesName, p.Address, p.Suburb, p.Postcode, p.Latitude, p.Longitude); err != nil {
				return fmt.Errorf("inserting polling place %s: %w", p.Name, err)
			}
		}
		return nil
	})
}

// GetPollingPlacesForDivision returns a division's polling places by name.
func (db *DB) GetPollingPlacesForDivision(division string) ([]PollingPlace, error) {
	rows, err := db.conn.Query(
		`SELECT id, COALESCE(state, ''), COALESCE(division_id, 0), division_name,
		COALESCE(polling_place_id, 0), polling_place_name, COALESCE(premises_name, ''),
		COALESCE(address, ''), COALESCE(suburb, ''), COALESCE(postcode, ''), latitude, longitude
		FROM polling_places WHERE division_name = ? COLLATE NOCASE
		ORDER BY polling_place_name`, division,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PollingPlace
	for rows.Next() {
		var p PollingPlace
		if err := rows.Scan(&p.ID, &p.State, &p.DivisionID, &p.DivisionName, &p.PollingPlaceID,
			&p.Name, &p.PremisesName, &p.Address, &p.Suburb, &p.Postcode, &p.Latitude, &p.Longitude); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ReplaceHistoricalResults swaps the historical booth table for a fresh
// feed download. Later rows for the same booth replace earlier ones.
func (db *DB) ReplaceHistoricalResults(results []HistoricalResult) error {
	return db.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM historical_booth_results"); err != nil {
			return fmt.Errorf("clearing historical results: %w", err)
		}
		stmt, err := tx.Prepare(
			`INSERT OR REPLACE INTO historical_booth_results (state, division_id, division_name,
			polling_place_id, polling_place_name, coalition_votes, coalition_percentage,
			labor_votes, labor_percentage, total_votes, swing, raw_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, h := range results {
			if _, err := stmt.Exec(h.State, h.DivisionID, h.DivisionName, h.PollingPlaceID,
				h.PollingPlaceName, h.CoalitionVotes, h.CoalitionPct, h.LaborVotes, h.LaborPct,
				h.TotalVotes, h.Swing, h.RawJSON); err != nil {
				return fmt.Errorf("inserting historical result %s/%s: %w", h.DivisionName, h.PollingPlaceName, err)
			}
		}
		return nil
	})
}

const historicalColumns = `id, COALESCE(state, ''), COALESCE(division_id, 0), division_name,
	COALESCE(polling_place_id, 0), polling_place_name, coalition_votes, coalition_percentage,
	labor_votes, labor_percentage, total_votes, swing, COALESCE(raw_json, '')`

// GetHistoricalResult returns the previous election's result for a booth,
// matching names case-insensitively.
func (db *DB) GetHistoricalResult(division, booth string) (*HistoricalResult, error) {
	row := db.conn.QueryRow(
		"SELECT "+historicalColumns+` FROM historical_booth_results
		WHERE division_name = ? COLLATE NOCASE AND polling_place_name = ? COLLATE NOCASE`,
		division, booth,
	)
	h, err := scanHistorical(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return h, nil
}

// GetHistoricalResultsForDivision returns every historical booth in a division.
func (db *DB) GetHistoricalResultsForDivision(division string) ([]HistoricalResult, error) {
	rows, err := db.conn.Query(
		"SELECT "+historicalColumns+` FROM historical_booth_results
		WHERE division_name = ? COLLATE NOCASE ORDER BY polling_place_name`,
		division,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoricalResult
	for rows.Next() {
		h, err := scanHistorical(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *h)
	}
	return out, rows.Err()
}

func scanHistorical(row scanner) (*HistoricalResult, error) {
	var h HistoricalResult
	if err := row.Scan(&h.ID, &h.State, &h.DivisionID, &h.DivisionName, &h.PollingPlaceID,
		&h.PollingPlaceName, &h.CoalitionVotes, &h.CoalitionPct, &h.LaborVotes, &h.LaborPct,
		&h.TotalVotes, &h.Swing, &h.RawJSON); err != nil {
		return nil, err
	}
	return &h, nil
}
