package database

import (
	"database/sql"
	"fmt"

	"github.com/amalfiblue/amalfiResults-sub000/internal/identity"
)

// SetTCPCandidates replaces an electorate's two TCP assignments.
func (db *DB) SetTCPCandidates(electorate string, assignments [2]identity.Assignment) error {
	return db.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM tcp_candidates WHERE electorate = ?", electorate); err != nil {
			return fmt.Errorf("clearing tcp candidates: %w", err)
		}
		for i, a := range assignments {
			if a.CandidateName == "" {
				return fmt.Errorf("tcp candidate %d has no name", i+1)
			}
			var party *string
			if a.Party != "" {
				party = &a.Party
			}
			if _, err := tx.Exec(
				`INSERT INTO tcp_candidates (electorate, position, candidate_name, party) VALUES (?, ?, ?, ?)`,
				electorate, i+1, a.CandidateName, party,
			); err != nil {
				return fmt.Errorf("inserting tcp candidate %d: %w", i+1, err)
			}
		}
		return nil
	})
}

// GetTCPCandidates returns an electorate's TCP assignments ordered by position.
func (db *DB) GetTCPCandidates(electorate string) ([]identity.Assignment, error) {
	rows, err := db.conn.Query(
		`SELECT electorate, position, candidate_name, COALESCE(party, '')
		FROM tcp_candidates WHERE electorate = ? ORDER BY position`, electorate,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []identity.Assignment
	for rows.Next() {
		var a identity.Assignment
		if err := rows.Scan(&a.Electorate, &a.Position, &a.CandidateName, &a.Party); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
