package database

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/amalfiblue/amalfiResults-sub000/internal/tally"
)

const resultColumns = `id, electorate, booth_name, image_path, data, warnings,
	is_reviewed, reviewer, created_at, updated_at`

// UpsertResult stores a freshly extracted record keyed by (electorate, booth).
// An existing row is updated in place and returns to the unreviewed state.
func (db *DB) UpsertResult(rec *tally.Record, imagePath *string, warnings []tally.Warning) (id int64, created bool, err error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return 0, false, fmt.Errorf("encoding record: %w", err)
	}
	warn, err := json.Marshal(warnings)
	if err != nil {
		return 0, false, fmt.Errorf("encoding warnings: %w", err)
	}

	err = db.inTx(func(tx *sql.Tx) error {
		err := tx.QueryRow(
			"SELECT id FROM results WHERE electorate = ? AND booth_name = ?",
			rec.Electorate, rec.BoothName,
		).Scan(&id)
		switch {
		case err == sql.ErrNoRows:
			res, err := tx.Exec(
				`INSERT INTO results (electorate, booth_name, image_path, data, warnings)
				VALUES (?, ?, ?, ?, ?)`,
				rec.Electorate, rec.BoothName, imagePath, string(data), string(warn),
			)
			if err != nil {
				return err
			}
			created = true
			id, err = res.LastInsertId()
			return err
		case err != nil:
			return err
		}
		_, err = tx.Exec(
			`UPDATE results SET image_path = ?, data = ?, warnings = ?,
			is_reviewed = 0, reviewer = NULL, updated_at = datetime('now')
			WHERE id = ?`,
			imagePath, string(data), string(warn), id,
		)
		return err
	})
	if err != nil {
		return 0, false, fmt.Errorf("upserting result %s/%s: %w", rec.Electorate, rec.BoothName, err)
	}
	return id, created, nil
}

// GetResult returns a single result by ID.
func (db *DB) GetResult(id int64) (*Result, error) {
	row := db.conn.QueryRow("SELECT "+resultColumns+" FROM results WHERE id = ?", id)
	r, err := scanResult(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetResultByBooth returns the result for an (electorate, booth) pair.
func (db *DB) GetResultByBooth(electorate, booth string) (*Result, error) {
	row := db.conn.QueryRow(
		"SELECT "+resultColumns+" FROM results WHERE electorate = ? AND booth_name = ?",
		electorate, booth,
	)
	r, err := scanResult(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GetResultsForElectorate returns an electorate's results ordered by booth.
func (db *DB) GetResultsForElectorate(electorate string) ([]Result, error) {
	rows, err := db.conn.Query(
		"SELECT "+resultColumns+" FROM results WHERE electorate = ? ORDER BY booth_name",
		electorate,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanResults(rows)
}

// GetAllResults returns every result, most recently updated first.
func (db *DB) GetAllResults() ([]Result, error) {
	rows, err := db.conn.Query(
		"SELECT " + resultColumns + " FROM results ORDER BY updated_at DESC, id DESC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanResults(rows)
}

// GetElectorates returns the distinct electorates that have results.
func (db *DB) GetElectorates() ([]string, error) {
	rows, err := db.conn.Query("SELECT DISTINCT electorate FROM results ORDER BY electorate")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ReviewResult stores a reviewer's corrected record and marks it reviewed.
// The booth key follows the corrected record so a defaulted booth name can
// be fixed during review; an empty electorate or booth keeps the stored one.
func (db *DB) ReviewResult(id int64, rec *tally.Record, reviewer string) error {
	err := db.inTx(func(tx *sql.Tx) error {
		var electorate, booth string
		err := tx.QueryRow(
			"SELECT electorate, booth_name FROM results WHERE id = ?", id,
		).Scan(&electorate, &booth)
		if err == sql.ErrNoRows {
			return fmt.Errorf("result %d: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if rec.Electorate == "" {
			rec.Electorate = electorate
		}
		if rec.BoothName == "" {
			rec.BoothName = booth
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encoding record: %w", err)
		}
		_, err = tx.Exec(
			`UPDATE results SET electorate = ?, booth_name = ?, data = ?,
			is_reviewed = 1, reviewer = ?, updated_at = datetime('now')
			WHERE id = ?`,
			rec.Electorate, rec.BoothName, string(data), reviewer, id,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("reviewing result %d: %w", id, err)
	}
	return nil
}

// DeleteResult removes a result.
func (db *DB) DeleteResult(id int64) error {
	res, err := db.conn.Exec("DELETE FROM results WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting result %d: %w", id, err)
	}
	return expectOne(res, "result", id)
}

func expectOne(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResult(row scanner) (*Result, error) {
	var r Result
	var data string
	var warnings *string
	var reviewed int
	if err := row.Scan(&r.ID, &r.Electorate, &r.BoothName, &r.ImagePath, &data, &warnings,
		&reviewed, &r.Reviewer, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.IsReviewed = reviewed != 0
	if err := json.Unmarshal([]byte(data), &r.Data); err != nil {
		return nil, fmt.Errorf("decoding result %d: %w", r.ID, err)
	}
	if warnings != nil && *warnings != "" {
		if err := json.Unmarshal([]byte(*warnings), &r.Warnings); err != nil {
			return nil, fmt.Errorf("decoding warnings for result %d: %w", r.ID, err)
		}
	}
	if r.Warnings == nil {
		r.Warnings = []tally.Warning{}
	}
	return &r, nil
}

func scanResults(rows *sql.Rows) ([]Result, error) {
	var results []Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	return results, rows.Err()
}
