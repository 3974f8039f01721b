package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    electorate TEXT NOT NULL,
    booth_name TEXT NOT NULL,
    data TEXT NOT NULL,
    is_reviewed INTEGER DEFAULT 0,
    reviewer TEXT,
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now')),
    UNIQUE (electorate, booth_name)
);

CREATE TABLE IF NOT EXISTS tcp_candidates (
    electorate TEXT NOT NULL,
    position INTEGER NOT NULL CHECK(position IN (1, 2)),
    candidate_name TEXT NOT NULL,
    party TEXT,
    PRIMARY KEY (electorate, position)
);

CREATE INDEX IF NOT EXISTS idx_results_electorate ON results(electorate);
`)
			return err
		},
	},
	{
		Version:     2,
		Description: "reference data and extraction provenance",
		Up: func(tx *sql.Tx) error {
			if err := addColumn(tx, "results", "image_path", "TEXT"); err != nil {
				return err
			}
			if err := addColumn(tx, "results", "warnings", "TEXT"); err != nil {
				return err
			}
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS candidates (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    state TEXT,
    division_id INTEGER,
    division_name TEXT NOT NULL,
    candidate_id INTEGER,
    surname TEXT NOT NULL,
    given_name TEXT,
    party_name TEXT,
    party_ab TEXT,
    ballot_position INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS polling_places (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    state TEXT,
    division_id INTEGER,
    division_name TEXT NOT NULL,
    polling_place_id INTEGER,
    polling_place_name TEXT NOT NULL,
    premises_name TEXT,
    address TEXT,
    suburb TEXT,
    postcode TEXT,
    latitude REAL,
    longitude REAL
);

CREATE TABLE IF NOT EXISTS historical_booth_results (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    state TEXT,
    division_id INTEGER,
    division_name TEXT NOT NULL,
    polling_place_id INTEGER,
    polling_place_name TEXT NOT NULL,
    coalition_votes INTEGER DEFAULT 0,
    coalition_percentage REAL DEFAULT 0,
    labor_votes INTEGER DEFAULT 0,
    labor_percentage REAL DEFAULT 0,
    total_votes INTEGER DEFAULT 0,
    swing REAL DEFAULT 0,
    raw_json TEXT,
    UNIQUE (division_name, polling_place_name)
);

CREATE INDEX IF NOT EXISTS idx_candidates_division ON candidates(division_name);
CREATE INDEX IF NOT EXISTS idx_polling_places_division ON polling_places(division_name);
CREATE INDEX IF NOT EXISTS idx_historical_division ON historical_booth_results(division_name);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
