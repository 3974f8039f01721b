package database

// GetStats returns aggregate database statistics.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}

	queries := []struct {
		sql  string
		dest *int
	}{
		{"SELECT COUNT(*) FROM results", &s.Results},
		{"SELECT COUNT(*) FROM results WHERE is_reviewed = 1", &s.ReviewedResults},
		{"SELECT COUNT(*) FROM results WHERE is_reviewed = 0", &s.PendingResults},
		{"SELECT COUNT(DISTINCT electorate) FROM results", &s.Electorates},
		{"SELECT COUNT(*) FROM tcp_candidates", &s.TCPAssignments},
		{"SELECT COUNT(*) FROM candidates", &s.Candidates},
		{"SELECT COUNT(*) FROM polling_places", &s.PollingPlaces},
		{"SELECT COUNT(*) FROM historical_booth_results", &s.HistoricalBooths},
	}

	for _, q := range queries {
		if err := db.conn.QueryRow(q.sql).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	return s, nil
}
