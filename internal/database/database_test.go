package database

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/amalfiblue/amalfiResults-sub000/internal/identity"
	"github.com/amalfiblue/amalfiResults-sub000/internal/tally"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func ptr(s string) *string { return &s }

func intPtr(n int) *int { return &n }

func testRecord(electorate, booth string, smith int) *tally.Record {
	rec := &tally.Record{
		Electorate: electorate,
		BoothName:  booth,
		Candidates: []string{"SMITH", "JONES"},
		Primary:    tally.VoteList{{Name: "SMITH", Votes: smith}, {Name: "JONES", Votes: 80}},
		TCP: tally.TCP{
			{Label: "KAPTERIAN", Votes: tally.VoteList{{Name: "SMITH", Votes: 90}}},
			{Label: "BOELE", Votes: tally.VoteList{{Name: "SMITH", Votes: 60}}},
		},
	}
	formal := smith + 80
	rec.Totals = tally.Totals{Formal: intPtr(formal), Informal: intPtr(10), Total: intPtr(formal + 10)}
	return rec
}

func TestUpsertResultCreatesThenUpdates(t *testing.T) {
	db := openTestDB(t)

	id, created, err := db.UpsertResult(testRecord("Bradfield", "Gordon", 150), ptr("uploads/one.jpg"),
		[]tally.Warning{{Kind: tally.WarnInformalDefaulted, Message: "informal count not found"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created || id == 0 {
		t.Fatalf("expected a new row, got id=%d created=%v", id, created)
	}

	if err := db.ReviewResult(id, testRecord("Bradfield", "Gordon", 151), "alice"); err != nil {
		t.Fatalf("review: %v", err)
	}

	again, created, err := db.UpsertResult(testRecord("Bradfield", "Gordon", 155), ptr("uploads/two.jpg"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Error("expected re-extraction to update in place")
	}
	if again != id {
		t.Errorf("expected same id %d, got %d", id, again)
	}

	r, err := db.GetResult(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.IsReviewed || r.Reviewer != nil {
		t.Error("expected re-extraction to reset review state")
	}
	if v, _ := r.Data.Primary.Get("SMITH"); v != 155 {
		t.Errorf("expected SMITH=155, got %d", v)
	}
	if r.ImagePath == nil || *r.ImagePath != "uploads/two.jpg" {
		t.Errorf("expected image path to follow latest upload, got %v", r.ImagePath)
	}
	if len(r.Warnings) != 0 {
		t.Errorf("expected warnings replaced, got %d", len(r.Warnings))
	}
}

func TestUpsertResultKeyedByElectorateAndBooth(t *testing.T) {
	db := openTestDB(t)
	a, _, _ := db.UpsertResult(testRecord("Bradfield", "Gordon", 100), nil, nil)
	b, _, _ := db.UpsertResult(testRecord("Warringah", "Gordon", 100), nil, nil)
	c, _, _ := db.UpsertResult(testRecord("Bradfield", "Pymble", 100), nil, nil)
	if a == b || a == c || b == c {
		t.Errorf("expected three distinct rows, got %d %d %d", a, b, c)
	}

	results, err := db.GetResultsForElectorate("Bradfield")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].BoothName != "Gordon" || results[1].BoothName != "Pymble" {
		t.Errorf("expected booth order Gordon, Pymble; got %s, %s", results[0].BoothName, results[1].BoothName)
	}

	all, _ := db.GetAllResults()
	if len(all) != 3 {
		t.Errorf("expected 3 results, got %d", len(all))
	}

	electorates, _ := db.GetElectorates()
	if len(electorates) != 2 || electorates[0] != "Bradfield" {
		t.Errorf("unexpected electorates %v", electorates)
	}
}

func TestGetResultMissing(t *testing.T) {
	db := openTestDB(t)
	r, err := db.GetResult(42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r != nil {
		t.Error("expected nil for missing result")
	}
	byBooth, err := db.GetResultByBooth("Bradfield", "Nowhere")
	if err != nil || byBooth != nil {
		t.Errorf("expected nil, nil; got %v, %v", byBooth, err)
	}
}

func TestReviewResult(t *testing.T) {
	db := openTestDB(t)
	id, _, _ := db.UpsertResult(testRecord("Bradfield", tally.DefaultBooth, 150), nil, nil)

	corrected := testRecord("Bradfield", "St Ives", 149)
	if err := db.ReviewResult(id, corrected, "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r, err := db.GetResultByBooth("Bradfield", "St Ives")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r == nil {
		t.Fatal("expected result under corrected booth name")
	}
	if !r.IsReviewed {
		t.Error("expected is_reviewed to be true")
	}
	if r.Reviewer == nil || *r.Reviewer != "alice" {
		t.Errorf("expected reviewer 'alice', got %v", r.Reviewer)
	}
	if r.Data.TCP[0].Label != "KAPTERIAN" {
		t.Errorf("expected TCP label to round trip, got %q", r.Data.TCP[0].Label)
	}
	if *r.Data.Totals.Formal != 229 {
		t.Errorf("expected corrected formal 229, got %d", *r.Data.Totals.Formal)
	}
}

func TestReviewKeepsStoredKeyInData(t *testing.T) {
	db := openTestDB(t)
	id, _, _ := db.UpsertResult(testRecord("Bradfield", "Gordon", 150), nil, nil)

	corrected := testRecord("", "", 148)
	if err := db.ReviewResult(id, corrected, "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r, err := db.GetResult(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Electorate != "Bradfield" || r.BoothName != "Gordon" {
		t.Errorf("expected stored key kept, got %s/%s", r.Electorate, r.BoothName)
	}
	if r.Data.Electorate != r.Electorate || r.Data.BoothName != r.BoothName {
		t.Errorf("expected record to match columns, got %q/%q", r.Data.Electorate, r.Data.BoothName)
	}
}

func TestReviewMissingResult(t *testing.T) {
	db := openTestDB(t)
	err := db.ReviewResult(7, testRecord("Bradfield", "Gordon", 1), "alice")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteResult(t *testing.T) {
	db := openTestDB(t)
	id, _, _ := db.UpsertResult(testRecord("Bradfield", "Gordon", 150), nil, nil)
	if err := db.DeleteResult(id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r, _ := db.GetResult(id); r != nil {
		t.Error("expected result to be gone")
	}
	if err := db.DeleteResult(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestTCPCandidates(t *testing.T) {
	db := openTestDB(t)
	pair := [2]identity.Assignment{
		{CandidateName: "KAPTERIAN Gisele", Party: "Liberal"},
		{CandidateName: "BOELE Nicolette"},
	}
	if err := db.SetTCPCandidates("Bradfield", pair); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := db.GetTCPCandidates("Bradfield")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(got))
	}
	if got[0].Position != 1 || got[0].Party != "Liberal" {
		t.Errorf("unexpected first assignment %+v", got[0])
	}
	if got[1].Party != "" {
		t.Errorf("expected empty party, got %q", got[1].Party)
	}

	// Setting again replaces rather than appends.
	pair[1].CandidateName = "FLETCHER Paul"
	if err := db.SetTCPCandidates("Bradfield", pair); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ = db.GetTCPCandidates("Bradfield")
	if len(got) != 2 || got[1].CandidateName != "FLETCHER Paul" {
		t.Errorf("expected replacement, got %+v", got)
	}

	if err := db.SetTCPCandidates("Bradfield", [2]identity.Assignment{{CandidateName: "A"}}); err == nil {
		t.Error("expected error for unnamed second candidate")
	}
	got, _ = db.GetTCPCandidates("Bradfield")
	if len(got) != 2 {
		t.Errorf("expected failed set to roll back, got %d rows", len(got))
	}
}

func TestGetStats(t *testing.T) {
	db := openTestDB(t)
	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Results != 0 {
		t.Errorf("expected 0 results, got %d", stats.Results)
	}

	id, _, _ := db.UpsertResult(testRecord("Bradfield", "Gordon", 150), nil, nil)
	db.UpsertResult(testRecord("Bradfield", "Pymble", 150), nil, nil)
	db.ReviewResult(id, testRecord("Bradfield", "Gordon", 150), "alice")

	stats, _ = db.GetStats()
	if stats.Results != 2 {
		t.Errorf("expected 2 results, got %d", stats.Results)
	}
	if stats.ReviewedResults != 1 || stats.PendingResults != 1 {
		t.Errorf("expected 1 reviewed and 1 pending, got %d and %d", stats.ReviewedResults, stats.PendingResults)
	}
	if stats.Electorates != 1 {
		t.Errorf("expected 1 electorate, got %d", stats.Electorates)
	}
}
