package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/amalfiblue/amalfiResults-sub000/internal/analyze"
	"github.com/amalfiblue/amalfiResults-sub000/internal/config"
	"github.com/amalfiblue/amalfiResults-sub000/internal/database"
	"github.com/amalfiblue/amalfiResults-sub000/internal/identity"
	"github.com/amalfiblue/amalfiResults-sub000/internal/tally"
)

type mockAnalyzer struct {
	analysis *analyze.Analysis
	err      error
	calls    int
}

func (m *mockAnalyzer) Analyze(_ context.Context, _ []byte) (*analyze.Analysis, error) {
	m.calls++
	return m.analysis, m.err
}

func (m *mockAnalyzer) IsConfigured() bool { return true }
func (m *mockAnalyzer) Name() string       { return "mock" }

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func testPipeline(t *testing.T) (*Pipeline, *database.DB) {
	t.Helper()
	dir := t.TempDir()
	db, err := database.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		Election: config.Election{
			Electorate:      "Bradfield",
			TCPLabels:       []string{"TCP 1", "TCP 2"},
			AnchorParty:     "Liberal",
			CoalitionLabel:  "Liberal/National Coalition",
			LaborLabel:      "Australian Labor Party",
			DefaultInformal: 10,
		},
		Layout: config.Layout{Primary: 0, TCP: []int{1, 2}},
		Output: config.Output{DataDir: dir},
	}
	return New(cfg, db), db
}

func sheetCells() []tally.Cell {
	return []tally.Cell{
		{Row: 1, Column: 1, Text: "CANDIDATE"},
		{Row: 2, Column: 1, Text: "KAPTERIAN"}, {Row: 2, Column: 2, Text: "450"}, {Row: 2, Column: 3, Text: "450"}, {Row: 2, Column: 4, Text: "0"},
		{Row: 3, Column: 1, Text: "BOELE"}, {Row: 3, Column: 2, Text: "550"}, {Row: 3, Column: 3, Text: "0"}, {Row: 3, Column: 4, Text: "550"},
		{Row: 5, Column: 1, Text: "TOTAL FORMAL"}, {Row: 5, Column: 2, Text: "1000"},
	}
}

func TestIngestCellsUsesAssignedTCPLabels(t *testing.T) {
	p, db := testPipeline(t)
	err := db.SetTCPCandidates("Bradfield", [2]identity.Assignment{
		{CandidateName: "KAPTERIAN", Party: "Liberal"},
		{CandidateName: "BOELE", Party: "Independent"},
	})
	if err != nil {
		t.Fatalf("SetTCPCandidates: %v", err)
	}

	res, err := p.IngestCells(sheetCells(), "Gordon", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Created {
		t.Error("expected a new result")
	}

	stored, _ := db.GetResult(res.ResultID)
	if stored == nil {
		t.Fatal("expected stored result")
	}
	if stored.Data.TCP[0].Label != "KAPTERIAN (Liberal)" {
		t.Errorf("expected assigned TCP label, got %q", stored.Data.TCP[0].Label)
	}
	if stored.BoothName != "Gordon" || stored.Electorate != "Bradfield" {
		t.Errorf("unexpected key %s/%s", stored.Electorate, stored.BoothName)
	}
	if len(stored.Warnings) != 2 {
		t.Errorf("expected informal and total fallback warnings, got %+v", stored.Warnings)
	}
}

func TestIngestCellsEmpty(t *testing.T) {
	p, _ := testPipeline(t)
	_, err := p.IngestCells(nil, "Gordon", nil)
	if !errors.Is(err, tally.ErrExtractionFailed) {
		t.Errorf("expected ErrExtractionFailed, got %v", err)
	}
}

func TestIngestSavesImageAndAnalyzes(t *testing.T) {
	p, db := testPipeline(t)
	mock := &mockAnalyzer{analysis: &analyze.Analysis{Cells: sheetCells(), Label: "Pymble"}}
	p.WithAnalyzer(mock)

	res, err := p.Ingest(context.Background(), pngHeader, "sheet.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.calls != 1 {
		t.Errorf("expected 1 analyzer call, got %d", mock.calls)
	}
	if !strings.HasSuffix(res.ImagePath, ".png") {
		t.Errorf("expected .png upload, got %q", res.ImagePath)
	}
	if _, err := os.Stat(res.ImagePath); err != nil {
		t.Errorf("expected saved image: %v", err)
	}

	stored, _ := db.GetResultByBooth("Bradfield", "Pymble")
	if stored == nil || stored.ImagePath == nil || *stored.ImagePath != res.ImagePath {
		t.Errorf("expected stored result to reference the upload, got %+v", stored)
	}

	// Re-ingesting the same booth updates in place.
	again, err := p.Ingest(context.Background(), pngHeader, "sheet.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.Created || again.ResultID != res.ResultID {
		t.Errorf("expected update of result %d, got %+v", res.ResultID, again)
	}
}

func TestIngestAnalyzerFailure(t *testing.T) {
	p, _ := testPipeline(t)
	p.WithAnalyzer(&mockAnalyzer{err: analyze.ErrNoTable})

	_, err := p.Ingest(context.Background(), pngHeader, "sheet.png")
	if !errors.Is(err, tally.ErrExtractionFailed) {
		t.Errorf("expected ErrExtractionFailed, got %v", err)
	}
}

func TestIngestFailureRemovesUpload(t *testing.T) {
	p, _ := testPipeline(t)
	p.WithAnalyzer(&mockAnalyzer{analysis: &analyze.Analysis{}})

	if _, err := p.Ingest(context.Background(), pngHeader, "sheet.png"); err == nil {
		t.Fatal("expected an error for a sheet without cells")
	}
	p.WithAnalyzer(&mockAnalyzer{err: analyze.ErrNoTable})
	if _, err := p.Ingest(context.Background(), pngHeader, "sheet.png"); err == nil {
		t.Fatal("expected an analyzer error")
	}

	entries, err := os.ReadDir(filepath.Join(p.cfg.GetDataDir(), "uploads"))
	if err != nil {
		t.Fatalf("reading uploads: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no uploads left behind, got %d", len(entries))
	}
}

func TestReingestRemovesReplacedImage(t *testing.T) {
	p, _ := testPipeline(t)
	p.WithAnalyzer(&mockAnalyzer{analysis: &analyze.Analysis{Cells: sheetCells(), Label: "Pymble"}})

	first, err := p.Ingest(context.Background(), pngHeader, "sheet.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := p.Ingest(context.Background(), pngHeader, "sheet.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := os.Stat(first.ImagePath); !os.IsNotExist(err) {
		t.Errorf("expected replaced image to be removed, got %v", err)
	}
	if _, err := os.Stat(second.ImagePath); err != nil {
		t.Errorf("expected current image to remain: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Join(p.cfg.GetDataDir(), "uploads"))
	if len(entries) != 1 {
		t.Errorf("expected exactly one upload, got %d", len(entries))
	}
}

func TestDeleteRemovesResultAndImage(t *testing.T) {
	p, db := testPipeline(t)
	p.WithAnalyzer(&mockAnalyzer{analysis: &analyze.Analysis{Cells: sheetCells(), Label: "Pymble"}})

	res, err := p.Ingest(context.Background(), pngHeader, "sheet.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Delete(res.ResultID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r, _ := db.GetResult(res.ResultID); r != nil {
		t.Error("expected result to be gone")
	}
	if _, err := os.Stat(res.ImagePath); !os.IsNotExist(err) {
		t.Errorf("expected image to be removed, got %v", err)
	}
	if err := p.Delete(res.ResultID); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetAnalyzerConcurrent(t *testing.T) {
	p, _ := testPipeline(t)
	p.cfg.Analysis = config.Analysis{Provider: "http", Endpoint: "http://localhost:0/analyze"}

	const workers = 8
	got := make([]analyze.Analyzer, workers)
	errs := make([]error, workers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			got[i], errs[i] = p.getAnalyzer(context.Background())
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if got[i] != got[0] {
			t.Errorf("worker %d got a different analyzer", i)
		}
	}
}

func TestIngestRejectsUnknownImage(t *testing.T) {
	p, _ := testPipeline(t)
	p.WithAnalyzer(&mockAnalyzer{})

	_, err := p.Ingest(context.Background(), []byte("plain text"), "notes.txt")
	if !errors.Is(err, ErrUnsupportedImage) {
		t.Errorf("expected ErrUnsupportedImage, got %v", err)
	}
	if ext, err := imageExt([]byte("II*\x00"), "scan.TIFF"); err != nil || ext != ".tiff" {
		t.Errorf("expected .tiff, got %q, %v", ext, err)
	}
}

func TestSummary(t *testing.T) {
	p, db := testPipeline(t)
	db.SetTCPCandidates("Bradfield", [2]identity.Assignment{
		{CandidateName: "KAPTERIAN", Party: "Liberal"},
		{CandidateName: "BOELE", Party: "Independent"},
	})
	db.ReplaceHistoricalResults([]database.HistoricalResult{
		{DivisionName: "Bradfield", PollingPlaceName: "Gordon", CoalitionPct: 48, LaborPct: 52},
	})
	if _, err := p.IngestCells(sheetCells(), "Gordon", nil); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	s, err := p.Summary("Bradfield", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Booths) != 1 {
		t.Fatalf("expected 1 booth, got %d", len(s.Booths))
	}
	sw := s.Booths[0].Swing
	if sw == nil || sw.Value != -3 {
		t.Errorf("expected swing -3, got %+v", sw)
	}

	reviewed, _ := p.Summary("Bradfield", true)
	if len(reviewed.Booths) != 0 {
		t.Errorf("expected no reviewed booths, got %d", len(reviewed.Booths))
	}
}

func TestRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken.csv" {
			http.Error(w, "gone", http.StatusGone)
			return
		}
		w.Write([]byte("Candidates\ntxnid,StateAb,DivisionID,DivisionNm,PartyAb,PartyNm,CandidateID,Surname,GivenNm\n1,NSW,103,Bradfield,LP,Liberal,1,KAPTERIAN,Gisele\n"))
	}))
	defer srv.Close()

	p, db := testPipeline(t)
	p.cfg.Reference = config.Reference{
		CandidatesURL:  srv.URL + "/candidates.csv",
		HistoricalURL:  srv.URL + "/broken.csv",
		TimeoutSeconds: 5,
	}

	r := p.Refresh(context.Background())
	if len(r.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(r.Steps))
	}
	if r.Steps[0].Err != nil || r.Steps[0].Summary != "Stored 1 rows" {
		t.Errorf("unexpected candidates step %+v", r.Steps[0])
	}
	if !strings.HasPrefix(r.Steps[1].Summary, "Skipped") {
		t.Errorf("expected polling places to be skipped, got %+v", r.Steps[1])
	}
	if r.Steps[2].Err == nil {
		t.Error("expected historical step to fail")
	}
	if !r.Failed() {
		t.Error("expected Failed() to report the broken feed")
	}

	stats, _ := db.GetStats()
	if stats.Candidates != 1 {
		t.Errorf("expected 1 candidate, got %d", stats.Candidates)
	}
}

func TestSetTCPFillsPartyFromFeed(t *testing.T) {
	p, db := testPipeline(t)
	db.ReplaceCandidates([]database.Candidate{
		{DivisionName: "Bradfield", Surname: "Kapterian", GivenName: "Gisele", PartyName: "Liberal"},
		{DivisionName: "Bradfield", Surname: "Boele", GivenName: "Nicolette", PartyName: "Independent"},
	})

	got, err := p.SetTCP("Bradfield", [2]string{"KAPTERIAN", "BOELE (Ind.)"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0].Party != "Liberal" {
		t.Errorf("expected party from feed, got %q", got[0].Party)
	}
	if got[1].Party != "Ind." || got[1].CandidateName != "BOELE" {
		t.Errorf("expected explicit party kept, got %+v", got[1])
	}

	labels, _ := p.TCPLabels("Bradfield")
	if labels != [2]string{"KAPTERIAN (Liberal)", "BOELE (Ind.)"} {
		t.Errorf("unexpected labels %v", labels)
	}

	if _, err := p.SetTCP("Bradfield", [2]string{"BOELE", "boele (Independent)"}); err == nil {
		t.Error("expected error for duplicate candidates")
	}
}
