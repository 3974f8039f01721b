package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/amalfiblue/amalfiResults-sub000/internal/aggregate"
	"github.com/amalfiblue/amalfiResults-sub000/internal/analyze"
	"github.com/amalfiblue/amalfiResults-sub000/internal/config"
	"github.com/amalfiblue/amalfiResults-sub000/internal/database"
	"github.com/amalfiblue/amalfiResults-sub000/internal/identity"
	"github.com/amalfiblue/amalfiResults-sub000/internal/logging"
	"github.com/amalfiblue/amalfiResults-sub000/internal/reference"
	"github.com/amalfiblue/amalfiResults-sub000/internal/tally"
)

// ErrUnsupportedImage is returned for uploads the analysis service cannot read.
var ErrUnsupportedImage = errors.New("unsupported image type")

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a multi-step run.
type Result struct {
	Steps []StepResult
}

// Failed reports whether any step failed.
func (r *Result) Failed() bool {
	for _, s := range r.Steps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

// IngestResult describes one stored extraction.
type IngestResult struct {
	ResultID   int64
	Created    bool
	ImagePath  string
	Extraction *tally.Extraction
}

// Pipeline wires analysis, extraction and storage together.
type Pipeline struct {
	cfg *config.Config
	db  *database.DB

	mu       sync.Mutex
	analyzer analyze.Analyzer
}

// New creates a new pipeline. The analyzer is created on first use.
func New(cfg *config.Config, db *database.DB) *Pipeline {
	return &Pipeline{cfg: cfg, db: db}
}

// WithAnalyzer sets the document analyzer explicitly.
func (p *Pipeline) WithAnalyzer(a analyze.Analyzer) *Pipeline {
	p.mu.Lock()
	p.analyzer = a
	p.mu.Unlock()
	return p
}

func (p *Pipeline) getAnalyzer(ctx context.Context) (analyze.Analyzer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.analyzer != nil {
		return p.analyzer, nil
	}
	a, err := analyze.CreateAnalyzer(ctx, analyze.Options{
		Provider:  p.cfg.Analysis.Provider,
		Region:    p.cfg.Analysis.Region,
		Endpoint:  p.cfg.Analysis.Endpoint,
		APIKeyEnv: p.cfg.Analysis.APIKeyEnv,
		Timeout:   p.cfg.AnalysisTimeout(),
	})
	if err != nil {
		return nil, err
	}
	p.analyzer = a
	return a, nil
}

// Ingest stores an uploaded tally sheet image, analyzes it, extracts the
// tally and upserts the result for its booth.
func (p *Pipeline) Ingest(ctx context.Context, image []byte, filename string) (*IngestResult, error) {
	ext, err := imageExt(image, filename)
	if err != nil {
		return nil, err
	}
	path, err := p.saveImage(image, ext)
	if err != nil {
		return nil, err
	}
	stored := false
	defer func() {
		if !stored {
			removeImage(path)
		}
	}()

	a, err := p.getAnalyzer(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.AnalysisTimeout())
	defer cancel()

	log := logging.Log.WithField("image", filepath.Base(path))
	log.Infof("Analyzing tally sheet with %s", a.Name())
	analysis, err := a.Analyze(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("analyzing %s: %w", filename, err)
	}

	res, err := p.IngestCells(analysis.Cells, analysis.Label, &path)
	if err != nil {
		return nil, err
	}
	stored = true
	res.ImagePath = path
	return res, nil
}

// IngestCells extracts and stores already-analyzed table cells.
func (p *Pipeline) IngestCells(cells []tally.Cell, label string, imagePath *string) (*IngestResult, error) {
	tc, err := p.TallyConfig(p.cfg.Election.Electorate)
	if err != nil {
		return nil, err
	}

	ex, err := tally.Extract(cells, label, tc)
	if err != nil {
		return nil, err
	}
	log := logging.Log.WithFields(logrus.Fields{
		"electorate": ex.Record.Electorate,
		"booth":      ex.Record.BoothName,
	})
	for _, w := range ex.Warnings {
		log.WithField("kind", w.Kind).Warn(w.Message)
	}

	var replaced string
	if imagePath != nil {
		prev, err := p.db.GetResultByBooth(ex.Record.Electorate, ex.Record.BoothName)
		if err != nil {
			return nil, err
		}
		if prev != nil && prev.ImagePath != nil && *prev.ImagePath != *imagePath {
			replaced = *prev.ImagePath
		}
	}

	id, created, err := p.db.UpsertResult(&ex.Record, imagePath, ex.Warnings)
	if err != nil {
		return nil, err
	}
	if replaced != "" {
		removeImage(replaced)
	}
	if created {
		log.Infof("Stored new result %d", id)
	} else {
		log.Infof("Updated result %d, review reset", id)
	}

	res := &IngestResult{ResultID: id, Created: created, Extraction: ex}
	if imagePath != nil {
		res.ImagePath = *imagePath
	}
	return res, nil
}

// Delete removes a stored result together with its uploaded image.
func (p *Pipeline) Delete(id int64) error {
	result, err := p.db.GetResult(id)
	if err != nil {
		return err
	}
	if result == nil {
		return fmt.Errorf("result %d: %w", id, database.ErrNotFound)
	}
	if err := p.db.DeleteResult(id); err != nil {
		return err
	}
	if result.ImagePath != nil {
		removeImage(*result.ImagePath)
	}
	logging.Log.WithFields(logrus.Fields{
		"electorate": result.Electorate,
		"booth":      result.BoothName,
	}).Infof("Deleted result %d", id)
	return nil
}

// TallyConfig returns the extractor configuration for an electorate, using
// its assigned TCP candidates as column labels when they are set.
func (p *Pipeline) TallyConfig(electorate string) (tally.Config, error) {
	tc := p.cfg.TallyConfig()
	tc.Electorate = electorate
	labels, err := p.TCPLabels(electorate)
	if err != nil {
		return tc, err
	}
	tc.TCPLabels = labels
	return tc, nil
}

// TCPLabels returns the electorate's two TCP labels.
func (p *Pipeline) TCPLabels(electorate string) ([2]string, error) {
	assignments, err := p.db.GetTCPCandidates(electorate)
	if err != nil {
		return [2]string{}, fmt.Errorf("loading TCP candidates: %w", err)
	}
	return identity.TCPLabels(assignments, p.cfg.FallbackTCPLabels()), nil
}

// SetTCP assigns an electorate's two TCP candidates from "Name (Party)"
// labels. A label without a party takes it from the candidate feed.
func (p *Pipeline) SetTCP(electorate string, labels [2]string) ([2]identity.Assignment, error) {
	var out [2]identity.Assignment
	candidates, err := p.db.GetCandidatesForDivision(electorate)
	if err != nil {
		return out, fmt.Errorf("loading candidates: %w", err)
	}
	for i, label := range labels {
		a := identity.Assignment{
			Electorate:    electorate,
			Position:      i + 1,
			CandidateName: identity.BareName(label),
			Party:         identity.PartyOf(label),
		}
		if a.Party == "" {
			a.Party = partyFromFeed(a.CandidateName, candidates)
		}
		out[i] = a
	}
	if identity.SameCandidate(out[0].CandidateName, out[1].CandidateName) {
		return out, fmt.Errorf("TCP candidates must differ, got %q twice", out[0].CandidateName)
	}
	if err := p.db.SetTCPCandidates(electorate, out); err != nil {
		return out, err
	}
	return out, nil
}

// partyFromFeed finds a candidate by full ballot name or surname.
func partyFromFeed(name string, candidates []database.Candidate) string {
	n := identity.Normalize(name)
	for _, c := range candidates {
		if identity.SameCandidate(name, c.DisplayName()) || n == identity.Normalize(c.Surname) {
			return c.PartyName
		}
	}
	return ""
}

// Summary aggregates an electorate's stored results against last election.
func (p *Pipeline) Summary(electorate string, reviewedOnly bool) (*aggregate.Summary, error) {
	results, err := p.db.GetResultsForElectorate(electorate)
	if err != nil {
		return nil, fmt.Errorf("loading results: %w", err)
	}
	labels, err := p.TCPLabels(electorate)
	if err != nil {
		return nil, err
	}
	history, err := p.db.GetHistoricalResultsForDivision(electorate)
	if err != nil {
		return nil, fmt.Errorf("loading historical results: %w", err)
	}

	return aggregate.Summarize(electorate, results, labels, history, aggregate.Options{
		ReviewedOnly:   reviewedOnly,
		Swing:          p.cfg.SwingConfig(),
		CoalitionLabel: p.cfg.Election.CoalitionLabel,
		LaborLabel:     p.cfg.Election.LaborLabel,
	}), nil
}

// Refresh downloads all reference feeds. A failed feed does not stop the
// others.
func (p *Pipeline) Refresh(ctx context.Context) *Result {
	ref := p.cfg.Reference
	refresher := reference.NewRefresher(p.db, reference.Feeds{
		CandidatesURL:    ref.CandidatesURL,
		PollingPlacesURL: ref.PollingPlacesURL,
		HistoricalURL:    ref.HistoricalURL,
	}, p.cfg.ReferenceTimeout())

	steps := []struct {
		name string
		run  func(context.Context) (*reference.Result, error)
	}{
		{"Candidates", refresher.RefreshCandidates},
		{"Polling places", refresher.RefreshPollingPlaces},
		{"Historical results", refresher.RefreshHistorical},
	}

	r := &Result{}
	for i, s := range steps {
		logging.Log.Infof("Step %d/%d: Refreshing %s...", i+1, len(steps), strings.ToLower(s.name))
		res, err := s.run(ctx)
		if err != nil {
			r.Steps = append(r.Steps, StepResult{Name: s.name, Err: err})
			continue
		}
		summary := fmt.Sprintf("Stored %d rows", res.Rows)
		if res.Skipped {
			summary = "Skipped, no feed URL configured"
		}
		r.Steps = append(r.Steps, StepResult{Name: s.name, Summary: summary})
	}
	return r
}

func (p *Pipeline) saveImage(image []byte, ext string) (string, error) {
	dir := filepath.Join(p.cfg.GetDataDir(), "uploads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating upload directory: %w", err)
	}
	path := filepath.Join(dir, uuid.NewString()+ext)
	if err := os.WriteFile(path, image, 0o644); err != nil {
		return "", fmt.Errorf("saving image: %w", err)
	}
	return path, nil
}

// removeImage deletes a stored upload that no result references.
func removeImage(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.Log.WithError(err).Warnf("Removing image %s", filepath.Base(path))
	}
}

// imageExt picks the stored file extension from the content, falling back
// to the upload's name for TIFF scans.
func imageExt(image []byte, filename string) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("%w: empty upload", ErrUnsupportedImage)
	}
	switch http.DetectContentType(image) {
	case "image/jpeg":
		return ".jpg", nil
	case "image/png":
		return ".png", nil
	case "application/pdf":
		return ".pdf", nil
	}
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".tif", ".tiff":
		return ext, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedImage, filename)
}
