package reference

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/amalfiblue/amalfiResults-sub000/internal/database"
	"github.com/amalfiblue/amalfiResults-sub000/internal/logging"
)

// Feeds are the download URLs. An empty URL skips that feed.
type Feeds struct {
	CandidatesURL    string
	PollingPlacesURL string
	HistoricalURL    string
}

// Result holds the results of one feed refresh.
type Result struct {
	Feed    string
	Rows    int
	Skipped bool
}

// Refresher downloads reference feeds and replaces the stored tables.
type Refresher struct {
	db     *database.DB
	feeds  Feeds
	client *http.Client
}

// NewRefresher creates a refresher for the given feeds.
func NewRefresher(db *database.DB, feeds Feeds, timeout time.Duration) *Refresher {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Refresher{
		db:    db,
		feeds: feeds,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// RefreshCandidates replaces the candidate table from the candidates feed.
func (r *Refresher) RefreshCandidates(ctx context.Context) (*Result, error) {
	return r.refresh(ctx, "candidates", r.feeds.CandidatesURL, func(data []byte) (int, error) {
		rows, err := ParseCandidates(data)
		if err != nil {
			return 0, err
		}
		return len(rows), r.db.ReplaceCandidates(rows)
	})
}

// RefreshPollingPlaces replaces the polling place table.
func (r *Refresher) RefreshPollingPlaces(ctx context.Context) (*Result, error) {
	return r.refresh(ctx, "polling places", r.feeds.PollingPlacesURL, func(data []byte) (int, error) {
		rows, err := ParsePollingPlaces(data)
		if err != nil {
			return 0, err
		}
		return len(rows), r.db.ReplacePollingPlaces(rows)
	})
}

// RefreshHistorical replaces the historical booth results table.
func (r *Refresher) RefreshHistorical(ctx context.Context) (*Result, error) {
	return r.refresh(ctx, "historical results", r.feeds.HistoricalURL, func(data []byte) (int, error) {
		rows, err := ParseHistorical(data)
		if err != nil {
			return 0, err
		}
		return len(rows), r.db.ReplaceHistoricalResults(rows)
	})
}

func (r *Refresher) refresh(ctx context.Context, feed, url string, store func([]byte) (int, error)) (*Result, error) {
	res := &Result{Feed: feed}
	if url == "" {
		logging.Log.Infof("No %s feed configured, skipping", feed)
		res.Skipped = true
		return res, nil
	}

	data, err := r.download(ctx, url)
	if err != nil {
		return res, fmt.Errorf("downloading %s: %w", feed, err)
	}
	n, err := store(data)
	if err != nil {
		return res, fmt.Errorf("storing %s: %w", feed, err)
	}
	res.Rows = n
	logging.Log.WithField("rows", n).Infof("Refreshed %s", feed)
	return res, nil
}

func (r *Refresher) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "amalfi/1.0 (tally room)")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &httpError{code: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return fmt.Sprintf("%d %s", e.code, http.StatusText(e.code))
}
