package server

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/amalfiblue/amalfiResults-sub000/internal/analyze"
	"github.com/amalfiblue/amalfiResults-sub000/internal/config"
	"github.com/amalfiblue/amalfiResults-sub000/internal/database"
	"github.com/amalfiblue/amalfiResults-sub000/internal/logging"
	"github.com/amalfiblue/amalfiResults-sub000/internal/pipeline"
	"github.com/amalfiblue/amalfiResults-sub000/internal/report"
	"github.com/amalfiblue/amalfiResults-sub000/internal/tally"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

const maxUploadBytes = 32 << 20

// Server is the HTTP server for tally entry, review and division reports.
type Server struct {
	db      *database.DB
	pipe    *pipeline.Pipeline
	pages   map[string]*template.Template
	router  chi.Router
	origins []string
}

// New creates a new Server. origins lists the browser origins allowed to
// call the JSON API.
func New(p *pipeline.Pipeline, db *database.DB, origins []string) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"ago":   ago,
		"comma": func(n int) string { return humanize.Comma(int64(n)) },
		"pretty": func(v any) string {
			b, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return ""
			}
			return string(b)
		},
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base so its {{define}} blocks stay local.
	pageNames := []string{"index.html", "result.html", "division.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{db: db, pipe: p, pages: pages, router: chi.NewRouter(), origins: origins}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Reviewer"},
			MaxAge:         300,
		}))
	}

	staticSub, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	r.Get("/", s.handleIndex)
	r.Post("/upload", s.handleUpload)
	r.Get("/results/{id}", s.handleResult)
	r.Post("/results/{id}/review", s.handleReviewForm)
	r.Get("/divisions/{name}", s.handleDivision)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/results", s.apiListResults)
		r.Post("/results", s.apiUploadResult)
		r.Post("/results/cells", s.apiIngestCells)
		r.Get("/results/{id}", s.apiGetResult)
		r.Post("/results/{id}/review", s.apiReviewResult)
		r.Delete("/results/{id}", s.apiDeleteResult)
		r.Get("/divisions/{name}", s.apiDivision)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	results, err := s.db.GetAllResults()
	if err != nil {
		s.serverError(w, "loading results", err)
		return
	}
	electorates, err := s.db.GetElectorates()
	if err != nil {
		s.serverError(w, "loading electorates", err)
		return
	}
	stats, err := s.db.GetStats()
	if err != nil {
		s.serverError(w, "loading stats", err)
		return
	}

	s.render(w, http.StatusOK, "index.html", map[string]any{
		"Results":     results,
		"Electorates": electorates,
		"Stats":       stats,
		"Error":       r.URL.Query().Get("error"),
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	res, err := s.ingestUpload(r)
	if err != nil {
		logging.Log.WithError(err).Warn("Upload failed")
		http.Redirect(w, r, "/?error="+url.QueryEscape(err.Error()), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/results/%d", res.ResultID), http.StatusSeeOther)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	result, ok := s.lookupResult(w, r)
	if !ok {
		return
	}
	s.renderResult(w, http.StatusOK, result, "")
}

func (s *Server) handleReviewForm(w http.ResponseWriter, r *http.Request) {
	result, ok := s.lookupResult(w, r)
	if !ok {
		return
	}

	var rec tally.Record
	if err := json.Unmarshal([]byte(r.FormValue("data")), &rec); err != nil {
		s.renderResult(w, http.StatusBadRequest, result, "Invalid JSON: "+err.Error())
		return
	}
	if err := s.review(result.ID, &rec, reviewerOf(r, r.FormValue("reviewer"))); err != nil {
		s.renderResult(w, http.StatusBadRequest, result, err.Error())
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/results/%d", result.ID), http.StatusSeeOther)
}

func (s *Server) handleDivision(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	reviewedOnly := r.URL.Query().Get("reviewed") == "true"
	summary, err := s.pipe.Summary(name, reviewedOnly)
	if err != nil {
		s.serverError(w, "summarizing "+name, err)
		return
	}
	places, err := s.db.GetPollingPlacesForDivision(name)
	if err != nil {
		s.serverError(w, "loading polling places for "+name, err)
		return
	}

	s.render(w, http.StatusOK, "division.html", map[string]any{
		"Summary":       summary,
		"Report":        report.Markdown(summary),
		"ReviewedOnly":  reviewedOnly,
		"PollingPlaces": places,
	})
}

func (s *Server) apiListResults(w http.ResponseWriter, r *http.Request) {
	var (
		results []database.Result
		err     error
	)
	if electorate := r.URL.Query().Get("electorate"); electorate != "" {
		results, err = s.db.GetResultsForElectorate(electorate)
	} else {
		results, err = s.db.GetAllResults()
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if results == nil {
		results = []database.Result{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) apiGetResult(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid result id %q", chi.URLParam(r, "id")))
		return
	}
	result, err := s.db.GetResult(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if result == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("result %d: %w", id, database.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) apiUploadResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.ingestUpload(r)
	if err != nil {
		writeError(w, ingestStatus(err), err)
		return
	}
	s.writeIngest(w, res)
}

func (s *Server) apiIngestCells(w http.ResponseWriter, r *http.Request) {
	analysis, err := analyze.LoadCells(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		writeError(w, ingestStatus(err), err)
		return
	}
	if label := r.URL.Query().Get("booth"); label != "" {
		analysis.Label = label
	}
	res, err := s.pipe.IngestCells(analysis.Cells, analysis.Label, nil)
	if err != nil {
		writeError(w, ingestStatus(err), err)
		return
	}
	s.writeIngest(w, res)
}

type reviewRequest struct {
	Reviewer string       `json:"reviewer"`
	Data     tally.Record `json:"data"`
}

func (s *Server) apiReviewResult(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid result id %q", chi.URLParam(r, "id")))
		return
	}
	var req reviewRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding review: %w", err))
		return
	}

	err = s.review(id, &req.Data, reviewerOf(r, req.Reviewer))
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := s.db.GetResult(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) apiDeleteResult(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid result id %q", chi.URLParam(r, "id")))
		return
	}
	err = s.pipe.Delete(id)
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) apiDivision(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	summary, err := s.pipe.Summary(name, r.URL.Query().Get("reviewed") == "true")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) ingestUpload(r *http.Request) (*pipeline.IngestResult, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, fmt.Errorf("%w: %v", errBadUpload, err)
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		return nil, fmt.Errorf("%w: missing image field", errBadUpload)
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	return s.pipe.Ingest(r.Context(), image, header.Filename)
}

// review validates a corrected record and marks the result reviewed.
func (s *Server) review(id int64, rec *tally.Record, reviewer string) error {
	if reviewer == "" {
		return errors.New("a reviewer name is required")
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	if err := s.db.ReviewResult(id, rec, reviewer); err != nil {
		return err
	}
	logging.Log.WithField("reviewer", reviewer).Infof("Result %d reviewed", id)
	return nil
}

func (s *Server) lookupResult(w http.ResponseWriter, r *http.Request) (*database.Result, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return nil, false
	}
	result, err := s.db.GetResult(id)
	if err != nil {
		s.serverError(w, "loading result", err)
		return nil, false
	}
	if result == nil {
		http.NotFound(w, r)
		return nil, false
	}
	return result, true
}

func (s *Server) renderResult(w http.ResponseWriter, status int, result *database.Result, msg string) {
	data := map[string]any{
		"Result": result,
		"Error":  msg,
	}
	if a, b, ok := result.Data.TCPPercentages(); ok {
		data["TCPPct"] = [2]float64{a, b}
	}
	previous, err := s.db.GetHistoricalResult(result.Electorate, result.BoothName)
	if err != nil {
		logging.Log.WithError(err).Warnf("Loading previous result for %s", result.BoothName)
	} else if previous != nil {
		data["Previous"] = previous
	}
	s.render(w, status, "result.html", data)
}

func (s *Server) writeIngest(w http.ResponseWriter, res *pipeline.IngestResult) {
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	warnings := res.Extraction.Warnings
	if warnings == nil {
		warnings = []tally.Warning{}
	}
	writeJSON(w, status, map[string]any{
		"result_id": res.ResultID,
		"created":   res.Created,
		"data":      res.Extraction.Record,
		"warnings":  warnings,
	})
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		logging.Log.Errorf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		s.serverError(w, "rendering "+name, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func (s *Server) serverError(w http.ResponseWriter, what string, err error) {
	logging.Log.WithError(err).Errorf("Error %s", what)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

var errBadUpload = errors.New("bad upload")

// ingestStatus maps ingest failures to HTTP statuses.
func ingestStatus(err error) int {
	switch {
	case errors.Is(err, errBadUpload):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrUnsupportedImage):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, tally.ErrExtractionFailed):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// reviewerOf prefers an explicit reviewer over the X-Reviewer header.
func reviewerOf(r *http.Request, explicit string) string {
	if v := strings.TrimSpace(explicit); v != "" {
		return v
	}
	return strings.TrimSpace(r.Header.Get("X-Reviewer"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Log.WithError(err).Warn("Error writing response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// ago renders a stored SQLite timestamp as relative time.
func ago(ts *string) string {
	if ts == nil {
		return ""
	}
	t, err := time.Parse(time.DateTime, *ts)
	if err != nil {
		return *ts
	}
	return humanize.Time(t)
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the HTTP server.
func Serve(cfg *config.Config, p *pipeline.Pipeline, db *database.DB) error {
	srv, err := New(p, db, cfg.Server.CORSOrigins)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logging.Log.Infof("Server listening on http://%s", addr)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return httpSrv.ListenAndServe()
}
