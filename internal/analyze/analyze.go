// Package analyze turns photographed tally sheets into table cells through an
// external document analysis service.
package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/amalfiblue/amalfiResults-sub000/internal/logging"
	"github.com/amalfiblue/amalfiResults-sub000/internal/tally"
)

// ErrNoTable is returned when the service found no table in the document.
var ErrNoTable = fmt.Errorf("%w: document analysis found no table", tally.ErrExtractionFailed)

// Analysis is the table content recognized in one image.
type Analysis struct {
	Cells []tally.Cell `json:"cells"`
	// Label is the booth label printed on the sheet, if one was detected.
	Label string `json:"label"`
}

// Analyzer is the interface for document analysis providers.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte) (*Analysis, error)
	IsConfigured() bool
	Name() string
}

// Options selects and configures a provider.
type Options struct {
	Provider  string
	Region    string
	Endpoint  string
	APIKeyEnv string
	Timeout   time.Duration
}

// CreateAnalyzer creates an analyzer based on configuration, falling back to
// the HTTP provider when Textract credentials are unavailable.
func CreateAnalyzer(ctx context.Context, opts Options) (Analyzer, error) {
	if strings.ToLower(opts.Provider) != "http" {
		a, err := NewTextractAnalyzer(ctx, opts.Region)
		if err != nil {
			logging.Log.WithError(err).Warn("Textract unavailable")
		} else if a.IsConfigured() {
			logging.Log.Infof("Using Textract in %s", opts.Region)
			return a, nil
		} else {
			logging.Log.Warn("No AWS credentials found, trying HTTP analyzer fallback...")
		}
	}

	if opts.Endpoint != "" {
		a := NewHTTPAnalyzer(opts.Endpoint, opts.APIKeyEnv, opts.Timeout)
		if a.IsConfigured() {
			logging.Log.Infof("Using HTTP analyzer at %s", opts.Endpoint)
			return a, nil
		}
	}

	return nil, fmt.Errorf("no document analyzer available; configure AWS credentials or analysis.endpoint")
}

// DetectBoothLabel finds a booth name among recognized text lines. It looks
// for lines such as "Polling place: Gordon" or "BOOTH - Pymble"; a bare
// prefix takes the following line as the name.
func DetectBoothLabel(lines []string) string {
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		for _, prefix := range []string{"POLLING PLACE", "BOOTH NAME", "BOOTH"} {
			if !hasLabelPrefix(trimmed, prefix) {
				continue
			}
			rest := strings.TrimLeft(trimmed[len(prefix):], " :-–")
			rest = strings.TrimSpace(rest)
			if rest != "" {
				return rest
			}
			if i+1 < len(lines) {
				return strings.TrimSpace(lines[i+1])
			}
			return ""
		}
	}
	return ""
}

// hasLabelPrefix matches prefix case-insensitively as a whole word, so
// "Boothby" is not mistaken for a booth label.
func hasLabelPrefix(line, prefix string) bool {
	if len(line) < len(prefix) || !strings.EqualFold(line[:len(prefix)], prefix) {
		return false
	}
	if len(line) == len(prefix) {
		return true
	}
	next := line[len(prefix)]
	return !(next >= 'A' && next <= 'Z' || next >= 'a' && next <= 'z')
}

// LoadCells reads a saved analysis document. It accepts either a bare JSON
// array of cells or an object with "cells" and "label".
func LoadCells(r io.Reader) (*Analysis, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading cells: %w", err)
	}
	text := stripCodeFence(string(data))
	if text == "" {
		return nil, ErrNoTable
	}

	var a Analysis
	if strings.HasPrefix(text, "[") {
		err = json.Unmarshal([]byte(text), &a.Cells)
	} else {
		err = json.Unmarshal([]byte(text), &a)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing cells: %w", err)
	}
	if len(a.Cells) == 0 {
		return nil, ErrNoTable
	}
	return &a, nil
}

// stripCodeFence removes a surrounding markdown code fence, which
// model-backed analysis endpoints sometimes wrap their JSON in.
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	endIdx := len(lines) - 1
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			endIdx = i
			break
		}
	}
	if endIdx < 1 {
		return ""
	}
	return strings.TrimSpace(strings.Join(lines[1:endIdx], "\n"))
}
