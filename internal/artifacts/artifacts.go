// Package artifacts persists unfolding inputs and results: named
// distribution files on disk and a SQLite archive of completed runs.
package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/qunfold/qunfold/internal/histogram"
	"github.com/qunfold/qunfold/internal/response"
)

// Distribution is one named unfolding problem: a truth spectrum, the
// smeared measurement, and the response matrix that connects them.
// Truth may be absent for real data where only the measurement exists.
type Distribution struct {
	Name           string      `json:"name"`
	TruthEdges     []float64   `json:"truth_edges"`
	Truth          []float64   `json:"truth,omitempty"`
	MeasuredEdges  []float64   `json:"measured_edges"`
	Measured       []float64   `json:"measured"`
	MeasuredErrors []float64   `json:"measured_errors,omitempty"`
	Response       [][]float64 `json:"response"`
}

// MeasuredHistogram builds the measured histogram from the stored
// arrays. Missing errors default to Poisson.
func (d *Distribution) MeasuredHistogram() (*histogram.Histogram, error) {
	if d.MeasuredErrors == nil {
		return histogram.FromCounts(d.MeasuredEdges, d.Measured)
	}
	return histogram.New(d.MeasuredEdges, d.Measured, d.MeasuredErrors)
}

// TruthHistogram builds the truth histogram, or nil when the
// distribution carries no truth reference.
func (d *Distribution) TruthHistogram() (*histogram.Histogram, error) {
	if d.Truth == nil {
		return nil, nil
	}
	return histogram.FromCounts(d.TruthEdges, d.Truth)
}

// ResponseOperator builds the response operator from the stored matrix.
func (d *Distribution) ResponseOperator() (*response.Operator, error) {
	return response.New(d.Response)
}

// Store reads and writes distribution files under a single directory,
// one JSON file per distribution.
type Store struct {
	dir string
	log zerolog.Logger
}

// NewStore creates a distribution store rooted at dir, creating the
// directory when needed.
func NewStore(dir string, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifacts directory: %w", err)
	}
	return &Store{
		dir: dir,
		log: log.With().Str("component", "artifacts").Logger(),
	}, nil
}

// Save writes a distribution to <dir>/<name>.json, replacing any
// previous version atomically.
func (s *Store) Save(d *Distribution) error {
	if d.Name == "" {
		return fmt.Errorf("distribution needs a name")
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal distribution %s: %w", d.Name, err)
	}

	final := s.path(d.Name)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write distribution %s: %w", d.Name, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("failed to replace distribution %s: %w", d.Name, err)
	}

	s.log.Debug().Str("name", d.Name).Str("path", final).Msg("Saved distribution")
	return nil
}

// Load reads a distribution by name.
func (s *Store) Load(name string) (*Distribution, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return nil, fmt.Errorf("failed to read distribution %s: %w", name, err)
	}
	var d Distribution
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse distribution %s: %w", name, err)
	}
	if d.Name == "" {
		d.Name = name
	}
	return &d, nil
}

// List returns the names of all stored distributions, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}
