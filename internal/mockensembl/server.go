package mockensembl

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Call records a request made to the mock service.
type Call struct {
	Method    string
	Path      string
	Species   string
	Symbol    string
	Query     string
	UserAgent string
}

// Homology is one homology entry served for a gene.
type Homology struct {
	Symbol  string   `yaml:"symbol"`
	Species string   `yaml:"species"`
	Type    string   `yaml:"type"`
	PercID  *float64 `yaml:"perc_id"`
	PercPos *float64 `yaml:"perc_pos"`
}

// Fixture describes how the server answers for one gene symbol.
type Fixture struct {
	Homologies []Homology `yaml:"homologies"`

	// Status, when set without Body, answers with an Ensembl-style error envelope.
	Status int `yaml:"status"`
	// Body, when set, is written verbatim with Status (default 200).
	Body string `yaml:"body"`

	// FailFirst makes the first n requests answer FailStatus (default 503).
	FailFirst  int `yaml:"fail_first"`
	FailStatus int `yaml:"fail_status"`

	// Delay holds each response back, bounded by the request context.
	Delay time.Duration `yaml:"delay"`
}

// FixtureFile is the YAML document accepted by LoadFixtures.
//
// Example:
//
//	genes:
//	  Pdx1:
//	    homologies:
//	      - symbol: PDX1
//	        species: homo_sapiens
//	        type: ortholog_one2one
//	        perc_id: 98.5
//	        perc_pos: 97.2
type FixtureFile struct {
	Genes map[string]Fixture `yaml:"genes"`
}

// LoadFixtures reads a FixtureFile from path.
func LoadFixtures(path string) (map[string]Fixture, error) {
	b, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		return nil, fmt.Errorf("read fixtures file: %w", err)
	}
	var ff FixtureFile
	if err := yaml.Unmarshal(b, &ff); err != nil {
		return nil, fmt.Errorf("parse fixtures YAML: %w", err)
	}
	return ff.Genes, nil
}

// Server implements the homology/symbol endpoint of the Ensembl REST API.
type Server struct {
	mu       sync.Mutex
	calls    []Call
	fixtures map[string]Fixture
	served   map[string]int
}

// New constructs an empty mock server. Unknown symbols answer 400 like the real service.
func New() *Server {
	return &Server{
		fixtures: make(map[string]Fixture),
		served:   make(map[string]int),
	}
}

// Set installs the fixture for symbol, replacing any previous one.
func (s *Server) Set(symbol string, f Fixture) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixtures[symbol] = f
}

// SetAll installs every fixture in fixtures.
func (s *Server) SetAll(fixtures map[string]Fixture) {
	for symbol, f := range fixtures {
		s.Set(symbol, f)
	}
}

// Handler returns an http.Handler that serves the mock API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /homology/symbol/{species}/{symbol}", s.handleHomology)
	return mux
}

// Calls returns a snapshot of calls made to the server.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many requests asked for symbol.
func (s *Server) CallCount(symbol string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.served[symbol]
}

func (s *Server) handleHomology(w http.ResponseWriter, r *http.Request) {
	species := r.PathValue("species")
	symbol := r.PathValue("symbol")

	s.mu.Lock()
	s.calls = append(s.calls, Call{
		Method:    r.Method,
		Path:      r.URL.Path,
		Species:   species,
		Symbol:    symbol,
		Query:     r.URL.RawQuery,
		UserAgent: r.UserAgent(),
	})
	s.served[symbol]++
	n := s.served[symbol]
	f, ok := s.fixtures[symbol]
	s.mu.Unlock()

	if ok && f.Delay > 0 {
		t := time.NewTimer(f.Delay)
		select {
		case <-t.C:
		case <-r.Context().Done():
			t.Stop()
			return
		}
	}

	switch {
	case !ok:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("No valid lookup found for symbol %s", symbol))
	case n <= f.FailFirst:
		status := f.FailStatus
		if status == 0 {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, http.StatusText(status))
	case f.Body != "":
		status := f.Status
		if status == 0 {
			status = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(f.Body))
	case f.Status != 0:
		writeError(w, f.Status, http.StatusText(f.Status))
	default:
		writeJSON(w, http.StatusOK, homologyPayload(symbol, f.Homologies))
	}
}

type payload struct {
	Data []payloadData `json:"data"`
}

type payloadData struct {
	ID         string            `json:"id"`
	Homologies []payloadHomology `json:"homologies"`
}

type payloadHomology struct {
	Type   string        `json:"type"`
	Target payloadTarget `json:"target"`
}

type payloadTarget struct {
	ID      string   `json:"id"`
	Species string   `json:"species"`
	PercID  *float64 `json:"perc_id"`
	PercPos *float64 `json:"perc_pos"`
}

func homologyPayload(symbol string, homologies []Homology) payload {
	entries := make([]payloadHomology, 0, len(homologies))
	for _, h := range homologies {
		entries = append(entries, payloadHomology{
			Type: h.Type,
			Target: payloadTarget{
				ID:      h.Symbol,
				Species: h.Species,
				PercID:  h.PercID,
				PercPos: h.PercPos,
			},
		})
	}
	return payload{Data: []payloadData{{ID: "mock:" + symbol, Homologies: entries}}}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Float returns a pointer to v, for building fixtures inline.
func Float(v float64) *float64 {
	return &v
}
