// Package status exposes the daemon's diagnostics over HTTP: liveness,
// loop counters, and the recent findings ring.
package status

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sfc-gh-svemuri/feedcheck/internal/verify"
)

// Recorder keeps the most recent findings in a bounded ring. It
// implements verify.Reporter and is safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	findings []verify.Finding
	max      int
	total    int64
}

// NewRecorder creates a recorder keeping at most max findings.
func NewRecorder(max int) *Recorder {
	if max <= 0 {
		max = 128
	}
	return &Recorder{max: max}
}

// Report records a finding, evicting the oldest past capacity.
func (r *Recorder) Report(f verify.Finding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total++
	r.findings = append(r.findings, f)
	if len(r.findings) > r.max {
		r.findings = r.findings[1:]
	}
}

// Findings returns the retained findings, oldest first.
func (r *Recorder) Findings() []verify.Finding {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]verify.Finding, len(r.findings))
	copy(out, r.findings)
	return out
}

// Total returns how many findings were ever reported.
func (r *Recorder) Total() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// statusResponse is the /status payload.
type statusResponse struct {
	RangeID      string `json:"range_id"`
	Iterations   int64  `json:"iterations"`
	Mismatches   int64  `json:"mismatches"`
	LastVersionA int64  `json:"last_version_a"`
	LastVersionB int64  `json:"last_version_b"`
	Findings     int64  `json:"findings_total"`
}

// findingResponse is one element of the /findings payload. Keys and
// values are hex encoded since they are arbitrary bytes.
type findingResponse struct {
	RangeID       string    `json:"range_id"`
	VersionA      int64     `json:"version_a"`
	VersionB      int64     `json:"version_b"`
	Outcome       string    `json:"outcome"`
	ExpectedLen   int       `json:"expected_len,omitempty"`
	ActualLen     int       `json:"actual_len,omitempty"`
	Index         int       `json:"index"`
	ExpectedKey   string    `json:"expected_key,omitempty"`
	ExpectedValue string    `json:"expected_value,omitempty"`
	ActualKey     string    `json:"actual_key,omitempty"`
	ActualValue   string    `json:"actual_value,omitempty"`
	Observed      time.Time `json:"observed"`
}

// NewHandler builds the diagnostics router for one verifier.
func NewHandler(v *verify.Verifier, rec *Recorder) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		stats := v.Stats()
		writeJSON(w, statusResponse{
			RangeID:      v.RangeID(),
			Iterations:   stats.Iterations,
			Mismatches:   stats.Mismatches,
			LastVersionA: stats.LastVersionA,
			LastVersionB: stats.LastVersionB,
			Findings:     rec.Total(),
		})
	})

	r.Get("/findings", func(w http.ResponseWriter, req *http.Request) {
		findings := rec.Findings()
		out := make([]findingResponse, len(findings))
		for i, f := range findings {
			out[i] = toResponse(f)
		}
		writeJSON(w, out)
	})

	return r
}

func toResponse(f verify.Finding) findingResponse {
	out := findingResponse{
		RangeID:  f.RangeID,
		VersionA: f.VersionA,
		VersionB: f.VersionB,
		Outcome:  f.Result.Outcome(),
		Observed: f.Observed,
	}
	if f.Result.SizeMismatch {
		out.ExpectedLen = f.Result.ExpectedLen
		out.ActualLen = f.Result.ActualLen
		return out
	}
	out.Index = f.Result.Index
	out.ExpectedKey = hex.EncodeToString(f.Result.Expected.Key)
	out.ExpectedValue = hex.EncodeToString(f.Result.Expected.Value)
	out.ActualKey = hex.EncodeToString(f.Result.Actual.Key)
	out.ActualValue = hex.EncodeToString(f.Result.Actual.Value)
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
