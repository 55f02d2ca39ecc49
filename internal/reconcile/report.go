package reconcile

import "fmt"

// Report summarizes one sync invocation. It is constructed fresh per call
// and returned as a response payload, never persisted.
type Report struct {
	Success    bool     `json:"success"`
	Message    string   `json:"message,omitempty"`
	Created    int      `json:"created"`
	Updated    int      `json:"updated"`
	Skipped    int      `json:"skipped"`
	Registered int      `json:"registered"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors"`
}

func newReport() *Report {
	return &Report{Errors: []string{}}
}

// addError records a per-item failure without aborting the sync loop.
func (r *Report) addError(warehouse string, err error) {
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", warehouse, err))
	r.Failed++
}

// merge folds another report's counters into this one.
func (r *Report) merge(other *Report) {
	r.Created += other.Created
	r.Updated += other.Updated
	r.Skipped += other.Skipped
	r.Registered += other.Registered
	r.Failed += other.Failed
	r.Errors = append(r.Errors, other.Errors...)
}
