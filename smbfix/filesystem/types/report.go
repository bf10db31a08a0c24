package types

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/armon/go-radix"
	"github.com/google/uuid"
)

// Record is the outcome for one entry. Path is where the entry was found;
// NewPath is set only when a rename happened (or would happen in a dry run).
type Record struct {
	Path     string      `json:"path"`
	NewPath  string      `json:"new_path,omitempty"`
	Kind     EntryKind   `json:"kind"`
	Perm     *PermChange `json:"perm,omitempty"`
	Unlocked bool        `json:"unlocked,omitempty"`
	Excluded bool        `json:"excluded,omitempty"`
	Err      error       `json:"-"`
}

// Renamed reports whether the record carries a rename
func (r Record) Renamed() bool { return r.NewPath != "" && r.NewPath != r.Path }

// MarshalJSON adds the error text.
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	out := struct {
		plain
		Error string `json:"error,omitempty"`
	}{plain: plain(r)}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

// Summary holds the counts printed at the end of a pass.
type Summary struct {
	Visited     int `json:"visited"`
	Renamed     int `json:"renamed"`
	PermChanged int `json:"perm_changed"`
	Unlocked    int `json:"unlocked"`
	Excluded    int `json:"excluded"`
	Errors      int `json:"errors"`
}

// Changes is the number of modifications; zero means the tree was a fixed point.
func (s Summary) Changes() int { return s.Renamed + s.PermChanged + s.Unlocked }

// Report accumulates the records of one pass. It is owned by that pass until
// Finalize; afterwards it is read-only.
type Report struct {
	ID         uuid.UUID `json:"id"`
	Root       string    `json:"root"`
	DryRun     bool      `json:"dry_run"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Records    []Record  `json:"records"`
	Summary    Summary   `json:"summary"`

	once      sync.Once
	dirMoves  *radix.Tree
	finalized bool
}

// NewReport starts a report for root.
func NewReport(root string, dryRun bool) *Report {
	return &Report{
		ID:        uuid.New(),
		Root:      root,
		DryRun:    dryRun,
		StartedAt: time.Now(),
		dirMoves:  radix.New(),
	}
}

// Add appends a record. Records added after Finalize are dropped.
func (r *Report) Add(rec Record) {
	if r.finalized {
		return
	}
	r.Records = append(r.Records, rec)
	if rec.Kind == KindDirectory && rec.Renamed() {
		r.dirMoves.Insert(withSep(rec.Path), withSep(rec.NewPath))
	}
}

// Visit counts an entry whether or not a record was kept for it
func (r *Report) Visit() {
	if !r.finalized {
		r.Summary.Visited++
	}
}

// Finalize rewrites every new path to its final location, following renames of
// ancestor directories that happened later in the pass, and computes the summary.
func (r *Report) Finalize() *Report {
	r.once.Do(func() {
		for i := range r.Records {
			rec := &r.Records[i]
			if rec.Renamed() {
				rec.NewPath = r.resolve(rec.NewPath)
			}
			if rec.Renamed() {
				r.Summary.Renamed++
			}
			if rec.Perm != nil {
				r.Summary.PermChanged++
			}
			if rec.Unlocked {
				r.Summary.Unlocked++
			}
			if rec.Excluded {
				r.Summary.Excluded++
			}
			if rec.Err != nil {
				r.Summary.Errors++
			}
		}
		r.FinishedAt = time.Now()
		r.finalized = true
	})
	return r
}

// resolve applies directory moves from the deepest renamed ancestor outwards.
// Each step moves to a shallower ancestor, so the path depth bounds the loop.
func (r *Report) resolve(p string) string {
	limit := strings.Count(p, string(filepath.Separator)) + 1
	for range limit {
		prefix, v, ok := r.dirMoves.LongestPrefix(p)
		if !ok {
			break
		}
		p = v.(string) + p[len(prefix):]
	}
	return p
}

// Errors returns the records that failed
func (r *Report) Errors() []Record {
	var out []Record
	for _, rec := range r.Records {
		if rec.Err != nil {
			out = append(out, rec)
		}
	}
	return out
}

// Renames returns the records that carry a rename
func (r *Report) Renames() []Record {
	var out []Record
	for _, rec := range r.Records {
		if rec.Renamed() {
			out = append(out, rec)
		}
	}
	return out
}

// HasErrors reports whether any entry failed
func (r *Report) HasErrors() bool {
	for _, rec := range r.Records {
		if rec.Err != nil {
			return true
		}
	}
	return false
}

// Duration is the wall time of the pass
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func withSep(p string) string {
	return strings.TrimSuffix(p, string(filepath.Separator)) + string(filepath.Separator)
}
