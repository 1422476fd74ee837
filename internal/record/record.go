// Package record holds the append-only sequence record of every node a
// traversal completed, with optional durable sinks.
package record

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/AaronLay10/NarrativeEngine/internal/narrative"
)

// Entry is one completed node.
type Entry struct {
	Seq       int64              `json:"seq"`
	RunID     string             `json:"run_id"`
	NodeID    string             `json:"node_id"`
	NodeName  string             `json:"node_name,omitempty"`
	Kind      narrative.NodeKind `json:"kind"`
	Depth     int                `json:"depth"`
	Cancelled bool               `json:"cancelled,omitempty"`
	At        time.Time          `json:"at"`
}

// Short renders the entry as id@depth.
func (e Entry) Short() string {
	s := fmt.Sprintf("%s@%d", e.NodeID, e.Depth)
	if e.Cancelled {
		s += "!"
	}
	return s
}

// Sink persists entries. Sink errors never fail an append.
type Sink interface {
	AppendEntry(ctx context.Context, e Entry) error
}

// Record is safe for concurrent appends from every sequencer of a traversal.
type Record struct {
	mu      sync.Mutex
	entries []Entry
	seq     int64
	now     func() time.Time

	sinkMu      sync.Mutex
	sinks       []Sink
	onSinkError func(error)
	reported    bool
}

// New creates an empty record writing through sinks.
func New(sinks ...Sink) *Record {
	return &Record{sinks: sinks, now: time.Now}
}

// AddSink attaches another durable sink.
func (r *Record) AddSink(s Sink) {
	r.sinkMu.Lock()
	r.sinks = append(r.sinks, s)
	r.sinkMu.Unlock()
}

// OnSinkError sets the callback invoked for the first sink failure only.
func (r *Record) OnSinkError(fn func(error)) {
	r.sinkMu.Lock()
	r.onSinkError = fn
	r.sinkMu.Unlock()
}

// Append assigns the next sequence number and timestamp, stores e and writes
// it to every sink.
func (r *Record) Append(ctx context.Context, e Entry) Entry {
	r.mu.Lock()
	r.seq++
	e.Seq = r.seq
	if e.At.IsZero() {
		e.At = r.now().UTC()
	}
	r.entries = append(r.entries, e)
	r.sinkMu.Lock()
	r.mu.Unlock()
	defer r.sinkMu.Unlock()

	for _, s := range r.sinks {
		if err := s.AppendEntry(ctx, e); err != nil && !r.reported {
			r.reported = true
			if r.onSinkError != nil {
				r.onSinkError(err)
			}
		}
	}
	return e
}

// Entries copies the record in append order.
func (r *Record) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// Run returns the entries of one traversal.
func (r *Record) Run(runID string) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Entry
	for _, e := range r.entries {
		if e.RunID == runID {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of entries.
func (r *Record) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Reset clears entries. Sequence numbers keep increasing.
func (r *Record) Reset() {
	r.mu.Lock()
	r.entries = nil
	r.mu.Unlock()
}

// Trace returns the short form of entries.
func Trace(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Short()
	}
	return out
}

// Format selects an output rendering.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Write renders entries to w. Text output indents by depth and omits
// timestamps.
func Write(w io.Writer, entries []Entry, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if entries == nil {
			entries = []Entry{}
		}
		return enc.Encode(entries)
	case FormatText, "":
		for _, e := range entries {
			status := "completed"
			if e.Cancelled {
				status = "cancelled"
			}
			name := ""
			if e.NodeName != "" && e.NodeName != e.NodeID {
				name = fmt.Sprintf(" (%s)", e.NodeName)
			}
			if _, err := fmt.Fprintf(w, "%3d %s%s%s [%s] depth=%d %s\n",
				e.Seq, strings.Repeat("  ", e.Depth), e.NodeID, name, e.Kind, e.Depth, status); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
