package gps

import (
	"sync"
	"time"
)

// Diagnostic is one recent framing or decode problem.
type Diagnostic struct {
	TimeUTC string `json:"time_utc"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// tailBuffer keeps the most recent diagnostics for the status page.
type tailBuffer struct {
	mu       sync.Mutex
	maxLines int
	maxBytes int
	lines    []Diagnostic
}

func newTailBuffer(maxLines int, maxBytes int) *tailBuffer {
	if maxLines < 0 {
		maxLines = 0
	}
	if maxBytes <= 0 {
		maxBytes = 512
	}
	return &tailBuffer{maxLines: maxLines, maxBytes: maxBytes, lines: make([]Diagnostic, 0, maxLines)}
}

func (t *tailBuffer) add(at time.Time, kind string, msg string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.maxLines == 0 {
		return
	}
	if len(msg) > t.maxBytes {
		msg = msg[:t.maxBytes]
	}
	d := Diagnostic{TimeUTC: at.UTC().Format(time.RFC3339Nano), Kind: kind, Message: msg}
	if len(t.lines) < t.maxLines {
		t.lines = append(t.lines, d)
		return
	}
	copy(t.lines, t.lines[1:])
	t.lines[len(t.lines)-1] = d
}

func (t *tailBuffer) snapshot() []Diagnostic {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Diagnostic, 0, len(t.lines))
	out = append(out, t.lines...)
	return out
}
