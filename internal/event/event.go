// Package event defines the write-only observer capability the core emits
// progress, status, URB trace numbers, and errors into ("signals as
// callbacks" rather than a channel the core reads back).
package event

import (
	"log"
)

// Sink is single-consumer; writes are expected to be non-blocking and
// dropped events are acceptable. The core never reads it back.
type Sink interface {
	URB(index int)
	Progress(percent int)
	Status(text string)
	Error(text string)
}

// LogSink writes every channel to a *log.Logger as phase banners. URB
// tracing is toggled independently so it can be suppressed at source rather
// than filtered by the consumer.
type LogSink struct {
	Logger    *log.Logger
	EnableURB bool
}

// NewLogSink wraps logger (or the default logger if nil) with URB tracing
// off by default.
func NewLogSink(logger *log.Logger) *LogSink {
	if logger == nil {
		logger = log.Default()
	}
	return &LogSink{Logger: logger}
}

func (s *LogSink) URB(index int) {
	if !s.EnableURB {
		return
	}
	s.Logger.Printf("urb #%d", index)
}

func (s *LogSink) Progress(percent int) { s.Logger.Printf("progress %3d%%", percent) }
func (s *LogSink) Status(text string)   { s.Logger.Printf("status: %s", text) }
func (s *LogSink) Error(text string)    { s.Logger.Printf("error: %s", text) }

// Recording is a test double that records every emitted event in order.
type Recording struct {
	URBs       []int
	Progresses []int
	Statuses   []string
	Errors     []string
}

func (r *Recording) URB(index int)      { r.URBs = append(r.URBs, index) }
func (r *Recording) Progress(percent int) { r.Progresses = append(r.Progresses, percent) }
func (r *Recording) Status(text string) { r.Statuses = append(r.Statuses, text) }
func (r *Recording) Error(text string)  { r.Errors = append(r.Errors, text) }

// LastError returns the most recently recorded error text, or "" if none.
func (r *Recording) LastError() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[len(r.Errors)-1]
}
