// Package report delivers rubric and complexity reports produced by an evaluation
// to one or more sinks.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Envelope wraps a payload with the evaluation it belongs to.
type Envelope struct {
	Evaluation string          `json:"evaluation"`
	Category   string          `json:"category"`
	Payload    json.RawMessage `json:"payload"`
	ReportedAt time.Time       `json:"reported_at"`
}

// Sink receives envelopes.
type Sink interface {
	Deliver(ctx context.Context, envelope Envelope) error
}

// SinkFunc adapts a function into a Sink.
type SinkFunc func(ctx context.Context, envelope Envelope) error

// Deliver implements Sink.
func (f SinkFunc) Deliver(ctx context.Context, envelope Envelope) error {
	return f(ctx, envelope)
}

// Dispatcher implements autograder.Reporter for a single evaluation. Every sink is
// tried for every report; failures are joined.
type Dispatcher struct {
	evaluation string
	sinks      []Sink
	now        func() time.Time
}

// NewDispatcher constructs a dispatcher that tags envelopes with evaluation.
func NewDispatcher(evaluation string, sinks ...Sink) *Dispatcher {
	filtered := make([]Sink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			filtered = append(filtered, sink)
		}
	}
	return &Dispatcher{evaluation: evaluation, sinks: filtered, now: time.Now}
}

// Report encodes payload and hands it to every sink.
func (d *Dispatcher) Report(ctx context.Context, category string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s report: %w", category, err)
	}

	envelope := Envelope{
		Evaluation: d.evaluation,
		Category:   category,
		Payload:    data,
		ReportedAt: d.now().UTC(),
	}

	var errs []error
	for _, sink := range d.sinks {
		if err := sink.Deliver(ctx, envelope); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps every envelope in memory in delivery order.
type Recorder struct {
	mu        sync.Mutex
	envelopes []Envelope
}

// NewRecorder constructs an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Deliver implements Sink.
func (r *Recorder) Deliver(_ context.Context, envelope Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envelopes = append(r.envelopes, envelope)
	return nil
}

// Envelopes returns a copy of everything recorded so far.
func (r *Recorder) Envelopes() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Envelope(nil), r.envelopes...)
}

// Categories lists recorded categories in order.
func (r *Recorder) Categories() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	categories := make([]string, 0, len(r.envelopes))
	for _, envelope := range r.envelopes {
		categories = append(categories, envelope.Category)
	}
	return categories
}
