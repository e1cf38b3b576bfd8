package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// LogSink writes each envelope as a structured log line.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink constructs a sink that logs reports.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "report_log").Logger()}
}

// Deliver implements Sink.
func (s *LogSink) Deliver(_ context.Context, envelope Envelope) error {
	s.logger.Info().
		Str("evaluation", envelope.Evaluation).
		Str("category", envelope.Category).
		RawJSON("payload", envelope.Payload).
		Msg("report")
	return nil
}

// Publisher is the subset of *nats.Conn used for reports.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes envelopes on <subject>.<category>.
type NATSSink struct {
	publisher Publisher
	subject   string
}

// NewNATSSink constructs a sink publishing under the subject prefix.
func NewNATSSink(publisher Publisher, subject string) *NATSSink {
	if subject == "" {
		subject = "gema.reports"
	}
	return &NATSSink{publisher: publisher, subject: strings.TrimSuffix(subject, ".")}
}

// Deliver implements Sink.
func (s *NATSSink) Deliver(_ context.Context, envelope Envelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	subject := s.subject + "." + envelope.Category
	if err := s.publisher.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Uploader stores a named blob and returns where it ended up.
type Uploader interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// ArchiveSink uploads each envelope as <evaluation>-<category>.json.
type ArchiveSink struct {
	uploader Uploader
	logger   zerolog.Logger
}

// NewArchiveSink constructs an archiving sink.
func NewArchiveSink(uploader Uploader, logger zerolog.Logger) *ArchiveSink {
	return &ArchiveSink{
		uploader: uploader,
		logger:   logger.With().Str("component", "report_archive").Logger(),
	}
}

// Deliver implements Sink.
func (s *ArchiveSink) Deliver(ctx context.Context, envelope Envelope) error {
	payload, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return err
	}

	name := ArchiveName(envelope)
	location, err := s.uploader.Upload(ctx, name, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("archive %s: %w", name, err)
	}

	s.logger.Debug().Str("name", name).Str("location", location).Msg("report archived")
	return nil
}

// ArchiveName is the object name used for an archived envelope.
func ArchiveName(envelope Envelope) string {
	evaluation := envelope.Evaluation
	if evaluation == "" {
		evaluation = "adhoc"
	}
	return fmt.Sprintf("%s-%s.json", evaluation, envelope.Category)
}
