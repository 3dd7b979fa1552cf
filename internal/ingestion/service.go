package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

type (
	// Submission is the wire format of one submitted result, as posted by
	// runner workers. Field names follow the runner payload convention:
	// "pytest" carries the forced runner version. Unknown extra fields in
	// the payload are ignored by the JSON decoder.
	//
	// This is separate from the domain model (ResultRecord) to decouple the
	// submission contract from internal domain types.
	Submission struct {
		Name        string `json:"name"`
		Version     string `json:"version"`
		Env         string `json:"env"`
		Pytest      string `json:"pytest"`
		Status      string `json:"status"`
		Output      string `json:"output"`
		Description string `json:"description"`
	}

	// Rejection describes one submission that failed validation.
	Rejection struct {
		// Index is the submission's position in the original batch (0-based).
		Index int `json:"index"`

		// Reason is the human-readable validation failure.
		Reason string `json:"reason"`
	}

	// SubmitReport summarizes the outcome of one batch submission.
	//
	// Accepted + Rejected always equals the batch length, and
	// Created + Updated always equals Accepted. Resubmitting an identical
	// batch reports everything as updated, nothing as created.
	SubmitReport struct {
		// BatchID identifies this submission in logs and responses.
		BatchID string `json:"batchId"`

		// Accepted is the number of records validated and written.
		Accepted int `json:"accepted"`

		// Rejected is the number of records that failed validation and were
		// skipped. One bad record never aborts the rest of the batch.
		Rejected int `json:"rejected"`

		// Created is the number of accepted records that landed on a
		// previously untested cell.
		Created int `json:"created"`

		// Updated is the number of accepted records that replaced an
		// existing cell wholesale.
		Updated int `json:"updated"`

		// Rejections lists the per-record validation failures.
		Rejections []Rejection `json:"rejections,omitempty"`
	}

	// EnvResolver normalizes interpreter environment identifiers before they
	// become part of a cell key. The aliasing package provides the YAML-backed
	// implementation; a nil resolver leaves env values untouched.
	EnvResolver interface {
		Resolve(env string) string
	}

	// Service validates and normalizes incoming result batches and writes
	// them through to the ResultStore. It mutates the store and nothing
	// else: no network calls, no file writes.
	Service struct {
		store  ResultStore
		envs   EnvResolver
		logger *slog.Logger
	}
)

// NewService creates an ingestion service over the given store.
// envs may be nil, in which case env identifiers pass through unchanged.
func NewService(store ResultStore, envs EnvResolver, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		envs:   envs,
		logger: logger,
	}
}

// mapSubmission maps a wire Submission to the domain ResultRecord and
// validates it.
//
// Validation approach:
//   - here: field trimming, status decoding, name and env normalization
//   - domain (ResultRecord.Validate): required-field rules
//   - storage: nothing; stores never see invalid records
//
// Normalization is applied before the record is keyed so that casing or
// alias differences between submitters land on the same cell.
func (s *Service) mapSubmission(sub *Submission) (*ResultRecord, error) {
	status, err := ParseStatus(sub.Status)
	if err != nil {
		return nil, err
	}

	env := strings.TrimSpace(sub.Env)
	if s.envs != nil {
		env = s.envs.Resolve(env)
	}

	record := &ResultRecord{
		PluginName:    NormalizePluginName(sub.Name),
		PluginVersion: strings.TrimSpace(sub.Version),
		Env:           env,
		RunnerVersion: strings.TrimSpace(sub.Pytest),
		Status:        status,
		Output:        sub.Output,
		Description:   sub.Description,
	}

	if err := record.Validate(); err != nil {
		return nil, err
	}

	return record, nil
}

// Submit validates and ingests a batch of submissions.
//
// Per submission: validate required fields, decode the status enum,
// normalize the plugin name and env, then write through to the store at the
// record's CompositeKey. Validation failures are counted as rejected and
// skipped - partial-failure semantics, the rest of the batch still
// processes. Validation errors never escape Submit; they are collected into
// the report.
//
// Storage errors are different: they abort the batch and propagate to the
// caller untouched (wrapping ErrStorageUnavailable), so the surrounding
// service can retry. Submit never retries silently.
//
// Submit is idempotent: submitting an identical batch twice leaves the store
// in the same state, with the second report showing zero created.
func (s *Service) Submit(ctx context.Context, batch []Submission) (*SubmitReport, error) {
	startTime := time.Now()

	report := &SubmitReport{BatchID: uuid.NewString()}

	for i := range batch {
		record, err := s.mapSubmission(&batch[i])
		if err != nil {
			report.Rejected++
			report.Rejections = append(report.Rejections, Rejection{
				Index:  i,
				Reason: err.Error(),
			})

			s.logger.Warn("Submission rejected",
				slog.String("batch_id", report.BatchID),
				slog.Int("index", i),
				slog.String("name", batch[i].Name),
				slog.String("reason", err.Error()),
			)

			continue
		}

		outcome, err := s.store.Put(ctx, record)
		if err != nil {
			s.logger.Error("Result storage failed",
				slog.String("batch_id", report.BatchID),
				slog.Int("index", i),
				slog.String("plugin", record.PluginName),
				slog.String("error", err.Error()),
			)

			return nil, fmt.Errorf("put %s-%s [%s, pytest %s]: %w",
				record.PluginName, record.PluginVersion, record.Env, record.RunnerVersion, err)
		}

		report.Accepted++

		switch outcome {
		case PutCreated:
			report.Created++
		case PutUpdated:
			report.Updated++
		}
	}

	s.logger.Info("Batch submission complete",
		slog.String("batch_id", report.BatchID),
		slog.Int("total", len(batch)),
		slog.Int("accepted", report.Accepted),
		slog.Int("rejected", report.Rejected),
		slog.Int("created", report.Created),
		slog.Int("updated", report.Updated),
		slog.Duration("duration", time.Since(startTime)),
	)

	return report, nil
}

// ErrEmptyPayload indicates a submission payload with no content.
var ErrEmptyPayload = errors.New("empty submission payload")

// DecodeSubmissions decodes a submission payload into a batch.
//
// Runner workers historically post either a single JSON object or an array
// of objects; both forms are accepted. Unknown fields are ignored.
func DecodeSubmissions(data []byte) ([]Submission, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrEmptyPayload
	}

	if trimmed[0] == '[' {
		var batch []Submission
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, fmt.Errorf("invalid submission batch: %w", err)
		}

		return batch, nil
	}

	var single Submission
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, fmt.Errorf("invalid submission: %w", err)
	}

	return []Submission{single}, nil
}
