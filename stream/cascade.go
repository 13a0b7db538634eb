// Package stream provides DynamoDB Streams handlers for cascade deletes.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/cenkalti/backoff/v5"

	"github.com/chessdojo/dirtree/directory"
	"github.com/chessdojo/dirtree/internal/metrics"
	"github.com/chessdojo/dirtree/store"
)

// Deleter removes a directory row and returns its prior image.
type Deleter interface {
	DeleteDirectory(ctx context.Context, owner, id string) (*directory.Directory, error)
}

// Handler processes DynamoDB stream events for cascade deletes.
type Handler struct {
	deleter  Deleter
	refs     directory.CrossReferencer
	logger   *slog.Logger
	metrics  *metrics.Collector
	maxTries uint
	interval time.Duration
}

// Option configures a Handler.
type Option func(*Handler)

// WithCrossReferencer clears game back-references of deleted directories.
func WithCrossReferencer(refs directory.CrossReferencer) Option {
	return func(h *Handler) { h.refs = refs }
}

// WithMetrics records cascade outcomes on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(h *Handler) { h.metrics = c }
}

// WithRetry sets how many times a transient delete failure is attempted and
// the first backoff interval.
func WithRetry(maxTries uint, initial time.Duration) Option {
	return func(h *Handler) {
		if maxTries > 0 {
			h.maxTries = maxTries
		}
		if initial > 0 {
			h.interval = initial
		}
	}
}

// NewHandler creates a new stream handler.
func NewHandler(d Deleter, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		deleter:  d,
		logger:   logger,
		maxTries: 5,
		interval: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleCascadeDelete processes DynamoDB stream events. Records fail
// independently: a failed record is reported in BatchItemFailures so the
// stream retries it without replaying the records that succeeded. This
// function is designed to be used as an AWS Lambda handler with
// ReportBatchItemFailures enabled.
func (h *Handler) HandleCascadeDelete(ctx context.Context, event events.DynamoDBEvent) (events.DynamoDBEventResponse, error) {
	var resp events.DynamoDBEventResponse
	for i := range event.Records {
		record := &event.Records[i]
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"owner", getStringAttr(record.Change.Keys, "owner"),
				"directoryId", getStringAttr(record.Change.Keys, "id"),
				"error", err,
			)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.DynamoDBBatchItemFailure{
				ItemIdentifier: record.Change.SequenceNumber,
			})
		}
	}
	return resp, nil
}

// processRecord processes a single DynamoDB stream record.
func (h *Handler) processRecord(ctx context.Context, record *events.DynamoDBEventRecord) error {
	// Only row removals start a cascade
	if record.EventName != string(events.DynamoDBOperationTypeRemove) {
		return nil
	}
	if len(record.Change.OldImage) == 0 {
		h.logger.Warn("remove event without old image, check the stream view type",
			"eventID", record.EventID,
		)
		return nil
	}

	image, err := ConvertImage(record.Change.OldImage)
	if err != nil {
		h.logger.Error("skipping undecodable image", "eventID", record.EventID, "error", err)
		return nil
	}
	old, err := store.UnmarshalDirectory(image)
	if err != nil {
		h.logger.Error("skipping undecodable directory", "eventID", record.EventID, "error", err)
		return nil
	}

	return h.Cascade(ctx, old)
}

type job struct {
	owner string
	id    string
}

// Cascade deletes every descendant of removed, a directory row that no
// longer exists, breadth first. A child that is already gone is skipped, so
// replays and overlapping cascades never delete a row twice. Failures of one
// subtree do not stop the others; the returned error joins them.
func (h *Handler) Cascade(ctx context.Context, removed *directory.Directory) error {
	h.logger.Info("processing cascade delete",
		"owner", removed.Owner,
		"directoryId", removed.ID,
	)
	h.clearRefs(ctx, removed)

	seen := map[string]bool{removed.ID: true}
	queue := h.enqueue(nil, removed, seen)

	var errs []error
	deleted := 0
	for len(queue) > 0 {
		j := queue[0]
		queue = queue[1:]

		dir, err := h.delete(ctx, j)
		switch {
		case directory.KindOf(err) == directory.KindNotFound:
			h.metrics.CascadeDelete("missing")
			continue
		case err != nil:
			h.metrics.CascadeDelete(metrics.OutcomeError)
			errs = append(errs, fmt.Errorf("delete %s/%s: %w", j.owner, j.id, err))
			continue
		}

		deleted++
		h.metrics.CascadeDelete(metrics.OutcomeOK)
		h.clearRefs(ctx, dir)
		queue = h.enqueue(queue, dir, seen)
	}

	h.logger.Info("cascade delete completed",
		"owner", removed.Owner,
		"directoryId", removed.ID,
		"deleted", deleted,
		"failed", len(errs),
	)
	return errors.Join(errs...)
}

func (h *Handler) enqueue(queue []job, dir *directory.Directory, seen map[string]bool) []job {
	for _, itemID := range dir.ItemIDs {
		it, ok := dir.Items[itemID]
		if !ok || it.Type != directory.ItemTypeDirectory || seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		queue = append(queue, job{owner: dir.Owner, id: it.ID})
	}
	return queue
}

// delete removes one row, retrying transient failures with exponential
// backoff.
func (h *Handler) delete(ctx context.Context, j job) (*directory.Directory, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = h.interval

	return backoff.Retry(ctx, func() (*directory.Directory, error) {
		dir, err := h.deleter.DeleteDirectory(ctx, j.owner, j.id)
		if err != nil && directory.KindOf(err) != directory.KindTransient {
			return nil, backoff.Permanent(err)
		}
		return dir, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(h.maxTries))
}

func (h *Handler) clearRefs(ctx context.Context, dir *directory.Directory) {
	if h.refs == nil {
		return
	}
	var games []directory.Item
	for _, it := range dir.Items {
		if it.Type.IsGame() {
			games = append(games, it)
		}
	}
	if len(games) == 0 {
		return
	}
	if err := h.refs.RemoveDirectory(ctx, dir.Owner, dir.ID, games); err != nil {
		h.logger.Warn("failed to clear game back-references",
			"owner", dir.Owner,
			"directoryId", dir.ID,
			"error", err,
		)
	}
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}
