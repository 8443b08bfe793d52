// Package ingest gates extracted deal batches on quality validation and
// pushes accepted batches into the search index.
package ingest

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/dealzen/deals-cli/internal/model"
	"github.com/dealzen/deals-cli/internal/queue"
	"github.com/dealzen/deals-cli/internal/validate"
	"github.com/dealzen/deals-cli/pkg/weaviate"
)

// Gate validates a batch, records the outcome in the retry queue, and
// indexes accepted deals.
type Gate struct {
	validator *validate.Validator
	search    weaviate.Client
	queue     *queue.RetryQueue
}

// Result reports what the gate did with one batch.
type Result struct {
	Report   *validate.Report
	Indexed  bool
	Inserted int
	Failed   int
}

// NewGate wires a gate from its collaborators. The queue may be nil when
// ingesting a pre-validated deals file outside the flyer pipeline.
func NewGate(validator *validate.Validator, search weaviate.Client, q *queue.RetryQueue) *Gate {
	return &Gate{validator: validator, search: search, queue: q}
}

// IngestBatch runs the full gate for the deals extracted from one flyer
// image. Rejected batches are queued for retry and never reach the index.
func (g *Gate) IngestBatch(ctx context.Context, imagePath string, deals []model.Deal) (*Result, error) {
	report := g.validator.Validate(deals)
	result := &Result{Report: report}

	switch report.Decision {
	case validate.DecisionReject:
		zap.L().Error("batch rejected, deals withheld from index",
			zap.String("image", imagePath),
			zap.Int("score", report.Score),
			zap.String("reason", report.Reason))
		if g.queue != nil {
			payload, _ := json.Marshal(deals)
			if err := g.queue.RecordFailure(ctx, imagePath, report.Reason, report.Score, payload); err != nil {
				return result, eris.Wrap(err, "ingest: record rejection")
			}
		}
		return result, nil

	case validate.DecisionRetry:
		// Marginal quality ships anyway; the failure record keeps an audit
		// trail so the flyer can be re-extracted later.
		zap.L().Warn("batch below target quality, indexing with audit record",
			zap.String("image", imagePath),
			zap.Int("score", report.Score),
			zap.String("reason", report.Reason))
		if g.queue != nil {
			payload, _ := json.Marshal(deals)
			if err := g.queue.RecordFailure(ctx, imagePath, report.Reason, report.Score, payload); err != nil {
				return result, eris.Wrap(err, "ingest: record retry")
			}
		}
	}

	inserted, failed, err := g.Index(ctx, deals)
	result.Inserted = inserted
	result.Failed = failed
	if err != nil {
		return result, err
	}
	result.Indexed = true

	if g.queue != nil {
		if err := g.queue.RecordSuccess(ctx, imagePath, report.Score, len(deals)); err != nil {
			return result, eris.Wrap(err, "ingest: record success")
		}
	}
	return result, nil
}

// Index writes a deal batch into the search collection, returning inserted
// and failed counts.
func (g *Gate) Index(ctx context.Context, deals []model.Deal) (int, int, error) {
	if err := g.search.EnsureSchema(ctx); err != nil {
		return 0, 0, eris.Wrap(err, "ingest: ensure schema")
	}

	objects := make([]weaviate.Object, 0, len(deals))
	for _, d := range deals {
		normalized := d
		if d.ValidFrom != nil {
			v := EnsureRFC3339(*d.ValidFrom)
			normalized.ValidFrom = &v
		}
		if d.ValidTo != nil {
			v := EnsureRFC3339End(*d.ValidTo)
			normalized.ValidTo = &v
		}

		full, err := json.Marshal(normalized)
		if err != nil {
			return 0, 0, eris.Wrapf(err, "ingest: marshal deal %q", d.ProductName)
		}

		obj := weaviate.Object{
			ProductName:     normalized.ProductName,
			ProductCategory: normalized.ProductCategory,
			Store:           normalized.Store,
			VectorText:      normalized.VectorText(),
			FullJSON:        string(full),
		}
		if normalized.SKU != nil {
			obj.SKU = *normalized.SKU
		}
		if normalized.ValidTo != nil {
			obj.ValidTo = *normalized.ValidTo
		}
		objects = append(objects, obj)
	}

	report, err := g.search.BatchInsert(ctx, objects)
	if err != nil {
		return 0, 0, eris.Wrap(err, "ingest: batch insert")
	}

	if report.Failed > 0 {
		zap.L().Warn("batch insert errors",
			zap.Int("inserted", report.Inserted),
			zap.Int("failed", report.Failed),
			zap.Strings("first_errors", report.Errors))
	} else {
		zap.L().Info("deals indexed", zap.Int("inserted", report.Inserted))
	}
	return report.Inserted, report.Failed, nil
}
