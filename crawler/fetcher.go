package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"time"
	"uniswap-v2-crawler/boff"
	"uniswap-v2-crawler/logger"
	"uniswap-v2-crawler/metrics"
	"uniswap-v2-crawler/subgraph"

	"github.com/pkg/errors"
)

// ErrRetriesExhausted is returned when a page could not be fetched within
// the retry policy. It wraps the last remote query error.
var ErrRetriesExhausted = errors.New("retries exhausted")

// QueryClient executes one page request against the remote source.
type QueryClient interface {
	Execute(ctx context.Context, q subgraph.Query) (subgraph.Response, error)
}

type QueryBuilder interface {
	Build(collection string, shape subgraph.Shape, cursor string, blocks subgraph.BlockRange) (subgraph.Query, error)
}

// Record is a top level record of a collection, T is expected to be a pointer.
type Record interface {
	GetID() string
	Validate() error
}

type Page[T Record] struct {
	Records []T
	// Cursor is the id of the last record, the lower bound of the next page.
	Cursor    string
	Processed int
	Total     int
}

// Progress is the fraction of the counted total processed up to and
// including this page. It can exceed 1 when records were added upstream
// after the counting pass.
func (p *Page[T]) Progress() float64 {
	if p.Total == 0 {
		return 1
	}
	return float64(p.Processed) / float64(p.Total)
}

type fetchOptions struct {
	startCursor string
}

type FetchOption func(*fetchOptions)

// WithStartCursor starts the data pass after cursor instead of at the
// beginning of the collection.
func WithStartCursor(cursor string) FetchOption {
	return func(o *fetchOptions) {
		o.startCursor = cursor
	}
}

// PaginatingFetcher walks one collection with a counting pass over ids
// followed by a data pass over full records, both in ascending id order.
type PaginatingFetcher[T Record] struct {
	collection string
	client     QueryClient
	builder    QueryBuilder
	policy     boff.Policy
	metrics    *metrics.Collector
}

func NewPaginatingFetcher[T Record](
	collection string, client QueryClient, builder QueryBuilder, policy boff.Policy, m *metrics.Collector,
) *PaginatingFetcher[T] {
	if m == nil {
		m = metrics.New()
	}

	notify := policy.Notify
	policy.Notify = func(err error, d time.Duration) {
		m.ObserveRetry(collection)
		if notify != nil {
			notify(err, d)
		}
	}

	return &PaginatingFetcher[T]{
		collection: collection,
		client:     client,
		builder:    builder,
		policy:     policy,
		metrics:    m,
	}
}

func (f *PaginatingFetcher[T]) Collection() string {
	return f.collection
}

// Count runs the counting pass. skipped is the number of ids that are not
// after startCursor.
func (f *PaginatingFetcher[T]) Count(ctx context.Context, blocks subgraph.BlockRange, startCursor string) (total, skipped int, err error) {
	cursor := ""
	for {
		raw, err := f.fetchPage(ctx, subgraph.ShapeIDs, cursor, blocks)
		if err != nil {
			return 0, 0, err
		}
		if len(raw) == 0 {
			break
		}

		ids, err := decodeRecords[*subgraph.Identifier](raw)
		if err != nil {
			return 0, 0, err
		}

		total += len(ids)
		if startCursor != "" {
			for _, id := range ids {
				if id.ID <= startCursor {
					skipped++
				}
			}
		}
		cursor = ids[len(ids)-1].ID
	}

	return total, skipped, nil
}

// FetchAll returns the pages of the data pass. The counting pass runs when
// iteration starts. Iteration stops after the first empty page or at the
// first error, which is yielded with a nil page.
func (f *PaginatingFetcher[T]) FetchAll(ctx context.Context, blocks subgraph.BlockRange, opts ...FetchOption) iter.Seq2[*Page[T], error] {
	var o fetchOptions
	for _, opt := range opts {
		opt(&o)
	}

	return func(yield func(*Page[T], error) bool) {
		total, skipped, err := f.Count(ctx, blocks, o.startCursor)
		if err != nil {
			yield(nil, errors.Wrapf(err, "counting %s", f.collection))
			return
		}
		logger.Info("total number of %s: %d", f.collection, total)
		f.metrics.SetTotal(f.collection, total)

		cursor := o.startCursor
		processed := skipped
		for {
			raw, err := f.fetchPage(ctx, subgraph.ShapeFull, cursor, blocks)
			if err != nil {
				yield(nil, errors.Wrapf(err, "fetching %s", f.collection))
				return
			}
			if len(raw) == 0 {
				return
			}

			records, err := decodeRecords[T](raw)
			if err != nil {
				yield(nil, errors.Wrapf(err, "decoding %s after %q", f.collection, cursor))
				return
			}
			logger.Debug("fetching %s %s", f.collection, records[0].GetID())

			processed += len(records)
			cursor = records[len(records)-1].GetID()

			page := &Page[T]{
				Records:   records,
				Cursor:    cursor,
				Processed: processed,
				Total:     total,
			}
			if !yield(page, nil) {
				return
			}
		}
	}
}

// fetchPage requests one page and retries remote query failures according
// to the policy. Any other failure is returned immediately.
func (f *PaginatingFetcher[T]) fetchPage(
	ctx context.Context, shape subgraph.Shape, cursor string, blocks subgraph.BlockRange,
) ([]json.RawMessage, error) {
	query, err := f.builder.Build(f.collection, shape, cursor, blocks)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("%s %s page after %q", f.collection, shape, cursor)
	records, err := boff.RetryWithPolicy(ctx, f.policy, func() ([]json.RawMessage, error) {
		res, err := f.client.Execute(ctx, query)
		f.metrics.ObserveQuery(f.collection, shape.String(), err)
		if err != nil {
			if errors.Is(err, subgraph.ErrRemoteQuery) {
				return nil, err
			}
			return nil, boff.Permanent(err)
		}
		return res[f.collection], nil
	}, name)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, subgraph.ErrRemoteQuery) {
			logger.Error("%s: giving up: %s", name, err)
			return nil, fmt.Errorf("%w: %s: %w", ErrRetriesExhausted, name, err)
		}
		return nil, err
	}

	return records, nil
}

var null = []byte("null")

func decodeRecords[T Record](raw []json.RawMessage) ([]T, error) {
	records := make([]T, len(raw))
	for i := range raw {
		if bytes.Equal(bytes.TrimSpace(raw[i]), null) {
			return nil, errors.Wrapf(subgraph.ErrMalformedRecord, "record %d is null", i)
		}
		if err := json.Unmarshal(raw[i], &records[i]); err != nil {
			return nil, errors.Wrapf(subgraph.ErrMalformedRecord, "record %d: %s", i, err)
		}
		if err := records[i].Validate(); err != nil {
			return nil, err
		}
	}
	return records, nil
}
