package fetch

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"webresearch/internal/extract"
	"webresearch/internal/logging"
)

// Single is the one-URL operation a Batch drives.
type Single interface {
	Fetch(ctx context.Context, req Request) extract.Document
}

// Batch runs many fetches in windows.
type Batch struct {
	fetcher Single
	// Template supplies per-request options; its URL is ignored.
	Template Request
}

// NewBatch wraps a fetcher.
func NewBatch(f Single) *Batch {
	return &Batch{fetcher: f}
}

// FetchAll fetches every URL and returns one Document per input, in input
// order. Windows of size concurrency run one after another; inside a window
// item i starts after i*interItemDelay. A failed URL never aborts the batch.
func (b *Batch) FetchAll(ctx context.Context, urls []string, concurrency int, interItemDelay time.Duration) []extract.Document {
	out := make([]extract.Document, len(urls))
	b.Each(ctx, urls, concurrency, interItemDelay, func(i int, doc extract.Document) {
		out[i] = doc
	})
	return out
}

// Each is FetchAll with a callback per completed item. onDone may be called
// from several goroutines at once and must be safe for that; it is called
// exactly once per URL before Each returns.
func (b *Batch) Each(ctx context.Context, urls []string, concurrency int, interItemDelay time.Duration, onDone func(i int, doc extract.Document)) {
	if concurrency < 1 {
		concurrency = 1
	}

	for start := 0; start < len(urls); start += concurrency {
		end := min(start+concurrency, len(urls))

		if err := ctx.Err(); err != nil {
			for i := start; i < len(urls); i++ {
				onDone(i, extract.Failed(urls[i], err))
			}
			logging.FetchDebug("batch stopped before window at %d: %v", start, err)
			return
		}

		logging.FetchDebug("batch window [%d,%d) of %d", start, end, len(urls))
		var g errgroup.Group
		for i := start; i < end; i++ {
			offset := i - start
			g.Go(func() error {
				if offset > 0 && interItemDelay > 0 {
					t := time.NewTimer(time.Duration(offset) * interItemDelay)
					select {
					case <-ctx.Done():
						t.Stop()
						onDone(i, extract.Failed(urls[i], ctx.Err()))
						return nil
					case <-t.C:
					}
				}
				req := b.Template
				req.URL = urls[i]
				onDone(i, b.fetcher.Fetch(ctx, req))
				return nil
			})
		}
		_ = g.Wait()
	}
}
