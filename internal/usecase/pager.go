package usecase

import (
	"context"
	"sync"

	"lens/internal/domain/entity"

	"github.com/pkg/errors"
)

// PagerState describes where a pager is in its fetch cycle.
type PagerState int

const (
	// PagerIdle means more pages may be available and no fetch is running.
	PagerIdle PagerState = iota

	// PagerFetching means a page fetch is in flight.
	PagerFetching

	// PagerExhausted means the final page has been consumed.
	PagerExhausted

	// PagerErrored means the last fetch failed; the next LoadMore retries
	// from the same cursor.
	PagerErrored
)

// PageFunc fetches one page starting at the given cursor.
type PageFunc func(ctx context.Context, cursor string) (*entity.RecordPage, error)

// Pager accumulates pages of records from a cursor-based listing. Records
// only ever grow until Reset; a fetch that fails leaves the cursor where it
// was so the retry covers the same ground. At most one fetch runs at a
// time: LoadMore during an in-flight fetch is a no-op.
type Pager struct {
	mu      sync.Mutex
	fetch   PageFunc
	records []entity.Record
	cursor  string
	state   PagerState

	// gen invalidates in-flight fetches: a response whose generation no
	// longer matches was superseded by Reset and is discarded.
	gen uint64
}

// NewPager builds a pager over the given page fetcher.
func NewPager(fetch PageFunc) *Pager {
	return &Pager{fetch: fetch}
}

// LoadMore fetches the next page and appends it. Returns immediately when a
// fetch is already running or the listing is exhausted. A canceled context
// surfaces as ErrAborted and leaves the pager retryable.
func (p *Pager) LoadMore(ctx context.Context) error {
	p.mu.Lock()
	if p.state == PagerFetching || p.state == PagerExhausted {
		p.mu.Unlock()

		return nil
	}
	cursor := p.cursor
	gen := p.gen
	p.state = PagerFetching
	p.mu.Unlock()

	page, err := p.fetch(ctx, cursor)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.gen != gen {
		// Superseded by Reset while in flight; the pager already moved on.
		return nil
	}

	if err != nil {
		p.state = PagerErrored

		return errors.Wrap(err, "load page")
	}

	p.records = append(p.records, page.Records...)
	p.cursor = page.Cursor
	if page.Cursor == "" {
		p.state = PagerExhausted
	} else {
		p.state = PagerIdle
	}

	return nil
}

// Records returns a snapshot of everything fetched so far.
func (p *Pager) Records() []entity.Record {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]entity.Record, len(p.records))
	copy(out, p.records)

	return out
}

// State returns the current fetch-cycle state.
func (p *Pager) State() PagerState {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

// Cursor returns the cursor the next fetch will start from.
func (p *Pager) Cursor() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.cursor
}

// Reset discards accumulated records and restarts from the beginning. Any
// in-flight fetch is invalidated and its response dropped on arrival.
func (p *Pager) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.gen++
	p.records = nil
	p.cursor = ""
	p.state = PagerIdle
}
