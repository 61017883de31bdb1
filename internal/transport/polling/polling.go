// Package polling receives updates by long-polling getUpdates with a cursor.
package polling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/gopkg/lang/fastrand"

	"github.com/tgifai/tgflow/internal/api"
	"github.com/tgifai/tgflow/internal/consts"
	"github.com/tgifai/tgflow/internal/pkg/logs"
	"github.com/tgifai/tgflow/internal/pkg/metrics"
	"github.com/tgifai/tgflow/internal/transport"
	"github.com/tgifai/tgflow/internal/update"
)

const (
	Name = "polling"

	defaultRetryInterval    = 3 * time.Second
	defaultMaxRetryInterval = 30 * time.Second
)

var ErrAlreadyStarted = errors.New("polling transport already started")

// Fetcher is the part of api.Client the loop needs.
type Fetcher interface {
	GetUpdates(ctx context.Context, params api.GetUpdatesParams) ([]json.RawMessage, error)
}

type Options struct {
	// Offset is the initial cursor. Zero lets the platform pick the oldest
	// unconfirmed update.
	Offset         int64
	Limit          int
	Timeout        time.Duration
	AllowedUpdates []string

	RetryInterval    time.Duration
	MaxRetryInterval time.Duration
}

// FetchError is a getUpdates failure. Transient ones are retried inside the
// loop; Start only returns one when the platform rejects the bot outright.
type FetchError struct {
	Attempt int
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("getUpdates attempt %d: %v", e.Attempt, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

var _ transport.Transport = (*Transport)(nil)

type Transport struct {
	fetcher Fetcher
	sink    transport.Sink
	opts    Options

	state  transport.StateBox
	cursor atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(fetcher Fetcher, sink transport.Sink, opts Options) *Transport {
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = defaultRetryInterval
	}
	if opts.MaxRetryInterval < opts.RetryInterval {
		opts.MaxRetryInterval = max(defaultMaxRetryInterval, opts.RetryInterval)
	}
	t := &Transport{
		fetcher: fetcher,
		sink:    sink,
		opts:    opts,
		done:    make(chan struct{}),
	}
	t.cursor.Store(opts.Offset)
	return t
}

func (t *Transport) Name() string { return Name }

func (t *Transport) State() transport.State { return t.state.Load() }

// Cursor is the offset the next getUpdates call will request.
func (t *Transport) Cursor() int64 { return t.cursor.Load() }

// Start runs the loop until ctx is cancelled, Stop is called, or the platform
// rejects the token. Start on a stopped transport returns nil at once.
func (t *Transport) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(context.WithValue(ctx, consts.CtxKeyTransport, Name))
	t.mu.Lock()
	if !t.state.CompareAndSwap(transport.Idle, transport.Running) {
		t.mu.Unlock()
		cancel()
		if t.State() == transport.Stopped {
			return nil
		}
		return ErrAlreadyStarted
	}
	t.cancel = cancel
	t.mu.Unlock()
	defer close(t.done)
	defer cancel()

	logs.CtxInfo(ctx, "[polling] started at offset %d, timeout %s, allowed_updates %v",
		t.Cursor(), t.opts.Timeout, t.opts.AllowedUpdates)

	failures := 0
	for {
		if ctx.Err() != nil || t.State() != transport.Running {
			t.state.CompareAndSwap(transport.Running, transport.Stopped)
			logs.CtxInfo(ctx, "[polling] stopped at offset %d", t.Cursor())
			return nil
		}

		err := t.poll(ctx)
		if err == nil {
			failures = 0
			continue
		}
		if ctx.Err() != nil {
			continue
		}

		failures++
		metrics.PollFailures.Inc()
		var apiErr *api.Error
		if errors.As(err, &apiErr) && apiErr.Fatal() {
			t.state.Store(transport.Faulted)
			logs.CtxError(ctx, "[polling] giving up: %v", err)
			return &FetchError{Attempt: failures, Err: err}
		}

		delay := t.backoff(failures, apiErr)
		logs.CtxWarn(ctx, "[polling] getUpdates failed (attempt %d), retrying in %s: %v", failures, delay, err)
		wait(ctx, delay)
	}
}

// Stop ends the loop after the current fetch returns or is abandoned.
// Handlers already dispatched keep running.
func (t *Transport) Stop(ctx context.Context) error {
	t.mu.Lock()
	if t.state.CompareAndSwap(transport.Idle, transport.Stopped) {
		t.mu.Unlock()
		return nil
	}
	if !t.state.CompareAndSwap(transport.Running, transport.Stopped) {
		t.mu.Unlock()
		return nil
	}
	cancel := t.cancel
	t.mu.Unlock()
	cancel()

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type item struct {
	id    int64
	hasID bool
	raw   []byte
}

func (t *Transport) poll(ctx context.Context) error {
	offset := t.Cursor()
	raws, err := t.fetcher.GetUpdates(ctx, api.GetUpdatesParams{
		Offset:         offset,
		Limit:          t.opts.Limit,
		Timeout:        int(t.opts.Timeout / time.Second),
		AllowedUpdates: t.opts.AllowedUpdates,
	})
	if err != nil {
		return err
	}
	if len(raws) == 0 {
		return nil
	}

	batch := make([]item, 0, len(raws))
	for _, raw := range raws {
		id, ok := update.PeekID(raw)
		batch = append(batch, item{id: id, hasID: ok, raw: raw})
	}
	// items without an id sort first; they are dropped by the sink anyway
	sort.SliceStable(batch, func(i, j int) bool {
		if batch[i].hasID != batch[j].hasID {
			return !batch[i].hasID
		}
		return batch[i].id < batch[j].id
	})

	logs.CtxDebug(ctx, "[polling] fetched %d updates at offset %d", len(batch), offset)
	for _, it := range batch {
		if it.hasID && offset > 0 && it.id < offset {
			logs.CtxDebug(ctx, "[polling] skip update %d below cursor %d", it.id, offset)
			continue
		}
		if err := t.sink.HandleRaw(ctx, it.raw); err != nil {
			logs.CtxDebug(ctx, "[polling] sink rejected update: %v", err)
		}
		if it.hasID && it.id+1 > t.Cursor() {
			t.cursor.Store(it.id + 1)
			metrics.PollCursor.Set(float64(it.id + 1))
		}
	}
	return nil
}

// backoff doubles from RetryInterval up to MaxRetryInterval with up to 20%
// jitter. A flood-control retry_after from the platform takes precedence.
func (t *Transport) backoff(failures int, apiErr *api.Error) time.Duration {
	if apiErr != nil && apiErr.RetryAfter > 0 {
		return time.Duration(apiErr.RetryAfter) * time.Second
	}
	delay := t.opts.RetryInterval
	for i := 1; i < failures && delay < t.opts.MaxRetryInterval; i++ {
		delay *= 2
	}
	delay = min(delay, t.opts.MaxRetryInterval)
	return delay + time.Duration(fastrand.Int63n(int64(delay)/5+1))
}

func wait(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
