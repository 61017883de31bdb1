package reaction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-telegram/bot/models"

	"github.com/tgifai/tgflow/internal/dispatch"
	"github.com/tgifai/tgflow/internal/pkg/logs"
	"github.com/tgifai/tgflow/internal/pkg/metrics"
	"github.com/tgifai/tgflow/internal/update"
)

const (
	defaultCount   = 1
	defaultTimeout = 60 * time.Second
)

// Entry is one accumulated reaction update.
type Entry struct {
	// Key is "<user id>_<arrival unix nanos>", so repeats by one user are
	// kept as separate entries.
	Key      string
	UserID   int64
	Reaction *models.MessageReactionUpdated
	Context  *dispatch.Context
	At       time.Time
}

type Options struct {
	// Emoji holds emoji or custom emoji ids; any of them qualifies.
	Emoji   []string
	Mode    Mode
	Count   int
	Timeout time.Duration
	Filter  func(c *dispatch.Context) bool

	// OnCollect runs once the count is reached, with the update that
	// completed it. Its error is returned by Await.
	OnCollect func(ctx context.Context, c *dispatch.Context, entries []Entry) error
	// OnTimeout, when set, receives the partial collection on timeout and
	// Await returns without error.
	OnTimeout func(ctx context.Context, entries []Entry)
}

// TimeoutError is returned when the window closes before Count entries.
type TimeoutError struct {
	Timeout   time.Duration
	Collected int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("reaction not received within %s (collected %d)", e.Timeout, e.Collected)
}

type completion struct {
	ctx     context.Context
	trigger *dispatch.Context
	entries []Entry
}

type collector struct {
	bus  *dispatch.Bus
	key  string
	opts Options

	mu       sync.Mutex
	id       dispatch.HandlerID
	entries  []Entry
	resolved bool
	done     chan completion
}

// Await subscribes to reaction updates on bus and blocks until opts.Count
// qualifying updates arrive, the timeout elapses, or ctx is done. It resolves
// exactly once and unsubscribes before returning.
func Await(ctx context.Context, bus *dispatch.Bus, opts Options) ([]Entry, error) {
	if opts.Count <= 0 {
		opts.Count = defaultCount
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Mode == "" {
		opts.Mode = ModeBoth
	}

	c := &collector{
		bus:  bus,
		key:  string(update.KindMessageReaction),
		opts: opts,
		done: make(chan completion, 1),
	}
	c.mu.Lock()
	c.id = bus.On(c.key, c.handle)
	c.mu.Unlock()

	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()

	select {
	case done := <-c.done:
		return c.complete(done)
	case <-timer.C:
		entries, ok := c.stop()
		if !ok {
			return c.complete(<-c.done)
		}
		metrics.ReactionCollectors.WithLabelValues("timeout").Inc()
		logs.CtxDebug(ctx, "[reaction] timed out after %s with %d/%d entries", opts.Timeout, len(entries), opts.Count)
		if opts.OnTimeout != nil {
			opts.OnTimeout(ctx, entries)
			return entries, nil
		}
		return entries, &TimeoutError{Timeout: opts.Timeout, Collected: len(entries)}
	case <-ctx.Done():
		entries, ok := c.stop()
		if !ok {
			return c.complete(<-c.done)
		}
		metrics.ReactionCollectors.WithLabelValues("canceled").Inc()
		return entries, ctx.Err()
	}
}

func (c *collector) complete(done completion) ([]Entry, error) {
	metrics.ReactionCollectors.WithLabelValues("collected").Inc()
	logs.CtxDebug(done.ctx, "[reaction] collected %d entries", len(done.entries))
	if c.opts.OnCollect != nil {
		if err := c.opts.OnCollect(done.ctx, done.trigger, done.entries); err != nil {
			return done.entries, err
		}
	}
	return done.entries, nil
}

// stop resolves the collector without completion. It reports false when
// completion won the race.
func (c *collector) stop() ([]Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolved {
		return nil, false
	}
	c.resolved = true
	c.bus.Off(c.key, c.id)
	return append([]Entry{}, c.entries...), true
}

func (c *collector) handle(ctx context.Context, dc *dispatch.Context) error {
	r := dc.Update.MessageReaction()
	if r == nil || !c.matches(r) {
		return nil
	}
	if c.opts.Filter != nil && !c.opts.Filter(dc) {
		return nil
	}

	c.mu.Lock()
	if c.resolved {
		c.mu.Unlock()
		return nil
	}
	now := time.Now()
	var userID int64
	if u := dc.Update.Sender(); u != nil {
		userID = u.ID
	}
	c.entries = append(c.entries, Entry{
		Key:      fmt.Sprintf("%d_%d", userID, now.UnixNano()),
		UserID:   userID,
		Reaction: r,
		Context:  dc,
		At:       now,
	})
	if len(c.entries) < c.opts.Count {
		c.mu.Unlock()
		return nil
	}
	c.resolved = true
	c.bus.Off(c.key, c.id)
	entries := append([]Entry{}, c.entries...)
	c.mu.Unlock()

	c.done <- completion{ctx: ctx, trigger: dc, entries: entries}
	return nil
}

func (c *collector) matches(r *models.MessageReactionUpdated) bool {
	return Matches(Compute(r), c.opts.Mode, c.opts.Emoji)
}
