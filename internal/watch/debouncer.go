package watch

import (
	"context"
	"time"
)

// Debounce timing defaults.
const (
	DefaultQuietWindow = 250 * time.Millisecond
	DefaultMaxDelay    = 2 * time.Second
)

// Flush is one coalesced burst of change signals.
type Flush struct {
	Signals int // change signals collapsed into this flush
	First   time.Time
	Last    time.Time
	Cause   string // "quiet" or "max_delay"
}

// DebouncerConfig holds the two debounce bounds: the quiet window a burst
// must fall silent for, and the max delay after which a flush is forced even
// if signals keep arriving.
type DebouncerConfig struct {
	QuietWindow time.Duration
	MaxDelay    time.Duration
}

// Debouncer coalesces change-signal bursts into single flushes. A save in an
// editor typically produces several filesystem events within milliseconds;
// the quiet window folds them into one rebuild, and the max delay keeps a
// stream of uninterrupted saves from postponing the rebuild forever.
//
// The scheduler downstream coalesces again while a build runs, so the
// debouncer never needs to know about build state.
type Debouncer struct {
	cfg DebouncerConfig

	pending bool
	first   time.Time
	last    time.Time
	count   int
}

// NewDebouncer creates a Debouncer, substituting defaults for unset bounds.
func NewDebouncer(cfg DebouncerConfig) *Debouncer {
	if cfg.QuietWindow <= 0 {
		cfg.QuietWindow = DefaultQuietWindow
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.MaxDelay < cfg.QuietWindow {
		cfg.MaxDelay = cfg.QuietWindow
	}
	return &Debouncer{cfg: cfg}
}

// Run consumes change signals from in and invokes emit once per coalesced
// burst, on the debouncer's own goroutine. It returns when ctx is done or in
// closes; a burst still buffering at shutdown is discarded, not flushed.
func (d *Debouncer) Run(ctx context.Context, in <-chan Change, emit func(Flush)) {
	quietTimer := newStoppedTimer()
	maxTimer := newStoppedTimer()

	var quietC, maxC <-chan time.Time

	flush := func(cause string) {
		emit(Flush{Signals: d.count, First: d.first, Last: d.last, Cause: cause})
		d.pending = false
		d.count = 0
		quietC = nil
		maxC = nil
	}

	for {
		select {
		case <-ctx.Done():
			return

		case _, ok := <-in:
			if !ok {
				return
			}
			now := time.Now()
			if !d.pending {
				d.pending = true
				d.first = now
				d.count = 0
				resetTimer(maxTimer, d.cfg.MaxDelay)
				maxC = maxTimer.C
			}
			d.count++
			d.last = now
			resetTimer(quietTimer, d.cfg.QuietWindow)
			quietC = quietTimer.C

		case <-quietC:
			flush("quiet")

		case <-maxC:
			flush("max_delay")
		}
	}
}

// newStoppedTimer returns a timer that will not fire until reset.
func newStoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	return t
}

func resetTimer(t *time.Timer, after time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(after)
}
