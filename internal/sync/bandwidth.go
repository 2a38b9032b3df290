package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	gosync "sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tonimelisma/cloudmirror/internal/config"
)

// reserveChunk bounds a single token reservation so one huge read never
// parks a transfer for minutes waiting on the bucket.
const reserveChunk = 32 * 1024

// scheduleSlot is one switch point of the bandwidth_schedule: from
// minuteOfDay until the next slot, bytesPerSec applies (0 = unlimited).
type scheduleSlot struct {
	minuteOfDay int
	bytesPerSec int64
}

// BandwidthLimiter throttles all transfer streams through one shared token
// bucket. The effective rate follows the configured time-of-day schedule
// when one is set, falling back to the flat bandwidth_limit otherwise; the
// bucket is retuned lazily whenever a stream crosses a schedule boundary,
// so an overnight window opens without any timer machinery.
type BandwidthLimiter struct {
	logger  *slog.Logger
	flat    int64          // bytes/sec when no schedule applies; 0 = unlimited
	slots   []scheduleSlot // sorted by minuteOfDay; empty = flat only
	nowFunc func() time.Time

	mu     gosync.Mutex
	active int64 // rate the bucket is currently tuned to
	bucket *rate.Limiter
}

// NewBandwidthLimiter builds a limiter from the transfers section. Returns
// nil when neither a flat limit nor a schedule is configured (unlimited);
// malformed rates or schedule times are startup errors.
func NewBandwidthLimiter(cfg config.TransfersConfig, logger *slog.Logger) (*BandwidthLimiter, error) {
	flat, err := config.ParseRate(cfg.BandwidthLimit)
	if err != nil {
		return nil, fmt.Errorf("bandwidth: bandwidth_limit: %w", err)
	}

	slots, err := parseSchedule(cfg.BandwidthSchedule)
	if err != nil {
		return nil, err
	}

	if flat == 0 && len(slots) == 0 {
		return nil, nil //nolint:nilnil // nil limiter = unlimited; wrappers are nil-safe
	}

	bl := &BandwidthLimiter{
		logger:  logger,
		flat:    flat,
		slots:   slots,
		nowFunc: time.Now,
	}

	bl.mu.Lock()
	bl.retune(bl.nowFunc())
	bl.mu.Unlock()

	logger.Info("bandwidth: limiter ready",
		"bytes_per_sec", bl.active,
		"schedule_slots", len(slots),
	)

	return bl, nil
}

// parseSchedule validates and normalizes the bandwidth_schedule entries
// into minute-of-day slots sorted ascending.
func parseSchedule(entries []config.BandwidthScheduleEntry) ([]scheduleSlot, error) {
	slots := make([]scheduleSlot, 0, len(entries))

	for _, e := range entries {
		clock, err := time.Parse("15:04", e.Time)
		if err != nil {
			return nil, fmt.Errorf("bandwidth: schedule time %q: want HH:MM: %w", e.Time, err)
		}

		bytesPerSec, err := config.ParseRate(e.Limit)
		if err != nil {
			return nil, fmt.Errorf("bandwidth: schedule limit at %s: %w", e.Time, err)
		}

		slots = append(slots, scheduleSlot{
			minuteOfDay: clock.Hour()*60 + clock.Minute(),
			bytesPerSec: bytesPerSec,
		})
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].minuteOfDay < slots[j].minuteOfDay })

	return slots, nil
}

// rateAt returns the limit in effect at t: the most recently passed slot
// wins, wrapping to the last slot of the previous day before the first
// switch point of the morning. Without a schedule the flat limit applies.
func (bl *BandwidthLimiter) rateAt(t time.Time) int64 {
	if len(bl.slots) == 0 {
		return bl.flat
	}

	minute := t.Hour()*60 + t.Minute()
	current := bl.slots[len(bl.slots)-1]

	for _, s := range bl.slots {
		if s.minuteOfDay > minute {
			break
		}

		current = s
	}

	return current.bytesPerSec
}

// retune swaps the token bucket when the effective rate changes. Burst is
// one second of tokens. Caller holds mu.
func (bl *BandwidthLimiter) retune(now time.Time) {
	want := bl.rateAt(now)
	if want == bl.active && (bl.bucket != nil || want == 0) {
		return
	}

	if bl.active != want && bl.logger != nil {
		bl.logger.Info("bandwidth: rate changed", "bytes_per_sec", want)
	}

	bl.active = want

	if want == 0 {
		bl.bucket = nil
		return
	}

	bl.bucket = rate.NewLimiter(rate.Limit(want), int(want))
}

// reserve blocks until n bytes may pass, re-reading the schedule first so a
// long-running transfer picks up a boundary crossing mid-stream.
func (bl *BandwidthLimiter) reserve(ctx context.Context, n int) error {
	bl.mu.Lock()
	bl.retune(bl.nowFunc())
	bucket := bl.bucket
	bl.mu.Unlock()

	if bucket == nil {
		return nil
	}

	for n > 0 {
		chunk := min(n, reserveChunk, bucket.Burst())
		if err := bucket.WaitN(ctx, chunk); err != nil {
			return err
		}

		n -= chunk
	}

	return nil
}

// WrapReader returns a throttled io.Reader. Nil-safe: a nil limiter returns
// r unchanged.
func (bl *BandwidthLimiter) WrapReader(ctx context.Context, r io.Reader) io.Reader {
	if bl == nil {
		return r
	}

	return &throttledReader{ctx: ctx, bl: bl, r: r}
}

// WrapWriter returns a throttled io.Writer. Nil-safe: a nil limiter returns
// w unchanged.
func (bl *BandwidthLimiter) WrapWriter(ctx context.Context, w io.Writer) io.Writer {
	if bl == nil {
		return w
	}

	return &throttledWriter{ctx: ctx, bl: bl, w: w}
}

// throttledReader pays for bytes after reading them, so a short final read
// only reserves what it actually consumed.
type throttledReader struct {
	ctx context.Context
	bl  *BandwidthLimiter
	r   io.Reader
}

func (tr *throttledReader) Read(p []byte) (int, error) {
	n, err := tr.r.Read(p)
	if n > 0 {
		if resErr := tr.bl.reserve(tr.ctx, n); resErr != nil {
			return n, resErr
		}
	}

	return n, err
}

// throttledWriter pays for bytes before writing them, so the downstream
// sink never sees a burst the budget would not have allowed.
type throttledWriter struct {
	ctx context.Context
	bl  *BandwidthLimiter
	w   io.Writer
}

func (tw *throttledWriter) Write(p []byte) (int, error) {
	if err := tw.bl.reserve(tw.ctx, len(p)); err != nil {
		return 0, err
	}

	return tw.w.Write(p)
}
