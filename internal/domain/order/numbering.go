package order

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/pos-backoffice/internal/domain/period"
)

const maxDailySequence = 9999

// Numberer derives human-readable order numbers from the count of orders
// already created on the same calendar day.
//
// Numbers are best-effort unique: two concurrent checkouts may observe the
// same count. The unique index on order_number turns such a collision into a
// conflict for the later writer.
type Numberer struct {
	counter Counter
	loc     *time.Location
	random  func() int
}

// NewNumberer returns a Numberer counting through counter with day
// boundaries in loc.
func NewNumberer(counter Counter, loc *time.Location) *Numberer {
	if loc == nil {
		loc = time.UTC
	}
	return &Numberer{
		counter: counter,
		loc:     loc,
		random:  func() int { return rand.IntN(1000) },
	}
}

// Next returns ORD-YYYYMMDD-NNNN for now's day. It never fails: when the
// count cannot be obtained or the daily sequence overflows it returns an
// emergency number instead.
func (n *Numberer) Next(ctx context.Context, now time.Time) string {
	number, err := n.sequential(ctx, now)
	if err != nil {
		emg := n.emergency(now)
		zctx.From(ctx).Warn("Falling back to emergency order number",
			zap.String("order_number", emg),
			zap.Error(err),
		)
		return emg
	}
	return number
}

func (n *Numberer) sequential(ctx context.Context, now time.Time) (string, error) {
	day := period.Day(now, n.loc)
	count, err := n.counter.CountCreatedBetween(ctx, day.Start, day.End)
	if err != nil {
		return "", errors.Wrap(err, "count orders")
	}
	seq := count + 1
	if seq > maxDailySequence {
		return "", errors.Errorf("daily sequence %d exceeds %d", seq, maxDailySequence)
	}
	return fmt.Sprintf("ORD-%s-%04d", day.Start.Format("20060102"), seq), nil
}

func (n *Numberer) emergency(now time.Time) string {
	return fmt.Sprintf("ORD-EMG-%08d%03d", now.UnixMilli()%100_000_000, n.random()%1000)
}
