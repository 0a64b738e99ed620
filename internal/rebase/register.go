// Package rebase holds the cumulative elastic multiplier and the queue of
// scheduled adjustments. Every stored amount in the system is base units; the
// register is the single place observed units and base units are converted.
package rebase

import (
	"math"
	"math/bits"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dErrors "tranche/pkg/domain-errors"
)

var foldsApplied = promauto.NewCounter(prometheus.CounterOpts{
	Name: "tranche_rebase_adjustments_applied_total",
	Help: "Scheduled balance adjustments folded into the cumulative multiplier",
})

type adjustment struct {
	factor    uint64
	decimals  uint8
	executeAt time.Time
}

// Register tracks the cumulative multiplier and pending scheduled adjustments.
//
// The factor is applied raw: the cumulative multiplier is the product of all
// folded factors. The decimals parameter of an adjustment does not divide the
// factor; it accumulates separately and is exposed read-only as display
// precision (see DESIGN.md).
type Register struct {
	mu       sync.Mutex
	factor   uint64
	decimals uint32
	pending  []adjustment // sorted by executeAt ascending
}

func NewRegister() *Register {
	return &Register{factor: 1}
}

// ScheduleAdjustment queues a multiplier change. An executeAt at or before now
// folds into the cumulative multiplier synchronously. At most one adjustment
// may be pending per future timestamp.
func (r *Register) ScheduleAdjustment(factor uint64, decimals uint8, executeAt, now time.Time) error {
	if factor == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "adjustment factor must be positive")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Reject factors the uint64 multiplier cannot absorb, counting pending
	// adjustments, so a later fold can never overflow.
	product := r.factor
	for _, adj := range r.pending {
		product *= adj.factor
	}
	if factor > math.MaxUint64/product {
		return dErrors.New(dErrors.CodeBadRequest, "adjustment factor overflows cumulative multiplier")
	}

	if !executeAt.After(now) {
		r.apply(adjustment{factor: factor, decimals: decimals, executeAt: executeAt})
		return nil
	}

	for _, adj := range r.pending {
		if adj.executeAt.Equal(executeAt) {
			return dErrors.New(dErrors.CodeAdjustmentAlreadyScheduled, "an adjustment is already scheduled for this timestamp")
		}
	}
	r.pending = append(r.pending, adjustment{factor: factor, decimals: decimals, executeAt: executeAt})
	sort.Slice(r.pending, func(i, j int) bool {
		return r.pending[i].executeAt.Before(r.pending[j].executeAt)
	})
	return nil
}

// Fold applies every pending adjustment whose execution time has passed, in
// chronological order. Engine entry points call this before touching any
// amount, which makes rebase application idempotent and order-independent.
func (r *Register) Fold(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.foldLocked(now)
}

func (r *Register) foldLocked(now time.Time) {
	applied := 0
	for _, adj := range r.pending {
		if adj.executeAt.After(now) {
			break
		}
		r.apply(adj)
		applied++
	}
	if applied > 0 {
		r.pending = r.pending[applied:]
	}
}

func (r *Register) apply(adj adjustment) {
	r.factor *= adj.factor
	r.decimals += uint32(adj.decimals)
	foldsApplied.Inc()
}

// Factor returns the effective multiplier as of now, folding any due
// adjustments first.
func (r *Register) Factor(now time.Time) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.foldLocked(now)
	return r.factor
}

// Decimals returns the accumulated display precision as of now.
func (r *Register) Decimals(now time.Time) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.foldLocked(now)
	return r.decimals
}

// PendingCount reports how many adjustments are still scheduled as of now.
func (r *Register) PendingCount(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.foldLocked(now)
	return len(r.pending)
}

// ToBase converts an externally observed amount into base units at the current
// multiplier. Integer division: a caller-supplied amount not divisible by the
// multiplier loses at most factor-1 observed units.
func (r *Register) ToBase(amount uint64, now time.Time) uint64 {
	return amount / r.Factor(now)
}

// ToObserved converts stored base units into externally observed units. The
// product saturates at MaxUint64 rather than wrapping: scheduling bounds the
// factor product, not factor times an arbitrary stored balance.
func (r *Register) ToObserved(amount uint64, now time.Time) uint64 {
	hi, lo := bits.Mul64(amount, r.Factor(now))
	if hi != 0 {
		return math.MaxUint64
	}
	return lo
}
