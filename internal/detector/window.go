package detector

import (
	"math"
	"sort"
	"time"

	"github.com/alanyoungcy/insiderscan/internal/domain"
)

type addressAgg struct {
	rawUSD       float64
	effectiveUSD float64
}

// Window accumulates per-trade state for one market so that every indicator
// can be computed from the accumulated values alone. Add is O(1) amortised;
// no trade slice is retained.
type Window struct {
	params Params

	count   int
	dropped int

	totalUSD     float64
	effectiveUSD float64

	byAddress map[string]*addressAgg
	byOutcome map[string]float64

	largestRawUSD       float64
	largestEffectiveUSD float64
	largestAddress      string

	first time.Time
	last  time.Time

	// Welford accumulators over trade prices.
	priceCount int
	priceMean  float64
	priceM2    float64
}

// NewWindow creates an empty accumulator with the given tuning.
func NewWindow(params Params) *Window {
	return &Window{
		params:    params,
		byAddress: make(map[string]*addressAgg),
		byOutcome: make(map[string]float64),
	}
}

// Add folds one trade into the window. Malformed trades are counted as
// dropped and the validation error is returned; the window state is not
// touched by them.
func (w *Window) Add(t domain.Trade) error {
	if err := t.Validate(); err != nil {
		w.dropped++
		return err
	}

	effective := t.SizeUSD
	if t.TraderHistoryCount < w.params.MaxAccountHistory {
		effective = t.SizeUSD * w.params.FreshWeightMultiplier
	}

	w.count++
	w.totalUSD += t.SizeUSD
	w.effectiveUSD += effective

	agg := w.byAddress[t.TraderAddress]
	if agg == nil {
		agg = &addressAgg{}
		w.byAddress[t.TraderAddress] = agg
	}
	agg.rawUSD += t.SizeUSD
	agg.effectiveUSD += effective

	w.byOutcome[t.Outcome] += t.SizeUSD

	if effective > w.largestEffectiveUSD {
		w.largestEffectiveUSD = effective
		w.largestAddress = t.TraderAddress
	}
	if t.SizeUSD > w.largestRawUSD {
		w.largestRawUSD = t.SizeUSD
	}

	if w.first.IsZero() || t.Timestamp.Before(w.first) {
		w.first = t.Timestamp
	}
	if t.Timestamp.After(w.last) {
		w.last = t.Timestamp
	}

	w.priceCount++
	delta := t.Price - w.priceMean
	w.priceMean += delta / float64(w.priceCount)
	w.priceM2 += delta * (t.Price - w.priceMean)

	return nil
}

// Len returns the number of valid trades folded in so far.
func (w *Window) Len() int { return w.count }

// Dropped returns the number of malformed trades rejected so far.
func (w *Window) Dropped() int { return w.dropped }

// TotalVolumeUSD returns the raw dollar volume of the window.
func (w *Window) TotalVolumeUSD() float64 { return w.totalUSD }

// Duration returns the time span covered by the window.
func (w *Window) Duration() time.Duration {
	if w.first.IsZero() {
		return 0
	}
	return w.last.Sub(w.first)
}

// priceStddev returns the standard deviation of folded trade prices.
func (w *Window) priceStddev() float64 {
	if w.priceCount < 2 {
		return 0
	}
	return math.Sqrt(w.priceM2 / float64(w.priceCount))
}

// topAddresses returns up to k addresses ordered by effective volume desc,
// ties broken by address for determinism.
func (w *Window) topAddresses(k int) []domain.AddressVolume {
	out := make([]domain.AddressVolume, 0, len(w.byAddress))
	for addr, agg := range w.byAddress {
		share := 0.0
		if w.effectiveUSD > 0 {
			share = agg.effectiveUSD / w.effectiveUSD
		}
		out = append(out, domain.AddressVolume{
			Address:   addr,
			VolumeUSD: agg.rawUSD,
			Share:     share,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Share != out[j].Share {
			return out[i].Share > out[j].Share
		}
		return out[i].Address < out[j].Address
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// majorityOutcome returns the outcome with the largest raw volume and its
// share of total volume. Ties are broken by outcome name for determinism.
func (w *Window) majorityOutcome() (string, float64) {
	var best string
	var bestUSD float64
	for outcome, usd := range w.byOutcome {
		if usd > bestUSD || (usd == bestUSD && (best == "" || outcome < best)) {
			best = outcome
			bestUSD = usd
		}
	}
	if w.totalUSD == 0 {
		return best, 0
	}
	return best, bestUSD / w.totalUSD
}
