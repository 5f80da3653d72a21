package quotes

import (
	"context"
	"math/rand"
	"sync"

	"github.com/shubham-shewale/price-broadcast/pkg/models"
)

// for deterministic values
type Rand interface {
	Float64() float64
}

type RealRand struct{ *rand.Rand }

func (r RealRand) Float64() float64 { return r.Rand.Float64() }

const defaultBasePrice = 100.0

// Synthetic walks each symbol's price by up to +/-2% per fetch around a base
// price. Used for local runs without network access.
type Synthetic struct {
	rand  Rand
	clock Clock

	mu   sync.Mutex
	base map[string]float64
	last map[string]float64
}

func NewSynthetic(basePrices map[string]float64, rnd Rand, clock Clock) *Synthetic {
	base := make(map[string]float64, len(basePrices))
	for sym, p := range basePrices {
		base[sym] = p
	}
	return &Synthetic{
		rand:  rnd,
		clock: clock,
		base:  base,
		last:  make(map[string]float64),
	}
}

func (s *Synthetic) FetchQuote(ctx context.Context, symbol string) (models.PriceSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return models.PriceSnapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	base, ok := s.base[symbol]
	if !ok {
		base = defaultBasePrice
		s.base[symbol] = base
	}
	prev, ok := s.last[symbol]
	if !ok {
		prev = base
	}

	// (r * 4) - 2 -> fluctuation in [-2%, +2%)
	fluctuation := (s.rand.Float64() * 4) - 2
	price := prev * (1 + fluctuation/100)
	s.last[symbol] = price

	return models.PriceSnapshot{
		Symbol:        symbol,
		CurrentPrice:  price,
		ChangePercent: (price - base) / base * 100,
		LastUpdated:   s.clock.Now(),
	}, nil
}
