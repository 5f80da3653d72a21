package quotes

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/shubham-shewale/price-broadcast/pkg/models"
)

//go:generate mockgen -destination=../testutils/mock_source.go -package=testutils . Source

// ErrNoQuote is returned when the upstream has nothing for a symbol.
var ErrNoQuote = errors.New("no quote available")

// Source fetches the current price for one symbol. Failures are per symbol;
// callers skip the symbol and try again next tick.
type Source interface {
	FetchQuote(ctx context.Context, symbol string) (models.PriceSnapshot, error)
}

// for deterministic timestamps
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
