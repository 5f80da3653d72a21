package quotes

import (
	"context"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/quote"
	"github.com/pkg/errors"

	"github.com/shubham-shewale/price-broadcast/pkg/models"
)

// QuoteGetter matches quote.Get from finance-go.
type QuoteGetter func(symbol string) (*finance.Quote, error)

// Yahoo reads regular-market quotes from Yahoo Finance.
type Yahoo struct {
	get QuoteGetter
}

func NewYahoo() *Yahoo {
	return &Yahoo{get: quote.Get}
}

// NewYahooWithGetter swaps the upstream call, mostly for tests.
func NewYahooWithGetter(get QuoteGetter) *Yahoo {
	return &Yahoo{get: get}
}

func (y *Yahoo) FetchQuote(ctx context.Context, symbol string) (models.PriceSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return models.PriceSnapshot{}, err
	}

	type result struct {
		q   *finance.Quote
		err error
	}
	// finance-go has no context support; the buffered channel lets the
	// call finish in the background if we stop waiting.
	done := make(chan result, 1)
	go func() {
		q, err := y.get(symbol)
		done <- result{q, err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return models.PriceSnapshot{}, errors.Wrapf(ctx.Err(), "yahoo quote %s", symbol)
	case res = <-done:
	}

	if res.err != nil {
		return models.PriceSnapshot{}, errors.Wrapf(res.err, "yahoo quote %s", symbol)
	}
	if res.q == nil || res.q.RegularMarketPrice <= 0 {
		return models.PriceSnapshot{}, errors.Wrapf(ErrNoQuote, "yahoo quote %s", symbol)
	}

	updated := time.Now()
	if res.q.RegularMarketTime > 0 {
		updated = time.Unix(int64(res.q.RegularMarketTime), 0)
	}

	return models.PriceSnapshot{
		Symbol:        symbol,
		CurrentPrice:  res.q.RegularMarketPrice,
		ChangePercent: res.q.RegularMarketChangePercent,
		LastUpdated:   updated.UTC(),
	}, nil
}
