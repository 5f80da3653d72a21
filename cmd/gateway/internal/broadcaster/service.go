package broadcaster

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shubham-shewale/price-broadcast/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/price-broadcast/cmd/gateway/internal/quotes"
	"github.com/shubham-shewale/price-broadcast/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/price-broadcast/pkg/models"
	"github.com/shubham-shewale/price-broadcast/pkg/protocol"
)

const defaultPublishTimeout = 10 * time.Second

type Options struct {
	Interval         time.Duration
	FetchConcurrency int
	FetchTimeout     time.Duration
	// PublishTimeout bounds one sink write. Zero means 10s.
	PublishTimeout time.Duration
}

// Service pulls quotes for the tracked symbols on every tick and pushes them
// to all open connections.
type Service struct {
	source    quotes.Source
	registry  repository.SymbolRegistry
	store     repository.SnapshotStore
	publisher repository.TickPublisher // optional
	hub       *hub.Hub
	logger    *zap.Logger
	opts      Options

	// publishMu orders the store+broadcast phase of a tick against
	// snapshot+register in Attach. Fetching happens outside it.
	publishMu sync.Mutex

	// sinkBusy holds one slot per in-flight sink write; ticks that find it
	// taken skip the sink.
	sinkBusy chan struct{}
	sinkWG   sync.WaitGroup
}

func NewService(
	source quotes.Source,
	registry repository.SymbolRegistry,
	store repository.SnapshotStore,
	publisher repository.TickPublisher,
	h *hub.Hub,
	logger *zap.Logger,
	opts Options,
) *Service {
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = 1
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = defaultPublishTimeout
	}
	return &Service{
		source:    source,
		registry:  registry,
		store:     store,
		publisher: publisher,
		hub:       h,
		logger:    logger,
		opts:      opts,
		sinkBusy:  make(chan struct{}, 1),
	}
}

// Run ticks once immediately, then every Interval until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("Broadcaster Started", zap.Duration("interval", s.opts.Interval))

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		s.Tick(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info("Broadcaster stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick runs one fetch-and-broadcast cycle and returns the snapshots it sent.
func (s *Service) Tick(ctx context.Context) []models.PriceSnapshot {
	symbols, err := s.registry.Symbols(ctx)
	if err != nil {
		s.logger.Error("Failed to read symbol registry, skipping tick", zap.Error(err))
		return nil
	}

	batch := s.fetchAll(ctx, symbols)
	if len(batch) == 0 {
		s.logger.Debug("Tick produced no prices", zap.Int("symbols", len(symbols)))
		return nil
	}

	payload, err := protocol.Encode(protocol.TypePriceUpdate, batch)
	if err != nil {
		s.logger.Error("Failed to encode price update", zap.Error(err))
		return nil
	}

	s.publishMu.Lock()
	if err := s.store.SaveSnapshots(ctx, batch); err != nil {
		s.logger.Error("Failed to store snapshots", zap.Error(err))
	}
	sent := s.hub.Broadcast(payload)
	s.publishMu.Unlock()

	s.publishAsync(ctx, batch)

	s.logger.Debug("Tick broadcast",
		zap.Int("symbols", len(symbols)),
		zap.Int("prices", len(batch)),
		zap.Int("clients", sent),
	)
	return batch
}

// publishAsync hands the batch to the sink in the background. At most one
// write is in flight and each is bounded by PublishTimeout.
func (s *Service) publishAsync(ctx context.Context, batch []models.PriceSnapshot) {
	if s.publisher == nil {
		return
	}

	select {
	case s.sinkBusy <- struct{}{}:
	default:
		s.logger.Warn("Previous tick still publishing, skipping sink", zap.Int("prices", len(batch)))
		return
	}

	s.sinkWG.Add(1)
	go func() {
		defer func() {
			<-s.sinkBusy
			s.sinkWG.Done()
		}()

		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.PublishTimeout)
		defer cancel()
		if err := s.publisher.PublishTick(pctx, batch); err != nil {
			s.logger.Error("Failed to publish tick", zap.Error(err))
		}
	}()
}

// Wait blocks until in-flight sink writes have finished.
func (s *Service) Wait() {
	s.sinkWG.Wait()
}

// fetchAll queries every symbol with bounded concurrency. Failed symbols are
// logged and left out; order follows symbols.
func (s *Service) fetchAll(ctx context.Context, symbols []string) []models.PriceSnapshot {
	results := make([]*models.PriceSnapshot, len(symbols))

	var g errgroup.Group
	g.SetLimit(s.opts.FetchConcurrency)

	for i, sym := range symbols {
		i, sym := i, sym
		g.Go(func() error {
			fctx := ctx
			if s.opts.FetchTimeout > 0 {
				var cancel context.CancelFunc
				fctx, cancel = context.WithTimeout(ctx, s.opts.FetchTimeout)
				defer cancel()
			}

			snap, err := s.source.FetchQuote(fctx, sym)
			if err != nil {
				s.logger.Warn("Quote fetch failed", zap.String("symbol", sym), zap.Error(err))
				return nil
			}
			snap.Symbol = sym
			results[i] = &snap
			return nil
		})
	}
	g.Wait()

	batch := make([]models.PriceSnapshot, 0, len(symbols))
	for _, r := range results {
		if r != nil {
			batch = append(batch, *r)
		}
	}
	return batch
}

// Snapshot returns last-known prices for the currently tracked symbols.
func (s *Service) Snapshot(ctx context.Context) ([]models.PriceSnapshot, error) {
	symbols, err := s.registry.Symbols(ctx)
	if err != nil {
		return nil, err
	}
	return s.store.GetSnapshots(ctx, symbols)
}

// Attach sends the client a STOCK_PRICES snapshot and adds it to the fan-out
// set. If the snapshot cannot be read the client is still attached and will
// catch up on the next tick.
func (s *Service) Attach(ctx context.Context, client hub.ClientInterface) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	var initial []byte
	snapshots, err := s.Snapshot(ctx)
	if err != nil {
		s.logger.Error("Failed to load snapshot for new client", zap.String("client", client.ID()), zap.Error(err))
	} else if initial, err = protocol.Encode(protocol.TypeStockPrices, snapshots); err != nil {
		s.logger.Error("Failed to encode snapshot", zap.Error(err))
		initial = nil
	}

	s.hub.Register(client, initial)
}
