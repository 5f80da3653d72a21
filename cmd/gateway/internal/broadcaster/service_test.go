package broadcaster_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/shubham-shewale/price-broadcast/cmd/gateway/internal/broadcaster"
	"github.com/shubham-shewale/price-broadcast/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/price-broadcast/cmd/gateway/internal/quotes"
	"github.com/shubham-shewale/price-broadcast/cmd/gateway/internal/repository"
	"github.com/shubham-shewale/price-broadcast/cmd/gateway/internal/testutils"
	"github.com/shubham-shewale/price-broadcast/pkg/models"
	"github.com/shubham-shewale/price-broadcast/pkg/protocol"
)

var t0 = time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

func snap(sym string, price, change float64) models.PriceSnapshot {
	return models.PriceSnapshot{Symbol: sym, CurrentPrice: price, ChangePercent: change, LastUpdated: t0}
}

type fixture struct {
	svc   *broadcaster.Service
	hub   *hub.Hub
	store *repository.MemoryStore
}

func newFixture(source quotes.Source, symbols ...string) fixture {
	h := hub.NewHub(zap.NewNop())
	store := repository.NewMemoryStore()
	svc := broadcaster.NewService(source, repository.StaticRegistry(symbols), store, nil, h, zap.NewNop(), broadcaster.Options{
		Interval:         time.Minute,
		FetchConcurrency: 2,
		FetchTimeout:     time.Second,
	})
	return fixture{svc: svc, hub: h, store: store}
}

func TestTick_PartialFailureOmitsSymbol(t *testing.T) {
	source := testutils.NewScriptedSource(
		map[string]models.PriceSnapshot{"AAPL": snap("AAPL", 150.00, 1.2)},
		map[string]models.PriceSnapshot{"AAPL": snap("AAPL", 151.00, 1.9), "TSLA": snap("TSLA", 700.00, -0.4)},
	)
	f := newFixture(source, "AAPL", "TSLA")
	client := testutils.NewMockClient("c1")
	f.svc.Attach(context.Background(), client)

	first := f.svc.Tick(context.Background())
	require.Equal(t, []models.PriceSnapshot{snap("AAPL", 150.00, 1.2)}, first)

	source.Advance()
	second := f.svc.Tick(context.Background())
	require.Len(t, second, 2)

	msgs := client.Decoded(t)
	require.Len(t, msgs, 3)
	require.Equal(t, protocol.TypeStockPrices, msgs[0].Type)
	require.Empty(t, msgs[0].Data)
	require.Equal(t, protocol.TypePriceUpdate, msgs[1].Type)
	require.Equal(t, []models.PriceSnapshot{snap("AAPL", 150.00, 1.2)}, msgs[1].Data)
	require.Equal(t, protocol.TypePriceUpdate, msgs[2].Type)
	require.Equal(t, []models.PriceSnapshot{snap("AAPL", 151.00, 1.9), snap("TSLA", 700.00, -0.4)}, msgs[2].Data)
}

func TestTick_AllFailuresSendsNothing(t *testing.T) {
	source := testutils.NewScriptedSource(map[string]models.PriceSnapshot{})
	f := newFixture(source, "AAPL", "TSLA")
	client := testutils.NewMockClient("c1")
	f.hub.Register(client, nil)

	require.Empty(t, f.svc.Tick(context.Background()))
	require.Zero(t, client.Count())
	require.Equal(t, 1, source.Calls["AAPL"])
	require.Equal(t, 1, source.Calls["TSLA"])
}

func TestTick_StoresLastKnown(t *testing.T) {
	source := testutils.NewScriptedSource(
		map[string]models.PriceSnapshot{"AAPL": snap("AAPL", 150.00, 1.2), "TSLA": snap("TSLA", 700.00, 0.1)},
		map[string]models.PriceSnapshot{"AAPL": snap("AAPL", 152.00, 2.5)},
	)
	f := newFixture(source, "AAPL", "TSLA")

	f.svc.Tick(context.Background())
	source.Advance()
	f.svc.Tick(context.Background())

	got, err := f.svc.Snapshot(context.Background())
	require.NoError(t, err)
	// TSLA keeps its last good value when a later fetch fails
	require.Equal(t, []models.PriceSnapshot{snap("AAPL", 152.00, 2.5), snap("TSLA", 700.00, 0.1)}, got)
}

func TestAttach_SendsFullSnapshot(t *testing.T) {
	tick := map[string]models.PriceSnapshot{}
	symbols := []string{"AAPL", "MSFT", "GOOGL", "AMZN", "TSLA"}
	for i, sym := range symbols {
		tick[sym] = snap(sym, float64(100+i), 0)
	}
	f := newFixture(testutils.NewScriptedSource(tick), symbols...)
	f.svc.Tick(context.Background())

	client := testutils.NewMockClient("late")
	f.svc.Attach(context.Background(), client)

	msgs := client.Decoded(t)
	require.Len(t, msgs, 1)
	require.Equal(t, protocol.TypeStockPrices, msgs[0].Type)
	require.Len(t, msgs[0].Data, 5)
	require.Equal(t, 1, f.hub.Count())
}

type failingRegistry struct{}

func (failingRegistry) Symbols(context.Context) ([]string, error) {
	return nil, errors.New("registry down")
}

func TestAttach_RegistryFailureStillRegisters(t *testing.T) {
	h := hub.NewHub(zap.NewNop())
	svc := broadcaster.NewService(testutils.NewScriptedSource(), failingRegistry{}, repository.NewMemoryStore(), nil, h, zap.NewNop(), broadcaster.Options{Interval: time.Minute})

	client := testutils.NewMockClient("c1")
	svc.Attach(context.Background(), client)

	require.Equal(t, 1, h.Count())
	require.Zero(t, client.Count())
	require.Nil(t, svc.Tick(context.Background()))
}

func TestTick_ClosedConnectionNotTouched(t *testing.T) {
	source := testutils.NewScriptedSource(map[string]models.PriceSnapshot{"AAPL": snap("AAPL", 150.00, 1.2)})
	f := newFixture(source, "AAPL")

	clients := []*testutils.MockClient{
		testutils.NewMockClient("c1"),
		testutils.NewMockClient("c2"),
		testutils.NewMockClient("c3"),
	}
	for _, c := range clients {
		f.hub.Register(c, nil)
	}
	f.hub.Unregister(clients[1])

	f.svc.Tick(context.Background())

	require.Equal(t, 1, clients[0].Count())
	require.Zero(t, clients[1].Count())
	require.Equal(t, 1, clients[2].Count())
}

func TestTick_WithGoMockSource(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := testutils.NewMockSource(ctrl)

	source.EXPECT().FetchQuote(gomock.Any(), "AAPL").Return(snap("AAPL", 150.00, 1.2), nil).Times(1)
	source.EXPECT().FetchQuote(gomock.Any(), "TSLA").Return(models.PriceSnapshot{}, quotes.ErrNoQuote).Times(1)

	f := newFixture(source, "AAPL", "TSLA")
	got := f.svc.Tick(context.Background())

	require.Equal(t, []models.PriceSnapshot{snap("AAPL", 150.00, 1.2)}, got)
}

func TestTick_PublishesToSink(t *testing.T) {
	writer := &testutils.MockKafkaWriter{}
	h := hub.NewHub(zap.NewNop())
	source := testutils.NewScriptedSource(map[string]models.PriceSnapshot{"AAPL": snap("AAPL", 150.00, 1.2)})
	svc := broadcaster.NewService(source, repository.StaticRegistry{"AAPL"}, repository.NewMemoryStore(),
		repository.NewKafkaTickPublisher(writer), h, zap.NewNop(), broadcaster.Options{Interval: time.Minute})

	svc.Tick(context.Background())
	svc.Wait()

	writer.Mu.Lock()
	defer writer.Mu.Unlock()
	require.Len(t, writer.Messages, 1)
	require.Equal(t, "AAPL", string(writer.Messages[0].Key))
}

func TestTick_SinkFailureStillBroadcasts(t *testing.T) {
	writer := &testutils.MockKafkaWriter{ShouldFail: true}
	h := hub.NewHub(zap.NewNop())
	client := testutils.NewMockClient("c1")
	h.Register(client, nil)
	source := testutils.NewScriptedSource(map[string]models.PriceSnapshot{"AAPL": snap("AAPL", 150.00, 1.2)})
	svc := broadcaster.NewService(source, repository.StaticRegistry{"AAPL"}, repository.NewMemoryStore(),
		repository.NewKafkaTickPublisher(writer), h, zap.NewNop(), broadcaster.Options{Interval: time.Minute})

	svc.Tick(context.Background())
	svc.Wait()

	require.Equal(t, 1, client.Count())
}

func TestTick_SlowSinkDoesNotDelayBroadcast(t *testing.T) {
	writer := &testutils.MockKafkaWriter{Block: make(chan struct{})}
	h := hub.NewHub(zap.NewNop())
	client := testutils.NewMockClient("c1")
	h.Register(client, nil)
	source := testutils.NewScriptedSource(map[string]models.PriceSnapshot{"AAPL": snap("AAPL", 150.00, 1.2)})
	svc := broadcaster.NewService(source, repository.StaticRegistry{"AAPL"}, repository.NewMemoryStore(),
		repository.NewKafkaTickPublisher(writer), h, zap.NewNop(), broadcaster.Options{Interval: time.Minute})

	start := time.Now()
	svc.Tick(context.Background())
	require.Less(t, time.Since(start), time.Second)
	require.Equal(t, 1, client.Count())

	close(writer.Block)
	svc.Wait()

	writer.Mu.Lock()
	defer writer.Mu.Unlock()
	require.Len(t, writer.Messages, 1)
}

func TestTick_SinkWriteIsBounded(t *testing.T) {
	writer := &testutils.MockKafkaWriter{Block: make(chan struct{})}
	source := testutils.NewScriptedSource(
		map[string]models.PriceSnapshot{"AAPL": snap("AAPL", 150.00, 1.2)},
		map[string]models.PriceSnapshot{"AAPL": snap("AAPL", 151.00, 1.9)},
	)
	svc := broadcaster.NewService(source, repository.StaticRegistry{"AAPL"}, repository.NewMemoryStore(),
		repository.NewKafkaTickPublisher(writer), hub.NewHub(zap.NewNop()), zap.NewNop(), broadcaster.Options{
			Interval:       time.Minute,
			PublishTimeout: 50 * time.Millisecond,
		})

	svc.Tick(context.Background())
	// the first write is still stuck, so this tick skips the sink
	source.Advance()
	require.NotEmpty(t, svc.Tick(context.Background()))

	done := make(chan struct{})
	go func() {
		svc.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sink write was not cut off by the publish timeout")
	}

	writer.Mu.Lock()
	defer writer.Mu.Unlock()
	require.Equal(t, 1, writer.Calls)
	require.Empty(t, writer.Messages)
}

func TestRun_StopsOnCancel(t *testing.T) {
	source := testutils.NewScriptedSource(map[string]models.PriceSnapshot{"AAPL": snap("AAPL", 150.00, 1.2)})
	h := hub.NewHub(zap.NewNop())
	svc := broadcaster.NewService(source, repository.StaticRegistry{"AAPL"}, repository.NewMemoryStore(), nil, h, zap.NewNop(), broadcaster.Options{
		Interval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()

	err := svc.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	source.Mu.Lock()
	defer source.Mu.Unlock()
	require.GreaterOrEqual(t, source.Calls["AAPL"], 2)
}
