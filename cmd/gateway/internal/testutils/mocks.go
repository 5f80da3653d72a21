package testutils

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/shubham-shewale/price-broadcast/pkg/models"
	"github.com/shubham-shewale/price-broadcast/pkg/protocol"
)

// MockClient simulates a connected websocket client
type MockClient struct {
	IDVal    string
	RawBytes []string // Stores raw frames
	Closed   bool
	Full     bool // simulates a full send buffer
	Mu       sync.Mutex
}

func NewMockClient(id string) *MockClient {
	return &MockClient{IDVal: id}
}

func (m *MockClient) ID() string { return m.IDVal }

func (m *MockClient) Close() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
}

func (m *MockClient) SendBytes(b []byte) bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Full {
		return false
	}
	m.RawBytes = append(m.RawBytes, string(b))
	return true
}

func (m *MockClient) Count() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.RawBytes)
}

// Decoded parses every frame received so far.
func (m *MockClient) Decoded(t *testing.T) []protocol.Message {
	t.Helper()
	m.Mu.Lock()
	defer m.Mu.Unlock()

	out := make([]protocol.Message, 0, len(m.RawBytes))
	for _, raw := range m.RawBytes {
		msg, err := protocol.Decode([]byte(raw))
		if err != nil {
			t.Fatalf("client %s got invalid frame %q: %v", m.IDVal, raw, err)
		}
		out = append(out, msg)
	}
	return out
}

// ScriptedSource returns the next scripted result per symbol on each call.
// A missing entry means the fetch fails.
type ScriptedSource struct {
	Ticks []map[string]models.PriceSnapshot
	Calls map[string]int
	Mu    sync.Mutex
	tick  int
}

func NewScriptedSource(ticks ...map[string]models.PriceSnapshot) *ScriptedSource {
	return &ScriptedSource{Ticks: ticks, Calls: make(map[string]int)}
}

// Advance moves to the next scripted tick.
func (s *ScriptedSource) Advance() {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	s.tick++
}

func (s *ScriptedSource) FetchQuote(ctx context.Context, symbol string) (models.PriceSnapshot, error) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	s.Calls[symbol]++

	if s.tick >= len(s.Ticks) {
		return models.PriceSnapshot{}, fmt.Errorf("no script for tick %d", s.tick)
	}
	snap, ok := s.Ticks[s.tick][symbol]
	if !ok {
		return models.PriceSnapshot{}, fmt.Errorf("fetch %s failed", symbol)
	}
	return snap, nil
}

type MockKafkaWriter struct {
	Messages   []kafka.Message
	Calls      int
	Mu         sync.Mutex
	ShouldFail bool
	// Block, if set, stalls every write until it is closed or ctx ends.
	Block chan struct{}
}

func (m *MockKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.Mu.Lock()
	m.Calls++
	m.Mu.Unlock()

	if m.Block != nil {
		select {
		case <-m.Block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.ShouldFail {
		return errors.New("kafka error")
	}
	m.Messages = append(m.Messages, msgs...)
	return nil
}

func (m *MockKafkaWriter) Close() error { return nil }
