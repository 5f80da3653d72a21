package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/shubham-shewale/price-broadcast/pkg/models"
)

const (
	TypeStockPrices = "STOCK_PRICES" // full snapshot sent on connect
	TypePriceUpdate = "PRICE_UPDATE" // symbols inspected in one tick
)

// Message is the only server->client frame.
type Message struct {
	Type string                 `json:"type"`
	Data []models.PriceSnapshot `json:"data"`
}

func Encode(msgType string, data []models.PriceSnapshot) ([]byte, error) {
	if data == nil {
		data = []models.PriceSnapshot{}
	}
	return json.Marshal(Message{Type: msgType, Data: data})
}

// Decode parses a frame and rejects unknown message types.
func Decode(b []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(b, &msg); err != nil {
		return Message{}, err
	}
	switch msg.Type {
	case TypeStockPrices, TypePriceUpdate:
		return msg, nil
	default:
		return Message{}, fmt.Errorf("unknown message type %q", msg.Type)
	}
}
