package messages

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// PaymentOutcome is emitted once a payment reaches SUCCEEDED or FAILED.
type PaymentOutcome struct {
	EventID             string    `json:"eventId"`
	PaymentID           int64     `json:"paymentId"`
	Version             int64     `json:"version"`
	Status              string    `json:"status"`
	Sender              string    `json:"sender"`
	Receiver            string    `json:"receiver"`
	Amount              string    `json:"amount"`
	SourceCurrency      string    `json:"sourceCurrency"`
	DestinationCurrency string    `json:"destinationCurrency"`
	FxRate              *string   `json:"fxRate,omitempty"`
	PayoutAmount        *string   `json:"payoutAmount,omitempty"`
	ErrorMessage        *string   `json:"errorMessage,omitempty"`
	OccurredAt          time.Time `json:"occurredAt"`
}

type Publisher interface {
	Publish(ctx context.Context, event *PaymentOutcome) error
	Close() error
}

func encode(event *PaymentOutcome) ([]byte, error) {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	return sonic.ConfigStd.Marshal(event)
}

// Decode parses an event produced by one of the publishers.
func Decode(data []byte) (*PaymentOutcome, error) {
	var event PaymentOutcome
	if err := sonic.ConfigStd.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
