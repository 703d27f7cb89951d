package payments

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// Payment is one cross-currency transfer. Version is bumped by the store on every update
// and an update carrying a stale version is rejected.
type Payment struct {
	ID                  int64
	Version             int64
	Sender              string
	Receiver            string
	Amount              decimal.Decimal
	SourceCurrency      string
	DestinationCurrency string
	FxRate              *decimal.Decimal
	PayoutAmount        *decimal.Decimal
	Status              Status
	ErrorMessage        *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (p *Payment) MarkSucceeded(rate, payout decimal.Decimal) {
	p.FxRate = &rate
	p.PayoutAmount = &payout
	p.ErrorMessage = nil
	p.Status = StatusSucceeded
}

func (p *Payment) MarkFailed(msg string) {
	p.FxRate = nil
	p.PayoutAmount = nil
	p.ErrorMessage = &msg
	p.Status = StatusFailed
}

func (p *Payment) clone() *Payment {
	c := *p
	if p.FxRate != nil {
		rate := *p.FxRate
		c.FxRate = &rate
	}
	if p.PayoutAmount != nil {
		payout := *p.PayoutAmount
		c.PayoutAmount = &payout
	}
	if p.ErrorMessage != nil {
		msg := *p.ErrorMessage
		c.ErrorMessage = &msg
	}
	return &c
}
