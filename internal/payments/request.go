package payments

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	maxAmountIntegerDigits  = 15
	maxAmountFractionDigits = 4
)

var (
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
	minAmount       = decimal.RequireFromString("0.01")
)

type PaymentRequest struct {
	Sender              string           `json:"sender"`
	Receiver            string           `json:"receiver"`
	Amount              *decimal.Decimal `json:"amount"`
	SourceCurrency      string           `json:"sourceCurrency"`
	DestinationCurrency string           `json:"destinationCurrency"`
}

// Validate returns the first problem found as a *ValidationError.
func (r PaymentRequest) Validate() error {
	if strings.TrimSpace(r.Sender) == "" {
		return &ValidationError{Field: "sender", Message: "Sender is required"}
	}
	if strings.TrimSpace(r.Receiver) == "" {
		return &ValidationError{Field: "receiver", Message: "Receiver is required"}
	}
	if r.Amount == nil {
		return &ValidationError{Field: "amount", Message: "Amount is required"}
	}
	if r.Amount.LessThan(minAmount) {
		return &ValidationError{Field: "amount", Message: "Amount must be greater than 0"}
	}
	if intDigits, fracDigits := digits(*r.Amount); intDigits > maxAmountIntegerDigits || fracDigits > maxAmountFractionDigits {
		return &ValidationError{Field: "amount", Message: "Amount format is invalid"}
	}
	if strings.TrimSpace(r.SourceCurrency) == "" {
		return &ValidationError{Field: "sourceCurrency", Message: "Source currency is required"}
	}
	if !currencyPattern.MatchString(r.SourceCurrency) {
		return &ValidationError{Field: "sourceCurrency", Message: "Source currency must be a 3-letter ISO code"}
	}
	if strings.TrimSpace(r.DestinationCurrency) == "" {
		return &ValidationError{Field: "destinationCurrency", Message: "Destination currency is required"}
	}
	if !currencyPattern.MatchString(r.DestinationCurrency) {
		return &ValidationError{Field: "destinationCurrency", Message: "Destination currency must be a 3-letter ISO code"}
	}
	return nil
}

// digits counts integer and fraction digits, ignoring leading and trailing zeros.
func digits(d decimal.Decimal) (int, int) {
	intPart, fracPart, _ := strings.Cut(d.Abs().String(), ".")
	return len(strings.TrimLeft(intPart, "0")), len(fracPart)
}
