package payments

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestTruncateErrorMessage(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantLen int
		cut     bool
	}{
		{name: "empty", in: "", wantLen: 0},
		{name: "short", in: "FX rate must be greater than zero", wantLen: 33},
		{name: "at limit", in: strings.Repeat("a", 4000), wantLen: 4000},
		{name: "one over", in: strings.Repeat("a", 4001), wantLen: 3950 + len(truncationMarker), cut: true},
		{name: "huge", in: strings.Repeat("b", 100_000), wantLen: 3950 + len(truncationMarker), cut: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateErrorMessage(tt.in)
			require.Len(t, got, tt.wantLen)
			require.LessOrEqual(t, utf8.RuneCountInString(got), 4000)
			if tt.cut {
				require.Equal(t, tt.in[:3950], strings.TrimSuffix(got, truncationMarker))
			} else {
				require.Equal(t, tt.in, got)
			}
			require.Equal(t, got, TruncateErrorMessage(got))
		})
	}
}

func TestTruncateErrorMessageCountsCharacters(t *testing.T) {
	in := strings.Repeat("é", 4001)
	got := TruncateErrorMessage(in)

	require.True(t, utf8.ValidString(got))
	require.Equal(t, 3950+utf8.RuneCountInString(truncationMarker), utf8.RuneCountInString(got))

	within := strings.Repeat("é", 4000)
	require.Equal(t, within, TruncateErrorMessage(within))
}

func TestPaymentRequestValidate(t *testing.T) {
	valid := func() PaymentRequest {
		amount := decimal.RequireFromString("100.50")
		return PaymentRequest{
			Sender:              "alice",
			Receiver:            "bob",
			Amount:              &amount,
			SourceCurrency:      "USD",
			DestinationCurrency: "EUR",
		}
	}
	amount := func(s string) *decimal.Decimal {
		d := decimal.RequireFromString(s)
		return &d
	}

	tests := []struct {
		name    string
		mutate  func(r *PaymentRequest)
		wantMsg string
	}{
		{name: "valid", mutate: func(r *PaymentRequest) {}},
		{name: "smallest amount", mutate: func(r *PaymentRequest) { r.Amount = amount("0.01") }},
		{name: "trailing zeros", mutate: func(r *PaymentRequest) { r.Amount = amount("1.500000") }},
		{name: "largest amount", mutate: func(r *PaymentRequest) { r.Amount = amount("999999999999999.9999") }},
		{name: "blank sender", mutate: func(r *PaymentRequest) { r.Sender = "  " }, wantMsg: "Sender is required"},
		{name: "blank receiver", mutate: func(r *PaymentRequest) { r.Receiver = "" }, wantMsg: "Receiver is required"},
		{name: "missing amount", mutate: func(r *PaymentRequest) { r.Amount = nil }, wantMsg: "Amount is required"},
		{name: "zero amount", mutate: func(r *PaymentRequest) { r.Amount = amount("0") }, wantMsg: "Amount must be greater than 0"},
		{name: "negative amount", mutate: func(r *PaymentRequest) { r.Amount = amount("-5") }, wantMsg: "Amount must be greater than 0"},
		{name: "too many decimals", mutate: func(r *PaymentRequest) { r.Amount = amount("1.23456") }, wantMsg: "Amount format is invalid"},
		{name: "too many digits", mutate: func(r *PaymentRequest) { r.Amount = amount("1000000000000000") }, wantMsg: "Amount format is invalid"},
		{name: "missing source", mutate: func(r *PaymentRequest) { r.SourceCurrency = "" }, wantMsg: "Source currency is required"},
		{name: "lowercase source", mutate: func(r *PaymentRequest) { r.SourceCurrency = "usd" }, wantMsg: "Source currency must be a 3-letter ISO code"},
		{name: "long destination", mutate: func(r *PaymentRequest) { r.DestinationCurrency = "EURO" }, wantMsg: "Destination currency must be a 3-letter ISO code"},
		{name: "missing destination", mutate: func(r *PaymentRequest) { r.DestinationCurrency = " " }, wantMsg: "Destination currency is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid()
			tt.mutate(&r)

			err := r.Validate()
			if tt.wantMsg == "" {
				require.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, tt.wantMsg, verr.Message)
		})
	}
}
