package payments

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"fxpay/internal/fx"
)

type fakeRates struct {
	mu    sync.Mutex
	rate  decimal.Decimal
	err   error
	calls int
}

func (f *fakeRates) GetRate(_ context.Context, _, _ string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.rate, f.err
}

// racingStore lets another writer update the payment right before the next n updates.
type racingStore struct {
	*MemoryStore
	races     int
	updateErr error
	createErr error
}

func (s *racingStore) Create(ctx context.Context, p *Payment) (*Payment, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.MemoryStore.Create(ctx, p)
}

func (s *racingStore) Update(ctx context.Context, p *Payment) (*Payment, error) {
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	if s.races > 0 {
		s.races--
		current, err := s.MemoryStore.FindByID(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if _, err := s.MemoryStore.Update(ctx, current); err != nil {
			return nil, err
		}
	}
	return s.MemoryStore.Update(ctx, p)
}

type collectingSink struct {
	accept   bool
	received []*Payment
}

func (s *collectingSink) Submit(p *Payment) bool {
	s.received = append(s.received, p)
	return s.accept
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func request(amount, source, destination string) PaymentRequest {
	a := decimal.RequireFromString(amount)
	return PaymentRequest{
		Sender:              "alice",
		Receiver:            "bob",
		Amount:              &a,
		SourceCurrency:      source,
		DestinationCurrency: destination,
	}
}

func TestProcessPaymentSucceeds(t *testing.T) {
	store := NewMemoryStore()
	rates := &fakeRates{rate: decimal.RequireFromString("0.85")}
	svc := NewPaymentService(store, rates, nil, testLogger())

	p, err := svc.ProcessPayment(context.Background(), request("100.00", "USD", "EUR"))
	require.NoError(t, err)

	require.Equal(t, StatusSucceeded, p.Status)
	require.True(t, p.FxRate.Equal(decimal.RequireFromString("0.85")))
	require.True(t, p.PayoutAmount.Equal(decimal.RequireFromString("85")))
	require.Nil(t, p.ErrorMessage)
	require.EqualValues(t, 1, p.Version)
	require.Equal(t, 1, rates.calls)

	stored, err := svc.GetPayment(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, p, stored)
}

func TestProcessPaymentRoundsPayoutHalfUp(t *testing.T) {
	tests := []struct {
		amount, rate, payout string
	}{
		{"33.3333", "1.5", "50"},
		{"10", "0.123456", "1.2346"},
		{"1.0001", "1.00005", "1.0002"},
		{"1", "0.00005", "0.0001"},
	}
	for _, tt := range tests {
		t.Run(tt.amount+"x"+tt.rate, func(t *testing.T) {
			rates := &fakeRates{rate: decimal.RequireFromString(tt.rate)}
			svc := NewPaymentService(NewMemoryStore(), rates, nil, testLogger())

			p, err := svc.ProcessPayment(context.Background(), request(tt.amount, "USD", "EUR"))
			require.NoError(t, err)
			require.Equal(t, tt.payout, p.PayoutAmount.String())
		})
	}
}

func TestProcessPaymentPayoutRoundingToZeroFails(t *testing.T) {
	rates := &fakeRates{rate: decimal.RequireFromString("0.00000006")}
	svc := NewPaymentService(NewMemoryStore(), rates, nil, testLogger())

	p, err := svc.ProcessPayment(context.Background(), request("100", "JPY", "BTC"))
	require.NoError(t, err)

	require.Equal(t, StatusFailed, p.Status)
	require.Equal(t, "Payout amount rounds to zero", *p.ErrorMessage)
	require.Nil(t, p.PayoutAmount)
	require.Nil(t, p.FxRate)
	require.Equal(t, 1, rates.calls)
}

func TestProcessPaymentSameCurrency(t *testing.T) {
	rates := &fakeRates{rate: decimal.NewFromInt(1)}
	svc := NewPaymentService(NewMemoryStore(), rates, nil, testLogger())

	p, err := svc.ProcessPayment(context.Background(), request("10", "usd", "USD"))
	require.NoError(t, err)

	require.Equal(t, StatusFailed, p.Status)
	require.Equal(t, "Source and destination currencies must be different", *p.ErrorMessage)
	require.Nil(t, p.PayoutAmount)
	require.Nil(t, p.FxRate)
	require.Equal(t, "USD", p.SourceCurrency)
	require.Zero(t, rates.calls, "rate service is not consulted")
}

func TestProcessPaymentRateFailuresAreRecorded(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{
			name:    "circuit open",
			err:     &fx.Error{Kind: fx.ErrCircuitOpen, Msg: "FX service circuit breaker is OPEN. Service unavailable for USD/EUR. Please try again later."},
			wantMsg: "FX service circuit breaker is OPEN. Service unavailable for USD/EUR. Please try again later.",
		},
		{
			name:    "unavailable",
			err:     &fx.Error{Kind: fx.ErrUnavailable, Msg: "FX service is unavailable or slow: timeout"},
			wantMsg: "FX service is unavailable or slow: timeout",
		},
		{
			name:    "access denied",
			err:     &fx.Error{Kind: fx.ErrAccessDenied, Msg: "Access forbidden by FX service"},
			wantMsg: "Access forbidden by FX service",
		},
		{
			name:    "unexpected",
			err:     errors.New("boom"),
			wantMsg: "Unexpected error: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewPaymentService(NewMemoryStore(), &fakeRates{err: tt.err}, nil, testLogger())

			p, err := svc.ProcessPayment(context.Background(), request("10", "USD", "EUR"))
			require.NoError(t, err)
			require.Equal(t, StatusFailed, p.Status)
			require.Equal(t, tt.wantMsg, *p.ErrorMessage)
			require.Nil(t, p.PayoutAmount)
			require.EqualValues(t, 1, p.Version)
		})
	}
}

func TestProcessPaymentTruncatesLongDiagnostics(t *testing.T) {
	long := &fx.Error{Kind: fx.ErrUpstream, Msg: "Error calling FX service: " + strings.Repeat("x", 6000)}
	svc := NewPaymentService(NewMemoryStore(), &fakeRates{err: long}, nil, testLogger())

	p, err := svc.ProcessPayment(context.Background(), request("10", "USD", "EUR"))
	require.NoError(t, err)
	require.Equal(t, StatusFailed, p.Status)
	require.Len(t, *p.ErrorMessage, 3950+len(truncationMarker))
	require.True(t, strings.HasPrefix(*p.ErrorMessage, "Error calling FX service: "))
	require.True(t, strings.HasSuffix(*p.ErrorMessage, truncationMarker))
}

func TestProcessPaymentRetriesOnceAfterVersionConflict(t *testing.T) {
	store := &racingStore{MemoryStore: NewMemoryStore(), races: 1}
	svc := NewPaymentService(store, &fakeRates{rate: decimal.NewFromInt(2)}, nil, testLogger())

	p, err := svc.ProcessPayment(context.Background(), request("10", "USD", "EUR"))
	require.NoError(t, err)
	require.Equal(t, StatusSucceeded, p.Status)
	require.Equal(t, "20", p.PayoutAmount.String())
	require.EqualValues(t, 2, p.Version)
}

func TestProcessPaymentSecondConflictIsHardError(t *testing.T) {
	store := &racingStore{MemoryStore: NewMemoryStore(), races: 2}
	svc := NewPaymentService(store, &fakeRates{rate: decimal.NewFromInt(2)}, nil, testLogger())

	p, err := svc.ProcessPayment(context.Background(), request("10", "USD", "EUR"))
	require.ErrorIs(t, err, ErrVersionConflict)
	require.Nil(t, p)
}

func TestProcessPaymentStoreFailures(t *testing.T) {
	dbDown := errors.New("connection refused")

	t.Run("create", func(t *testing.T) {
		rates := &fakeRates{rate: decimal.NewFromInt(1)}
		store := &racingStore{MemoryStore: NewMemoryStore(), createErr: dbDown}
		svc := NewPaymentService(store, rates, nil, testLogger())

		p, err := svc.ProcessPayment(context.Background(), request("10", "USD", "EUR"))
		require.ErrorIs(t, err, dbDown)
		require.Nil(t, p)
		require.Zero(t, rates.calls)

		all, err := svc.GetAllPayments(context.Background())
		require.NoError(t, err)
		require.Empty(t, all)
	})

	t.Run("update", func(t *testing.T) {
		store := &racingStore{MemoryStore: NewMemoryStore(), updateErr: dbDown}
		svc := NewPaymentService(store, &fakeRates{rate: decimal.NewFromInt(1)}, nil, testLogger())

		p, err := svc.ProcessPayment(context.Background(), request("10", "USD", "EUR"))
		require.ErrorIs(t, err, dbDown)
		require.Nil(t, p)

		stored, err := store.FindByID(context.Background(), 1)
		require.NoError(t, err)
		require.Equal(t, StatusPending, stored.Status, "pending record survives")
	})
}

func TestProcessPaymentSubmitsOutcome(t *testing.T) {
	sink := &collectingSink{accept: false}
	svc := NewPaymentService(NewMemoryStore(), &fakeRates{rate: decimal.NewFromInt(3)}, sink, testLogger())

	p, err := svc.ProcessPayment(context.Background(), request("1", "EUR", "BRL"))
	require.NoError(t, err, "a rejected outcome does not fail the payment")
	require.Len(t, sink.received, 1)
	require.Equal(t, p.ID, sink.received[0].ID)
	require.Equal(t, StatusSucceeded, sink.received[0].Status)
}

func TestGetPayments(t *testing.T) {
	svc := NewPaymentService(NewMemoryStore(), &fakeRates{rate: decimal.NewFromInt(1)}, nil, testLogger())

	_, err := svc.GetPayment(context.Background(), 42)
	require.ErrorIs(t, err, ErrPaymentNotFound)
	require.EqualError(t, err, "payment not found with id: 42")

	first, err := svc.ProcessPayment(context.Background(), request("1", "USD", "EUR"))
	require.NoError(t, err)
	second, err := svc.ProcessPayment(context.Background(), request("2", "USD", "USD"))
	require.NoError(t, err)

	all, err := svc.GetAllPayments(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, first.ID, all[0].ID)
	require.Equal(t, second.ID, all[1].ID)
	require.Equal(t, StatusFailed, all[1].Status)
}

func TestProcessPaymentConcurrent(t *testing.T) {
	svc := NewPaymentService(NewMemoryStore(), &fakeRates{rate: decimal.RequireFromString("1.1")}, nil, testLogger())

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := svc.ProcessPayment(context.Background(), request("10", "USD", "EUR"))
			if err == nil && p.Status != StatusSucceeded {
				t.Errorf("payment %d ended %s", p.ID, p.Status)
			}
		}()
	}
	wg.Wait()

	all, err := svc.GetAllPayments(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 50)
	for _, p := range all {
		require.Equal(t, StatusSucceeded, p.Status)
		require.EqualValues(t, 1, p.Version)
	}
}
