package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fxpay/internal/fx"
)

const payoutScale = 4

type RateProvider interface {
	GetRate(ctx context.Context, source, destination string) (decimal.Decimal, error)
}

// OutcomeSink receives every payment that reached a terminal status. It must not block.
type OutcomeSink interface {
	Submit(p *Payment) bool
}

type PaymentService struct {
	store   PaymentStore
	rates   RateProvider
	outcome OutcomeSink
	logger  *slog.Logger
}

// NewPaymentService wires the orchestrator. outcome may be nil.
func NewPaymentService(store PaymentStore, rates RateProvider, outcome OutcomeSink, logger *slog.Logger) *PaymentService {
	return &PaymentService{
		store:   store,
		rates:   rates,
		outcome: outcome,
		logger:  logger,
	}
}

// ProcessPayment records the request as PENDING, converts it and stores the outcome.
// Once the PENDING record exists every conversion failure ends up on the record as
// FAILED; only store failures are returned as errors.
func (s *PaymentService) ProcessPayment(ctx context.Context, req PaymentRequest) (*Payment, error) {
	tracer := otel.Tracer("payment-service")
	ctx, span := tracer.Start(ctx, "process-payment", trace.WithAttributes(
		attribute.String("payment.source_currency", req.SourceCurrency),
		attribute.String("payment.destination_currency", req.DestinationCurrency),
	))
	defer span.End()

	pending := &Payment{
		Sender:              req.Sender,
		Receiver:            req.Receiver,
		SourceCurrency:      strings.ToUpper(req.SourceCurrency),
		DestinationCurrency: strings.ToUpper(req.DestinationCurrency),
		Status:              StatusPending,
	}
	if req.Amount != nil {
		pending.Amount = *req.Amount
	}

	created, err := s.store.Create(ctx, pending)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create payment")
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}
	span.SetAttributes(attribute.Int64("payment.id", created.ID))
	s.logger.Debug("payment created", "paymentId", created.ID)

	var (
		apply  func(*Payment)
		payout decimal.Decimal
	)
	rate, err := s.quote(ctx, created)
	if err == nil {
		payout = created.Amount.Mul(rate).Round(payoutScale)
		if !payout.IsPositive() {
			err = ErrPayoutRoundsZero
		}
	}
	if err != nil {
		msg := TruncateErrorMessage(diagnostic(err))
		s.logger.Warn("payment failed", "paymentId", created.ID, "error", msg)
		apply = func(p *Payment) { p.MarkFailed(msg) }
	} else {
		apply = func(p *Payment) { p.MarkSucceeded(rate, payout) }
	}

	final, err := s.finish(ctx, created, apply)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to record payment outcome")
		return nil, err
	}

	span.SetAttributes(attribute.String("payment.status", string(final.Status)))
	if final.Status == StatusSucceeded {
		s.logger.Info("payment succeeded", "paymentId", final.ID, "payout", final.PayoutAmount.String(), "currency", final.DestinationCurrency)
	}

	if s.outcome != nil && !s.outcome.Submit(final) {
		s.logger.Warn("outcome not published", "paymentId", final.ID)
	}
	return final, nil
}

func (s *PaymentService) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	return s.store.FindByID(ctx, id)
}

func (s *PaymentService) GetAllPayments(ctx context.Context) ([]*Payment, error) {
	return s.store.FindAll(ctx)
}

func (s *PaymentService) quote(ctx context.Context, p *Payment) (decimal.Decimal, error) {
	if p.SourceCurrency == p.DestinationCurrency {
		return decimal.Zero, ErrSameCurrency
	}
	return s.rates.GetRate(ctx, p.SourceCurrency, p.DestinationCurrency)
}

// finish applies the terminal mutation and saves it. A version conflict is retried once
// against a freshly loaded copy.
func (s *PaymentService) finish(ctx context.Context, p *Payment, apply func(*Payment)) (*Payment, error) {
	apply(p)
	saved, err := s.store.Update(ctx, p)
	if err == nil {
		return saved, nil
	}
	if !errors.Is(err, ErrVersionConflict) {
		return nil, fmt.Errorf("failed to save payment %d: %w", p.ID, err)
	}

	s.logger.Warn("version conflict saving payment, reloading", "paymentId", p.ID, "version", p.Version)
	current, err := s.store.FindByID(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload payment %d: %w", p.ID, err)
	}

	apply(current)
	saved, err = s.store.Update(ctx, current)
	if err != nil {
		return nil, fmt.Errorf("failed to save payment %d after reload: %w", p.ID, err)
	}
	return saved, nil
}

// diagnostic is the text stored on a failed payment.
func diagnostic(err error) string {
	var (
		fxErr   *fx.Error
		ruleErr *RuleError
	)
	if errors.As(err, &fxErr) || errors.As(err, &ruleErr) {
		return err.Error()
	}
	return "Unexpected error: " + err.Error()
}
