package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fxpay/internal/payments"
)

type PaymentHandler struct {
	service *payments.PaymentService
}

type paymentResponse struct {
	ID                  int64        `json:"id"`
	Version             int64        `json:"version"`
	Sender              string       `json:"sender"`
	Receiver            string       `json:"receiver"`
	Amount              json.Number  `json:"amount"`
	SourceCurrency      string       `json:"sourceCurrency"`
	DestinationCurrency string       `json:"destinationCurrency"`
	FxRate              *json.Number `json:"fxRate"`
	PayoutAmount        *json.Number `json:"payoutAmount"`
	Status              string       `json:"status"`
	ErrorMessage        *string      `json:"errorMessage"`
	CreatedAt           time.Time    `json:"createdAt"`
	UpdatedAt           time.Time    `json:"updatedAt"`
}

func NewPaymentHandler(service *payments.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		service: service,
	}
}

// Register mounts the payment routes and the JSON codec they rely on.
func Register(e *echo.Echo, payment *PaymentHandler, health *HealthHandler) {
	e.JSONSerializer = SonicSerializer{}

	e.POST("/api/payments", payment.Create)
	e.GET("/api/payments/:id", payment.Get)
	e.GET("/api/payments", payment.List)
	e.GET("/health", health.Handle)
}

func (h *PaymentHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	tracer := otel.Tracer("payment-handler")
	ctx, span := tracer.Start(ctx, "create-payment", trace.WithAttributes(
		attribute.String("handler", "payment"),
	))
	defer span.End()

	var req payments.PaymentRequest
	if err := c.Bind(&req); err != nil {
		span.RecordError(err)
		return err
	}
	if err := req.Validate(); err != nil {
		span.RecordError(err)
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	p, err := h.service.ProcessPayment(ctx, req)
	if err != nil {
		span.RecordError(err)
		c.Logger().Errorf("error while processing the payment: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to process payment")
	}

	span.SetAttributes(
		attribute.Int64("payment.id", p.ID),
		attribute.String("payment.status", string(p.Status)),
	)
	return c.JSON(http.StatusCreated, toResponse(p))
}

func (h *PaymentHandler) Get(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid payment id")
	}

	p, err := h.service.GetPayment(c.Request().Context(), id)
	if errors.Is(err, payments.ErrPaymentNotFound) {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Payment not found with id: %d", id))
	}
	if err != nil {
		c.Logger().Errorf("error while loading payment %d: %v", id, err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load payment")
	}

	return c.JSON(http.StatusOK, toResponse(p))
}

func (h *PaymentHandler) List(c echo.Context) error {
	all, err := h.service.GetAllPayments(c.Request().Context())
	if err != nil {
		c.Logger().Errorf("error while listing payments: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list payments")
	}

	out := make([]paymentResponse, 0, len(all))
	for _, p := range all {
		out = append(out, toResponse(p))
	}
	return c.JSON(http.StatusOK, out)
}

func toResponse(p *payments.Payment) paymentResponse {
	return paymentResponse{
		ID:                  p.ID,
		Version:             p.Version,
		Sender:              p.Sender,
		Receiver:            p.Receiver,
		Amount:              *number(&p.Amount, minScale(p.Amount)),
		SourceCurrency:      p.SourceCurrency,
		DestinationCurrency: p.DestinationCurrency,
		FxRate:              number(p.FxRate, -1),
		PayoutAmount:        number(p.PayoutAmount, amountScale),
		Status:              string(p.Status),
		ErrorMessage:        p.ErrorMessage,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}

const amountScale = 4

// minScale keeps extra precision but never shows fewer than four fraction digits.
func minScale(d decimal.Decimal) int32 {
	if -d.Exponent() > amountScale {
		return -d.Exponent()
	}
	return amountScale
}

// number renders d with a fixed scale, or as-is when places is negative.
func number(d *decimal.Decimal, places int32) *json.Number {
	if d == nil {
		return nil
	}
	n := json.Number(d.String())
	if places >= 0 {
		n = json.Number(d.StringFixed(places))
	}
	return &n
}
