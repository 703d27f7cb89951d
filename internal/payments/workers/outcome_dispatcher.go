package workers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"fxpay/internal/messages"
	"fxpay/internal/payments"
)

const publishTimeout = 5 * time.Second

var _ payments.OutcomeSink = (*OutcomeDispatcher)(nil)

// OutcomeDispatcher publishes payment outcomes off the request path. Events that do not
// fit in the buffer are dropped.
type OutcomeDispatcher struct {
	publisher messages.Publisher
	bufferCh  chan *messages.PaymentOutcome
	done      chan struct{}
	wg        sync.WaitGroup
	once      sync.Once
	logger    *slog.Logger
}

func NewOutcomeDispatcher(publisher messages.Publisher, bufferSize int, logger *slog.Logger) *OutcomeDispatcher {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &OutcomeDispatcher{
		publisher: publisher,
		bufferCh:  make(chan *messages.PaymentOutcome, bufferSize),
		done:      make(chan struct{}),
		logger:    logger,
	}
}

func (d *OutcomeDispatcher) Submit(p *payments.Payment) bool {
	select {
	case d.bufferCh <- toOutcome(p):
		return true
	default:
		d.logger.Error("outcome buffer is full, dropping event", "paymentId", p.ID)
		return false
	}
}

func (d *OutcomeDispatcher) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop publishes what is still buffered and returns once the loop has exited.
func (d *OutcomeDispatcher) Stop() {
	d.once.Do(func() { close(d.done) })
	d.wg.Wait()
}

func (d *OutcomeDispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case event := <-d.bufferCh:
			d.publish(event)
		case <-d.done:
			for {
				select {
				case event := <-d.bufferCh:
					d.publish(event)
				default:
					return
				}
			}
		}
	}
}

func (d *OutcomeDispatcher) publish(event *messages.PaymentOutcome) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := d.publisher.Publish(ctx, event); err != nil {
		d.logger.Error("failed to publish payment outcome", "paymentId", event.PaymentID, "status", event.Status, "error", err)
		return
	}
	d.logger.Debug("payment outcome published", "paymentId", event.PaymentID, "eventId", event.EventID)
}

func toOutcome(p *payments.Payment) *messages.PaymentOutcome {
	event := &messages.PaymentOutcome{
		PaymentID:           p.ID,
		Version:             p.Version,
		Status:              string(p.Status),
		Sender:              p.Sender,
		Receiver:            p.Receiver,
		Amount:              p.Amount.String(),
		SourceCurrency:      p.SourceCurrency,
		DestinationCurrency: p.DestinationCurrency,
		ErrorMessage:        p.ErrorMessage,
		OccurredAt:          p.UpdatedAt,
	}
	if p.FxRate != nil {
		rate := p.FxRate.String()
		event.FxRate = &rate
	}
	if p.PayoutAmount != nil {
		payout := p.PayoutAmount.StringFixed(4)
		event.PayoutAmount = &payout
	}
	return event
}
