package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const schema = `
CREATE TABLE IF NOT EXISTS payments (
	id                   BIGSERIAL PRIMARY KEY,
	version              BIGINT       NOT NULL DEFAULT 0,
	sender               VARCHAR(255) NOT NULL,
	receiver             VARCHAR(255) NOT NULL,
	amount               NUMERIC(19, 4) NOT NULL,
	source_currency      CHAR(3)      NOT NULL,
	destination_currency CHAR(3)      NOT NULL,
	fx_rate              NUMERIC,
	payout_amount        NUMERIC(19, 4),
	status               VARCHAR(16)  NOT NULL,
	error_message        TEXT,
	created_at           TIMESTAMPTZ  NOT NULL,
	updated_at           TIMESTAMPTZ  NOT NULL
);
`

// Numerics travel as text so no precision is lost in either direction.
const paymentColumns = `id, version, sender, receiver, amount::text, source_currency, destination_currency,
	fx_rate::text, payout_amount::text, status, error_message, created_at, updated_at`

var _ PaymentStore = (*PostgresStore)(nil)

type PostgresStore struct {
	dbpool *pgxpool.Pool
}

func NewPostgresStore(dbpool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{dbpool: dbpool}
}

// Migrate creates the payments table when it does not exist yet.
func Migrate(ctx context.Context, dbpool *pgxpool.Pool) error {
	if _, err := dbpool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating payments table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, p *Payment) (*Payment, error) {
	query := `
		INSERT INTO payments (version, sender, receiver, amount, source_currency, destination_currency,
		                      fx_rate, payout_amount, status, error_message, created_at, updated_at)
		VALUES (0, $1, $2, $3::numeric, $4, $5, $6::numeric, $7::numeric, $8, $9, now(), now())
		RETURNING ` + paymentColumns

	row := s.dbpool.QueryRow(ctx, query,
		p.Sender,
		p.Receiver,
		p.Amount.String(),
		p.SourceCurrency,
		p.DestinationCurrency,
		decimalText(p.FxRate),
		decimalText(p.PayoutAmount),
		string(p.Status),
		p.ErrorMessage,
	)

	created, err := scanPayment(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert payment: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) Update(ctx context.Context, p *Payment) (*Payment, error) {
	query := `
		UPDATE payments
		SET version = version + 1,
		    sender = $3,
		    receiver = $4,
		    amount = $5::numeric,
		    source_currency = $6,
		    destination_currency = $7,
		    fx_rate = $8::numeric,
		    payout_amount = $9::numeric,
		    status = $10,
		    error_message = $11,
		    updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING ` + paymentColumns

	row := s.dbpool.QueryRow(ctx, query,
		p.ID,
		p.Version,
		p.Sender,
		p.Receiver,
		p.Amount.String(),
		p.SourceCurrency,
		p.DestinationCurrency,
		decimalText(p.FxRate),
		decimalText(p.PayoutAmount),
		string(p.Status),
		p.ErrorMessage,
	)

	updated, err := scanPayment(row)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to update payment: %w", err)
	}

	var exists bool
	if err := s.dbpool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1)`, p.ID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check payment: %w", err)
	}
	if !exists {
		return nil, notFound(p.ID)
	}
	return nil, ErrVersionConflict
}

func (s *PostgresStore) FindByID(ctx context.Context, id int64) (*Payment, error) {
	row := s.dbpool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)

	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) FindAll(ctx context.Context) ([]*Payment, error) {
	rows, err := s.dbpool.Query(ctx, `SELECT `+paymentColumns+` FROM payments ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Payment, error) {
		return scanPayment(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return out, nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var (
		p                    Payment
		amount, status       string
		fxRate, payoutAmount *string
	)
	err := row.Scan(
		&p.ID,
		&p.Version,
		&p.Sender,
		&p.Receiver,
		&amount,
		&p.SourceCurrency,
		&p.DestinationCurrency,
		&fxRate,
		&payoutAmount,
		&status,
		&p.ErrorMessage,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("amount %q: %w", amount, err)
	}
	if p.FxRate, err = parseDecimal(fxRate); err != nil {
		return nil, fmt.Errorf("fx_rate: %w", err)
	}
	if p.PayoutAmount, err = parseDecimal(payoutAmount); err != nil {
		return nil, fmt.Errorf("payout_amount: %w", err)
	}
	p.Status = Status(status)
	return &p, nil
}

func decimalText(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func parseDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
