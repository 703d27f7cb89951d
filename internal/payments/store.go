package payments

import "context"

// PaymentStore persists payments. Each call commits on its own.
type PaymentStore interface {
	// Create assigns the id, sets version 0 and both timestamps.
	Create(ctx context.Context, p *Payment) (*Payment, error)
	// Update succeeds only when p.Version matches the stored version, and returns the
	// record with the bumped version. A mismatch yields ErrVersionConflict.
	Update(ctx context.Context, p *Payment) (*Payment, error)
	FindByID(ctx context.Context, id int64) (*Payment, error)
	// FindAll returns payments in ascending id order.
	FindAll(ctx context.Context) ([]*Payment, error)
}
