package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

const orderColumns = `id, client_order_id, symbol, side, order_type, time_in_force,
	quantity, filled_quantity, filled_price, limit_price, stop_price, status,
	venue, strategy, signal_id, realized_pnl, submitted_at, updated_at, filled_at`

// OrderStore implements domain.OrderStore, the journal of submitted and
// confirmed orders.
type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Upsert inserts o or refreshes its mutable fields. A terminal row is
// never moved back to a live status.
func (s *OrderStore) Upsert(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO UPDATE SET
			filled_quantity = EXCLUDED.filled_quantity,
			filled_price    = EXCLUDED.filled_price,
			status          = EXCLUDED.status,
			realized_pnl    = EXCLUDED.realized_pnl,
			updated_at      = EXCLUDED.updated_at,
			filled_at       = EXCLUDED.filled_at
		WHERE orders.status NOT IN ('filled', 'cancelled', 'rejected')`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.ClientOrderID, o.Symbol, string(o.Side), string(o.Type), string(o.TimeInForce),
		o.Quantity, o.FilledQuantity, o.FilledPrice, o.LimitPrice, o.StopPrice, string(o.Status),
		o.Venue, o.Strategy, o.SignalID, o.RealizedPnL, o.SubmittedAt, o.UpdatedAt, o.FilledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert order %s: %w", o.ID, err)
	}
	return nil
}

func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("postgres: order %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// List returns orders by submission time, newest first.
func (s *OrderStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error) {
	query, args := listClause(`SELECT `+orderColumns+` FROM orders`, "submitted_at", opts)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	return out, nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var side, typ, tif, status string
	err := row.Scan(
		&o.ID, &o.ClientOrderID, &o.Symbol, &side, &typ, &tif,
		&o.Quantity, &o.FilledQuantity, &o.FilledPrice, &o.LimitPrice, &o.StopPrice, &status,
		&o.Venue, &o.Strategy, &o.SignalID, &o.RealizedPnL, &o.SubmittedAt, &o.UpdatedAt, &o.FilledAt,
	)
	o.Side = domain.OrderSide(side)
	o.Type = domain.OrderType(typ)
	o.TimeInForce = domain.TimeInForce(tif)
	o.Status = domain.OrderStatus(status)
	return o, err
}

var _ domain.OrderStore = (*OrderStore)(nil)
