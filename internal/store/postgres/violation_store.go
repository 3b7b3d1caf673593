package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// ViolationStore implements domain.ViolationStore.
type ViolationStore struct {
	pool *pgxpool.Pool
}

func NewViolationStore(pool *pgxpool.Pool) *ViolationStore {
	return &ViolationStore{pool: pool}
}

func (s *ViolationStore) Insert(ctx context.Context, v domain.Violation) error {
	const query = `
		INSERT INTO risk_violations (type, severity, message, symbol, value, limit_value, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.pool.Exec(ctx, query, string(v.Type), string(v.Severity), v.Message, v.Symbol, v.Value, v.Limit, v.At)
	if err != nil {
		return fmt.Errorf("postgres: insert violation %s: %w", v.Type, err)
	}
	return nil
}

// ListRecent returns up to limit violations, newest first.
func (s *ViolationStore) ListRecent(ctx context.Context, limit int) ([]domain.Violation, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
		SELECT type, severity, message, symbol, value, limit_value, detected_at
		FROM risk_violations ORDER BY detected_at DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list violations: %w", err)
	}
	defer rows.Close()

	var out []domain.Violation
	for rows.Next() {
		var v domain.Violation
		var typ, sev string
		if err := rows.Scan(&typ, &sev, &v.Message, &v.Symbol, &v.Value, &v.Limit, &v.At); err != nil {
			return nil, fmt.Errorf("postgres: scan violation: %w", err)
		}
		v.Type, v.Severity = domain.ViolationType(typ), domain.Severity(sev)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list violations: %w", err)
	}
	return out, nil
}

var _ domain.ViolationStore = (*ViolationStore)(nil)
