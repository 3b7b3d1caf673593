package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// ProfileStore implements domain.ProfileStore and domain.ActiveProfileStore.
type ProfileStore struct {
	pool *pgxpool.Pool
}

func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

// LoadProfiles returns every stored profile keyed by id.
func (s *ProfileStore) LoadProfiles(ctx context.Context) (map[string]domain.RiskProfile, error) {
	const query = `
		SELECT id, name, description, risk_level, max_position_size, stop_loss_percentage,
			take_profit_percentage, max_daily_loss, max_open_positions, min_risk_reward_ratio,
			risk_per_trade, stop_loss_required, updated_at
		FROM risk_profiles ORDER BY id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: load profiles: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.RiskProfile)
	for rows.Next() {
		var p domain.RiskProfile
		var level string
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Description, &level, &p.MaxPositionSizePct, &p.StopLossPct,
			&p.TakeProfitPct, &p.MaxDailyLossPct, &p.MaxOpenPositions, &p.MinRiskRewardRatio,
			&p.RiskPerTrade, &p.StopLossRequired, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan profile: %w", err)
		}
		p.RiskLevel = domain.RiskLevel(level)
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load profiles: %w", err)
	}
	return out, nil
}

// SaveProfile inserts or replaces p.
func (s *ProfileStore) SaveProfile(ctx context.Context, p domain.RiskProfile) error {
	const query = `
		INSERT INTO risk_profiles (
			id, name, description, risk_level, max_position_size, stop_loss_percentage,
			take_profit_percentage, max_daily_loss, max_open_positions, min_risk_reward_ratio,
			risk_per_trade, stop_loss_required, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name                   = EXCLUDED.name,
			description            = EXCLUDED.description,
			risk_level             = EXCLUDED.risk_level,
			max_position_size      = EXCLUDED.max_position_size,
			stop_loss_percentage   = EXCLUDED.stop_loss_percentage,
			take_profit_percentage = EXCLUDED.take_profit_percentage,
			max_daily_loss         = EXCLUDED.max_daily_loss,
			max_open_positions     = EXCLUDED.max_open_positions,
			min_risk_reward_ratio  = EXCLUDED.min_risk_reward_ratio,
			risk_per_trade         = EXCLUDED.risk_per_trade,
			stop_loss_required     = EXCLUDED.stop_loss_required,
			updated_at             = NOW()`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Name, p.Description, string(p.RiskLevel), p.MaxPositionSizePct, p.StopLossPct,
		p.TakeProfitPct, p.MaxDailyLossPct, p.MaxOpenPositions, p.MinRiskRewardRatio,
		p.RiskPerTrade, p.StopLossRequired,
	)
	if err != nil {
		return fmt.Errorf("postgres: save profile %s: %w", p.ID, err)
	}
	return nil
}

func (s *ProfileStore) DeleteProfile(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM risk_profiles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete profile %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: delete profile %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// LoadActiveProfile returns domain.ErrNotFound before the first save.
func (s *ProfileStore) LoadActiveProfile(ctx context.Context) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `SELECT profile_id FROM active_profile WHERE singleton`).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("postgres: active profile: %w", domain.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("postgres: active profile: %w", err)
	}
	return id, nil
}

func (s *ProfileStore) SaveActiveProfile(ctx context.Context, id string) error {
	const query = `
		INSERT INTO active_profile (singleton, profile_id, updated_at) VALUES (TRUE, $1, NOW())
		ON CONFLICT (singleton) DO UPDATE SET profile_id = EXCLUDED.profile_id, updated_at = NOW()`
	if _, err := s.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("postgres: save active profile %s: %w", id, err)
	}
	return nil
}

var (
	_ domain.ProfileStore       = (*ProfileStore)(nil)
	_ domain.ActiveProfileStore = (*ProfileStore)(nil)
)
