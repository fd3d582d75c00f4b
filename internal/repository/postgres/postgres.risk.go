// FilePath: internal/repository/postgres/postgres.risk.go
package postgres

import (
	"context"
	"database/sql"

	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/database"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/errors"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/models"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/repository"
)

type RiskStateRepo struct {
	PostgresBaseRepo
}

func NewRiskStateRepository(db database.DB) *RiskStateRepo {
	return &RiskStateRepo{PostgresBaseRepo: PostgresBaseRepo{db: db}}
}

func (r *RiskStateRepo) Get(ctx context.Context, deviceID string) (*models.RiskState, error) {
	state := &models.RiskState{}
	query := `SELECT * FROM risk_states WHERE device_id = $1`

	err := r.db.GetDB().GetContext(ctx, state, query, deviceID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, errors.NewDatabaseError("failed to get risk state", err)
	}
	return state, nil
}

// Upsert overwrites the single risk row a device owns. The row is not
// versioned; history lives in the payload table.
func (r *RiskStateRepo) Upsert(ctx context.Context, state *models.RiskState) error {
	query := `
		INSERT INTO risk_states (
			device_id, mold_index, risk_level,
			last_temperature, last_humidity, critical_rh,
			forecast_24h_index, forecast_24h_level,
			forecast_48h_index, forecast_48h_level,
			forecast_72h_index, forecast_72h_level,
			hours_to_next_level, calculated_at, updated_at
		) VALUES (
			:device_id, :mold_index, :risk_level,
			:last_temperature, :last_humidity, :critical_rh,
			:forecast_24h_index, :forecast_24h_level,
			:forecast_48h_index, :forecast_48h_level,
			:forecast_72h_index, :forecast_72h_level,
			:hours_to_next_level, :calculated_at, NOW()
		)
		ON CONFLICT (device_id) DO UPDATE SET
			mold_index = EXCLUDED.mold_index,
			risk_level = EXCLUDED.risk_level,
			last_temperature = EXCLUDED.last_temperature,
			last_humidity = EXCLUDED.last_humidity,
			critical_rh = EXCLUDED.critical_rh,
			forecast_24h_index = EXCLUDED.forecast_24h_index,
			forecast_24h_level = EXCLUDED.forecast_24h_level,
			forecast_48h_index = EXCLUDED.forecast_48h_index,
			forecast_48h_level = EXCLUDED.forecast_48h_level,
			forecast_72h_index = EXCLUDED.forecast_72h_index,
			forecast_72h_level = EXCLUDED.forecast_72h_level,
			hours_to_next_level = EXCLUDED.hours_to_next_level,
			calculated_at = EXCLUDED.calculated_at,
			updated_at = NOW()`

	_, err := r.db.GetDB().NamedExecContext(ctx, query, state)
	if err != nil {
		return errors.NewDatabaseError("failed to upsert risk state", err)
	}
	return nil
}

// SiteSummary aggregates the worst case across the site's active devices.
func (r *RiskStateRepo) SiteSummary(ctx context.Context, siteID string) (*models.SiteRiskSummary, error) {
	summary := &models.SiteRiskSummary{SiteID: siteID}
	query := `
		SELECT
			COUNT(rs.device_id) AS device_count,
			COALESCE(MAX(rs.mold_index), 0) AS worst_index,
			COALESCE(AVG(rs.mold_index), 0) AS avg_index,
			COUNT(*) FILTER (
				WHERE rs.last_humidity IS NOT NULL AND rs.last_humidity > rs.critical_rh
			) AS devices_above_critical_rh
		FROM risk_states rs
		JOIN devices d ON d.id = rs.device_id
		WHERE d.site_id = $1 AND d.active = TRUE`

	row := r.db.GetDB().QueryRowxContext(ctx, query, siteID)
	var avg float64
	if err := row.Scan(&summary.DeviceCount, &summary.WorstIndex, &avg, &summary.DevicesAboveRHCrit); err != nil {
		return nil, errors.NewDatabaseError("failed to aggregate site risk", err)
	}
	if summary.DeviceCount > 0 {
		summary.AvgIndex = &avg
	}
	return summary, nil
}
