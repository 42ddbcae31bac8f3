package postgres

import (
	"context"

	"github.com/frahmantamala/payment-reconciliation/internal/payment"
	"github.com/jmoiron/sqlx"
)

const statusTotalsQuery = `
SELECT status, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total
FROM payments
WHERE user_id = ?
GROUP BY status
ORDER BY status`

// StatsRepository runs read-only aggregate queries through sqlx.
type StatsRepository struct {
	db *sqlx.DB
}

func NewStatsRepository(db *sqlx.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

var _ payment.StatsRepository = (*StatsRepository)(nil)

func (r *StatsRepository) StatusTotals(ctx context.Context, userID int64) ([]payment.StatusTotal, error) {
	var totals []payment.StatusTotal
	if err := r.db.SelectContext(ctx, &totals, r.db.Rebind(statusTotalsQuery), userID); err != nil {
		return nil, err
	}
	return totals, nil
}
