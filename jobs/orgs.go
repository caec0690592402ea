package jobs

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// fetchOrgIDs lists every organization a periodic job should visit.
func fetchOrgIDs(ctx context.Context, pool *pgxpool.Pool) ([]int64, error) {
	if pool == nil {
		return nil, errors.New("jobs: pool not configured")
	}
	rows, err := pool.Query(ctx, `SELECT id FROM organizations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
