package production

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// OrderFloorSync mirrors article floors onto the production order read model.
type OrderFloorSync struct {
	pool *pgxpool.Pool
}

// NewOrderFloorSync constructs OrderFloorSync.
func NewOrderFloorSync(pool *pgxpool.Pool) *OrderFloorSync {
	return &OrderFloorSync{pool: pool}
}

// OnFloorAdvanced implements FloorAdvanceHook with a direct write. Older
// events never overwrite newer ones.
func (s *OrderFloorSync) OnFloorAdvanced(ctx context.Context, evt FloorAdvancedEvent) error {
	if s == nil || s.pool == nil {
		return errors.New("production: order floor sync not configured")
	}
	if evt.OrderID == "" || evt.ArticleID == "" {
		return errors.New("production: floor event requires order and article")
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO production_order_floors (order_id, article_id, current_floor, progress, advanced_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (order_id, article_id) DO UPDATE
SET current_floor = EXCLUDED.current_floor, progress = EXCLUDED.progress, advanced_at = EXCLUDED.advanced_at
WHERE production_order_floors.advanced_at <= EXCLUDED.advanced_at`,
		evt.OrderID, evt.ArticleID, string(evt.To), evt.Progress, evt.At)
	if err != nil {
		return fmt.Errorf("production: sync order floor: %w", err)
	}
	return nil
}
