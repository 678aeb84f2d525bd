package production

import (
	"time"

	"github.com/odyssey-erp/floorflow/internal/production/floors"
)

// FloorAdvancedEvent is emitted after an article moved to its next floor.
type FloorAdvancedEvent struct {
	ArticleID string       `json:"article_id"`
	OrderID   string       `json:"order_id"`
	From      floors.Floor `json:"from"`
	To        floors.Floor `json:"to"`
	Progress  int          `json:"progress"`
	At        time.Time    `json:"at"`
}
