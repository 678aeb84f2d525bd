package production

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/floorflow/internal/production/floors"
	"github.com/odyssey-erp/floorflow/internal/shared"
)

const articleColumns = `id, order_id, article_code, planned_quantity, routing_mode, current_floor, status,
progress, remarks, ledgers, quality_gate, started_at, completed_at, created_at, updated_at, version`

// Repository persists article aggregates in PostgreSQL. Writes are guarded by
// the version column so a stale aggregate can never overwrite a newer one.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new article at version 1.
func (r *Repository) Create(ctx context.Context, a Article) (Article, error) {
	ledgers, gate, err := encodeAggregate(a)
	if err != nil {
		return Article{}, err
	}
	a.Version = 1
	_, err = r.pool.Exec(ctx, `INSERT INTO production_articles (`+articleColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		a.ID, a.OrderID, a.ArticleCode, a.PlannedQuantity, string(a.RoutingMode), string(a.CurrentFloor), string(a.Status),
		a.Progress, a.Remarks, ledgers, gate, toTimestamptz(a.StartedAt), toTimestamptz(a.CompletedAt), a.CreatedAt, a.UpdatedAt, a.Version)
	if err != nil {
		return Article{}, fmt.Errorf("production: insert article: %w", err)
	}
	return a, nil
}

// Load fetches one article.
func (r *Repository) Load(ctx context.Context, id string) (Article, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Article{}, shared.ErrNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+articleColumns+` FROM production_articles WHERE id = $1`, id)
	a, err := scanArticle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Article{}, shared.ErrNotFound
	}
	return a, err
}

// Save writes a mutated aggregate loaded at a.Version and returns it with the
// bumped version. shared.ErrConflict is returned when another writer won.
func (r *Repository) Save(ctx context.Context, a Article) (Article, error) {
	ledgers, gate, err := encodeAggregate(a)
	if err != nil {
		return Article{}, err
	}
	var version int64
	err = r.pool.QueryRow(ctx, `UPDATE production_articles SET
	current_floor = $3,
	status = $4,
	progress = $5,
	remarks = $6,
	ledgers = $7,
	quality_gate = $8,
	started_at = $9,
	completed_at = $10,
	updated_at = $11,
	version = version + 1
WHERE id = $1 AND version = $2
RETURNING version`,
		a.ID, a.Version, string(a.CurrentFloor), string(a.Status), a.Progress, a.Remarks, ledgers, gate,
		toTimestamptz(a.StartedAt), toTimestamptz(a.CompletedAt), a.UpdatedAt).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM production_articles WHERE id = $1)`, a.ID).Scan(&exists); err != nil {
			return Article{}, err
		}
		if !exists {
			return Article{}, shared.ErrNotFound
		}
		return Article{}, shared.ErrConflict
	}
	if err != nil {
		return Article{}, fmt.Errorf("production: update article: %w", err)
	}
	a.Version = version
	return a, nil
}

// ListActive pages through articles not yet completed, ordered by id.
func (r *Repository) ListActive(ctx context.Context, afterID string, limit int) ([]Article, error) {
	if limit <= 0 {
		limit = 200
	}
	var after pgtype.UUID
	if afterID != "" {
		id, err := uuid.Parse(afterID)
		if err != nil {
			return nil, fmt.Errorf("production: invalid cursor: %w", err)
		}
		after = pgtype.UUID{Bytes: id, Valid: true}
	}
	rows, err := r.pool.Query(ctx, `SELECT `+articleColumns+` FROM production_articles
WHERE status <> $1 AND ($2::uuid IS NULL OR id > $2)
ORDER BY id
LIMIT $3`, string(StatusCompleted), after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanArticle(row pgx.Row) (Article, error) {
	var (
		a           Article
		id          pgtype.UUID
		routing     string
		current     string
		status      string
		ledgersRaw  []byte
		gateRaw     []byte
		startedAt   pgtype.Timestamptz
		completedAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &a.OrderID, &a.ArticleCode, &a.PlannedQuantity, &routing, &current, &status,
		&a.Progress, &a.Remarks, &ledgersRaw, &gateRaw, &startedAt, &completedAt, &a.CreatedAt, &a.UpdatedAt, &a.Version); err != nil {
		return Article{}, err
	}
	a.ID = uuid.UUID(id.Bytes).String()
	a.RoutingMode = floors.RoutingMode(routing)
	a.CurrentFloor = floors.Floor(current)
	a.Status = Status(status)
	a.StartedAt = fromTimestamptz(startedAt)
	a.CompletedAt = fromTimestamptz(completedAt)
	a.Ledgers = make(map[floors.Floor]FloorLedger)
	if err := json.Unmarshal(ledgersRaw, &a.Ledgers); err != nil {
		return Article{}, fmt.Errorf("production: decode ledgers: %w", err)
	}
	if len(gateRaw) > 0 {
		if err := json.Unmarshal(gateRaw, &a.QualityGate); err != nil {
			return Article{}, fmt.Errorf("production: decode quality gate: %w", err)
		}
	}
	return a, nil
}

func encodeAggregate(a Article) (ledgers, gate []byte, err error) {
	ledgers, err = json.Marshal(a.Ledgers)
	if err != nil {
		return nil, nil, fmt.Errorf("production: encode ledgers: %w", err)
	}
	gate, err = json.Marshal(a.QualityGate)
	if err != nil {
		return nil, nil, fmt.Errorf("production: encode quality gate: %w", err)
	}
	return ledgers, gate, nil
}

func toTimestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func fromTimestamptz(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time.UTC()
	return &t
}
