package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort is the query surface the service needs.
type RepositoryPort interface {
	Window(ctx context.Context, filters TimelineFilters, limit, offset int) ([]Entry, error)
}

// Repository reads audit entries from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

var _ RepositoryPort = (*Repository)(nil)

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func timelineWhere(filters TimelineFilters) (string, []any) {
	var clauses []string
	var args []any
	argPos := 1
	if !filters.From.IsZero() {
		clauses = append(clauses, fmt.Sprintf("occurred_at >= $%d", argPos))
		args = append(args, filters.From)
		argPos++
	}
	if !filters.To.IsZero() {
		clauses = append(clauses, fmt.Sprintf("occurred_at <= $%d", argPos))
		args = append(args, filters.To)
		argPos++
	}
	if filters.ActorID > 0 {
		clauses = append(clauses, fmt.Sprintf("actor_id = $%d", argPos))
		args = append(args, filters.ActorID)
		argPos++
	}
	if filters.Entity != "" {
		clauses = append(clauses, fmt.Sprintf("entity = $%d", argPos))
		args = append(args, filters.Entity)
		argPos++
	}
	if filters.Action != "" {
		clauses = append(clauses, fmt.Sprintf("action = $%d", argPos))
		args = append(args, filters.Action)
		argPos++
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// Window returns a page of audit entries, newest first.
func (r *Repository) Window(ctx context.Context, filters TimelineFilters, limit, offset int) ([]Entry, error) {
	where, args := timelineWhere(filters)
	query := fmt.Sprintf(`SELECT id, actor_id, action, entity, entity_id, meta, occurred_at
FROM audit_logs %s ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.Entity, &e.EntityID, &e.Meta, &e.OccurredAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
