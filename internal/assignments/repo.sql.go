package assignments

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort defines assignment data access.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (*Assignment, error)
	ListActive(ctx context.Context) ([]Assignment, error)
	ListBySalesman(ctx context.Context, salesmanID int64) ([]Assignment, error)
	ActiveExists(ctx context.Context, salesmanID, shopkeeperID int64) (bool, error)
	Create(ctx context.Context, a Assignment) (int64, error)
	Revoke(ctx context.Context, id int64) error
}

// Repository persists assignments in PostgreSQL. The active-pair uniqueness
// invariant is backed by a partial unique index on
// (salesman_id, shopkeeper_id) WHERE is_active.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const assignmentColumns = `id, salesman_id, shopkeeper_id, assigned_by, assigned_at, is_active, notes`

func scanAssignment(row pgx.Row) (*Assignment, error) {
	var a Assignment
	err := row.Scan(&a.ID, &a.SalesmanID, &a.ShopkeeperID, &a.AssignedBy, &a.AssignedAt, &a.IsActive, &a.Notes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Get fetches an assignment by id.
func (r *Repository) Get(ctx context.Context, id int64) (*Assignment, error) {
	return scanAssignment(r.pool.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM shop_salesman_assignments WHERE id=$1`, id))
}

// ListActive returns all active assignments, newest first.
func (r *Repository) ListActive(ctx context.Context) ([]Assignment, error) {
	return r.query(ctx, `SELECT `+assignmentColumns+` FROM shop_salesman_assignments WHERE is_active ORDER BY assigned_at DESC`)
}

// ListBySalesman returns a salesman's active assignments, newest first.
func (r *Repository) ListBySalesman(ctx context.Context, salesmanID int64) ([]Assignment, error) {
	return r.query(ctx, `SELECT `+assignmentColumns+` FROM shop_salesman_assignments WHERE salesman_id=$1 AND is_active ORDER BY assigned_at DESC`, salesmanID)
}

// ActiveExists reports whether the pair has an active assignment.
func (r *Repository) ActiveExists(ctx context.Context, salesmanID, shopkeeperID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM shop_salesman_assignments WHERE salesman_id=$1 AND shopkeeper_id=$2 AND is_active)`,
		salesmanID, shopkeeperID).Scan(&exists)
	return exists, err
}

// Create inserts a new active assignment.
func (r *Repository) Create(ctx context.Context, a Assignment) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO shop_salesman_assignments (salesman_id, shopkeeper_id, assigned_by, assigned_at, is_active, notes)
VALUES ($1,$2,$3,NOW(),TRUE,$4) RETURNING id`, a.SalesmanID, a.ShopkeeperID, a.AssignedBy, a.Notes).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicate
		}
		return 0, err
	}
	return id, nil
}

// Revoke deactivates an assignment.
func (r *Repository) Revoke(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE shop_salesman_assignments SET is_active=FALSE WHERE id=$1 AND is_active`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) query(ctx context.Context, sql string, args ...any) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assignments := []Assignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, *a)
	}
	return assignments, rows.Err()
}

var _ RepositoryPort = (*Repository)(nil)
