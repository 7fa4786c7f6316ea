package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/snackline/snackline/internal/shared"
)

// ErrEmailTaken indicates an email already in use.
var ErrEmailTaken = errors.New("accounts: email already registered")

// Repository persists accounts in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const accountColumns = `id, name, email, phone, address, role, is_active, assigned_by, pending_amount, credit_limit, created_at, updated_at`

func scanAccount(row pgx.Row) (*Account, error) {
	var acc Account
	var creditLimit decimal.NullDecimal
	err := row.Scan(&acc.ID, &acc.Name, &acc.Email, &acc.Phone, &acc.Address, &acc.Role,
		&acc.IsActive, &acc.AssignedBy, &acc.PendingAmount, &creditLimit, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if creditLimit.Valid {
		acc.CreditLimit = &creditLimit.Decimal
	}
	return &acc, nil
}

// Get fetches an account by id.
func (r *Repository) Get(ctx context.Context, id int64) (*Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id)
	return scanAccount(row)
}

// GetWithRole fetches an account and verifies its role.
func (r *Repository) GetWithRole(ctx context.Context, id int64, role shared.Role) (*Account, error) {
	acc, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if acc.Role != role {
		return nil, ErrWrongRole
	}
	return acc, nil
}

// List returns accounts matching the filter plus the unpaged total.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Account, int, error) {
	where := "WHERE 1=1"
	args := []any{}
	argPos := 1

	if filter.Role != nil {
		where += fmt.Sprintf(" AND role = $%d", argPos)
		args = append(args, *filter.Role)
		argPos++
	}
	if filter.IsActive != nil {
		where += fmt.Sprintf(" AND is_active = $%d", argPos)
		args = append(args, *filter.IsActive)
		argPos++
	}
	if filter.AssignedBy != nil {
		where += fmt.Sprintf(" AND assigned_by = $%d", argPos)
		args = append(args, *filter.AssignedBy)
		argPos++
	}
	if filter.Search != "" {
		where += fmt.Sprintf(" AND (name ILIKE $%d OR email ILIKE $%d)", argPos, argPos)
		args = append(args, "%"+filter.Search+"%")
		argPos++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM accounts %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		accountColumns, where, argPos, argPos+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	accounts := []Account{}
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		accounts = append(accounts, *acc)
	}
	return accounts, total, rows.Err()
}

// SalesmenManagedBy returns ids of active salesmen provisioned by the admin.
func (r *Repository) SalesmenManagedBy(ctx context.Context, adminID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM accounts WHERE role=$1 AND assigned_by=$2 AND is_active`, shared.RoleSalesman, adminID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Create provisions a new account.
func (r *Repository) Create(ctx context.Context, acc NewAccount) (int64, error) {
	var creditLimit decimal.NullDecimal
	if acc.CreditLimit != nil {
		creditLimit = decimal.NullDecimal{Decimal: *acc.CreditLimit, Valid: true}
	}
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO accounts (name, email, phone, address, role, is_active, assigned_by, pending_amount, credit_limit, password_hash, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,TRUE,$6,0,$7,$8,NOW(),NOW()) RETURNING id`,
		acc.Name, acc.Email, acc.Phone, acc.Address, acc.Role, acc.AssignedBy, creditLimit, acc.PasswordHash).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrEmailTaken
		}
		return 0, err
	}
	return id, nil
}

// Update applies the provided field updates.
func (r *Repository) Update(ctx context.Context, id int64, upd Update) error {
	query := "UPDATE accounts SET updated_at = NOW()"
	args := []any{}
	argPos := 1

	if upd.Name != nil {
		query += fmt.Sprintf(", name = $%d", argPos)
		args = append(args, *upd.Name)
		argPos++
	}
	if upd.Phone != nil {
		query += fmt.Sprintf(", phone = $%d", argPos)
		args = append(args, *upd.Phone)
		argPos++
	}
	if upd.Address != nil {
		query += fmt.Sprintf(", address = $%d", argPos)
		args = append(args, *upd.Address)
		argPos++
	}
	if upd.CreditLimit != nil {
		query += fmt.Sprintf(", credit_limit = $%d", argPos)
		args = append(args, *upd.CreditLimit)
		argPos++
	}
	if upd.IsActive != nil {
		query += fmt.Sprintf(", is_active = $%d", argPos)
		args = append(args, *upd.IsActive)
		argPos++
	}

	query += fmt.Sprintf(" WHERE id = $%d", argPos)
	args = append(args, id)

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var _ RepositoryPort = (*Repository)(nil)
