package budget

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/treasury-erp/treasury-erp/internal/platform/db"
	"github.com/treasury-erp/treasury-erp/internal/shared"
)

// ApprovalModule tags budget entries in the approvals trail.
const ApprovalModule = "budget"

// Repository defines budget data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	Get(ctx context.Context, id uuid.UUID) (Budget, error)
	List(ctx context.Context, filter ListFilter) ([]Budget, int, error)
	Overview(ctx context.Context, filter OverviewFilter) ([]OverviewLine, error)
}

// TxRepository defines operations within a transaction.
type TxRepository interface {
	Insert(ctx context.Context, b Budget) error
	LockBudget(ctx context.Context, id uuid.UUID) (Budget, error)
	HasApproved(ctx context.Context, department string, period shared.FiscalPeriod, exclude uuid.UUID) (bool, error)
	UpdateReview(ctx context.Context, b Budget) error
	RecordApproval(ctx context.Context, log shared.ApprovalLog) error
}

var _ Repository = (*pgRepository)(nil)
var _ TxRepository = (*pgTxRepository)(nil)

// Columns lists the budget columns in the order ScanBudget expects.
const Columns = `id, department, allocated_amount, fiscal_year, fiscal_quarter, comment, status,
remaining_amount, approved_by, approved_at, created_at, updated_at`

// ScanBudget reads one row selected with Columns.
func ScanBudget(row pgx.Row) (Budget, error) {
	var b Budget
	var status string
	err := row.Scan(&b.ID, &b.Department, &b.AllocatedAmount, &b.FiscalYear, &b.FiscalQuarter, &b.Comment, &status,
		&b.RemainingAmount, &b.ApprovedBy, &b.ApprovedAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Budget{}, fmt.Errorf("%w: budget", shared.ErrNotFound)
		}
		return Budget{}, err
	}
	b.Status = Status(status)
	return b, nil
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

type pgTxRepository struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

func (r *pgRepository) Get(ctx context.Context, id uuid.UUID) (Budget, error) {
	b, err := ScanBudget(r.pool.QueryRow(ctx, `SELECT `+Columns+` FROM budgets WHERE id=$1`, id))
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return Budget{}, db.Wrap("get budget", err)
	}
	return b, err
}

func (r *pgRepository) List(ctx context.Context, filter ListFilter) ([]Budget, int, error) {
	where, args := listWhere(filter, "")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM budgets`+where, args...).Scan(&total); err != nil {
		return nil, 0, db.Wrap("count budgets", err)
	}

	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	query := fmt.Sprintf(`SELECT %s FROM budgets%s ORDER BY fiscal_year DESC, fiscal_quarter DESC, created_at DESC LIMIT $%d OFFSET $%d`,
		Columns, where, len(args)+1, len(args)+2)
	args = append(args, page.PerPage, page.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, db.Wrap("list budgets", err)
	}
	defer rows.Close()

	budgets := []Budget{}
	for rows.Next() {
		b, err := ScanBudget(rows)
		if err != nil {
			return nil, 0, db.Wrap("scan budget", err)
		}
		budgets = append(budgets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, db.Wrap("list budgets", err)
	}
	return budgets, total, nil
}

func listWhere(filter ListFilter, alias string) (string, []any) {
	var clauses []string
	var args []any
	add := func(column string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf("%s%s = $%d", alias, column, len(args)))
	}
	if filter.Department != "" {
		add("department", filter.Department)
	}
	if filter.Status != "" {
		add("status", string(filter.Status))
	}
	if filter.FiscalYear != 0 {
		add("fiscal_year", filter.FiscalYear)
	}
	if filter.Quarter != 0 {
		add("fiscal_quarter", filter.Quarter)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

const overviewQuery = `
SELECT b.id, b.department, b.fiscal_year, b.fiscal_quarter, b.allocated_amount,
       COALESCE(b.remaining_amount, 0),
       COALESCE((SELECT SUM(d.amount) FROM disbursements d
                 JOIN fund_requests fr ON fr.id = d.request_id
                 WHERE d.status = 'pending' AND fr.department = b.department
                   AND fr.fiscal_year = b.fiscal_year AND fr.fiscal_quarter = b.fiscal_quarter), 0),
       COALESCE((SELECT SUM(s.amount_used) FROM settlements s
                 JOIN fund_requests fr ON fr.id = s.request_id
                 WHERE fr.department = b.department
                   AND fr.fiscal_year = b.fiscal_year AND fr.fiscal_quarter = b.fiscal_quarter), 0)
FROM budgets b`

func (r *pgRepository) Overview(ctx context.Context, filter OverviewFilter) ([]OverviewLine, error) {
	where, args := listWhere(ListFilter{
		Department: filter.Department,
		Status:     StatusApproved,
		FiscalYear: filter.FiscalYear,
		Quarter:    filter.Quarter,
	}, "b.")

	rows, err := r.pool.Query(ctx, overviewQuery+where+` ORDER BY b.fiscal_year, b.fiscal_quarter, b.department`, args...)
	if err != nil {
		return nil, db.Wrap("budget overview", err)
	}
	defer rows.Close()

	lines := []OverviewLine{}
	for rows.Next() {
		var l OverviewLine
		if err := rows.Scan(&l.BudgetID, &l.Department, &l.FiscalYear, &l.FiscalQuarter,
			&l.Allocated, &l.Remaining, &l.Committed, &l.Spent); err != nil {
			return nil, db.Wrap("scan overview", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Wrap("budget overview", err)
	}
	return lines, nil
}

func (t *pgTxRepository) Insert(ctx context.Context, b Budget) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO budgets (id, department, allocated_amount, fiscal_year, fiscal_quarter, comment, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		b.ID, b.Department, b.AllocatedAmount, b.FiscalYear, b.FiscalQuarter, b.Comment, string(b.Status), b.CreatedAt)
	return err
}

func (t *pgTxRepository) LockBudget(ctx context.Context, id uuid.UUID) (Budget, error) {
	return ScanBudget(t.tx.QueryRow(ctx, `SELECT `+Columns+` FROM budgets WHERE id=$1 FOR UPDATE`, id))
}

func (t *pgTxRepository) HasApproved(ctx context.Context, department string, period shared.FiscalPeriod, exclude uuid.UUID) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM budgets
WHERE department=$1 AND fiscal_year=$2 AND fiscal_quarter=$3 AND status='approved' AND id <> $4)`,
		department, period.Year, period.Quarter, exclude).Scan(&exists)
	return exists, err
}

func (t *pgTxRepository) UpdateReview(ctx context.Context, b Budget) error {
	tag, err := t.tx.Exec(ctx, `UPDATE budgets
SET status=$2, comment=$3, remaining_amount=$4, approved_by=$5, approved_at=$6, updated_at=$7
WHERE id=$1`, b.ID, string(b.Status), b.Comment, b.RemainingAmount, b.ApprovedBy, b.ApprovedAt, b.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: budget", shared.ErrNotFound)
	}
	return nil
}

func (t *pgTxRepository) RecordApproval(ctx context.Context, log shared.ApprovalLog) error {
	return shared.NewApprovalRecorder(t.tx, nil).Record(ctx, log)
}
