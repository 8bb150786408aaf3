package requests

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

// ApprovalModule tags fund request entries in the approvals trail.
const ApprovalModule = "fund_request"

// Repository defines fund request data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	Get(ctx context.Context, id uuid.UUID) (FundRequest, error)
	List(ctx context.Context, filter ListFilter) ([]FundRequest, int, error)
	ListApprovals(ctx context.Context, id uuid.UUID) ([]shared.ApprovalLog, error)
}

// TxRepository defines operations within a transaction.
type TxRepository interface {
	NextSequence(ctx context.Context, year int) (int, error)
	Insert(ctx context.Context, r FundRequest) error
	LockRequest(ctx context.Context, id uuid.UUID) (FundRequest, error)
	Update(ctx context.Context, r FundRequest) error
	Delete(ctx context.Context, id uuid.UUID) error
	RecordApproval(ctx context.Context, log shared.ApprovalLog) error
	EnsureSubmitted(ctx context.Context, id, actorID uuid.UUID) error
}

var _ Repository = (*pgRepository)(nil)
var _ TxRepository = (*pgTxRepository)(nil)

// Columns lists the fund request columns in the order ScanRequest expects.
const Columns = `id, request_number, department, requester_id, amount, purpose, priority, fiscal_year,
fiscal_quarter, status, approver_id, rejection_reason, submitted_at, approved_at, notes, created_at, updated_at`

// ScanRequest reads one row selected with Columns.
func ScanRequest(row pgx.Row) (FundRequest, error) {
	var r FundRequest
	var priority, status string
	err := row.Scan(&r.ID, &r.RequestNumber, &r.Department, &r.RequesterID, &r.Amount, &r.Purpose, &priority,
		&r.FiscalYear, &r.FiscalQuarter, &status, &r.ApproverID, &r.RejectionReason, &r.SubmittedAt, &r.ApprovedAt,
		&r.Notes, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FundRequest{}, fmt.Errorf("%w: fund request", shared.ErrNotFound)
		}
		return FundRequest{}, err
	}
	r.Priority = Priority(priority)
	r.Status = Status(status)
	return r, nil
}

// LockRequest selects a request FOR UPDATE on q.
func LockRequest(ctx context.Context, q db.DBTX, id uuid.UUID) (FundRequest, error) {
	return ScanRequest(q.QueryRow(ctx, `SELECT `+Columns+` FROM fund_requests WHERE id=$1 FOR UPDATE`, id))
}

// UpdateRequest writes the mutable columns of r on q.
func UpdateRequest(ctx context.Context, q db.DBTX, r FundRequest) error {
	tag, err := q.Exec(ctx, `UPDATE fund_requests
SET amount=$2, purpose=$3, priority=$4, status=$5, approver_id=$6, rejection_reason=$7,
    submitted_at=$8, approved_at=$9, notes=$10, updated_at=$11
WHERE id=$1`, r.ID, r.Amount, r.Purpose, string(r.Priority), string(r.Status), r.ApproverID, r.RejectionReason,
		r.SubmittedAt, r.ApprovedAt, r.Notes, r.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: fund request", shared.ErrNotFound)
	}
	return nil
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

func (r *pgRepository) Get(ctx context.Context, id uuid.UUID) (FundRequest, error) {
	fr, err := ScanRequest(r.pool.QueryRow(ctx, `SELECT `+Columns+` FROM fund_requests WHERE id=$1`, id))
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return FundRequest{}, db.Wrap("get fund request", err)
	}
	return fr, err
}

func (r *pgRepository) List(ctx context.Context, filter ListFilter) ([]FundRequest, int, error) {
	var clauses []string
	var args []any
	add := func(column string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if filter.Department != "" {
		add("department", filter.Department)
	}
	if filter.Status != "" {
		add("status", string(filter.Status))
	}
	if filter.RequesterID != uuid.Nil {
		add("requester_id", filter.RequesterID)
	}
	if filter.FiscalYear != 0 {
		add("fiscal_year", filter.FiscalYear)
	}
	if filter.Quarter != 0 {
		add("fiscal_quarter", filter.Quarter)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM fund_requests`+where, args...).Scan(&total); err != nil {
		return nil, 0, db.Wrap("count fund requests", err)
	}

	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	query := fmt.Sprintf(`SELECT %s FROM fund_requests%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		Columns, where, len(args)+1, len(args)+2)
	args = append(args, page.PerPage, page.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, db.Wrap("list fund requests", err)
	}
	defer rows.Close()

	out := []FundRequest{}
	for rows.Next() {
		fr, err := ScanRequest(rows)
		if err != nil {
			return nil, 0, db.Wrap("scan fund request", err)
		}
		out = append(out, fr)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, db.Wrap("list fund requests", err)
	}
	return out, total, nil
}

func (r *pgRepository) ListApprovals(ctx context.Context, id uuid.UUID) ([]shared.ApprovalLog, error) {
	logs, err := shared.NewApprovalRecorder(r.pool, nil).List(ctx, ApprovalModule, id)
	if err != nil {
		return nil, db.Wrap("list approvals", err)
	}
	return logs, nil
}

func (t *pgTxRepository) NextSequence(ctx context.Context, year int) (int, error) {
	var seq int
	err := t.tx.QueryRow(ctx, `INSERT INTO request_sequences (year, last_value) VALUES ($1, 1)
ON CONFLICT (year) DO UPDATE SET last_value = request_sequences.last_value + 1
RETURNING last_value`, year).Scan(&seq)
	return seq, err
}

func (t *pgTxRepository) Insert(ctx context.Context, r FundRequest) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO fund_requests (id, request_number, department, requester_id, amount, purpose,
priority, fiscal_year, fiscal_quarter, status, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`,
		r.ID, r.RequestNumber, r.Department, r.RequesterID, r.Amount, r.Purpose, string(r.Priority),
		r.FiscalYear, r.FiscalQuarter, string(r.Status), r.Notes, r.CreatedAt)
	return err
}

func (t *pgTxRepository) LockRequest(ctx context.Context, id uuid.UUID) (FundRequest, error) {
	return LockRequest(ctx, t.tx, id)
}

func (t *pgTxRepository) Update(ctx context.Context, r FundRequest) error {
	return UpdateRequest(ctx, t.tx, r)
}

func (t *pgTxRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM fund_requests WHERE id=$1 AND status='draft'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: draft fund request", shared.ErrNotFound)
	}
	return nil
}

func (t *pgTxRepository) RecordApproval(ctx context.Context, log shared.ApprovalLog) error {
	return shared.NewApprovalRecorder(t.tx, nil).Record(ctx, log)
}

func (t *pgTxRepository) EnsureSubmitted(ctx context.Context, id, actorID uuid.UUID) error {
	return shared.NewApprovalRecorder(t.tx, nil).EnsureSubmit(ctx, ApprovalModule, id, actorID, "")
}
