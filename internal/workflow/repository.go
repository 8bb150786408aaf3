package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/treasury-erp/treasury-erp/internal/budget"
	"github.com/treasury-erp/treasury-erp/internal/platform/db"
	"github.com/treasury-erp/treasury-erp/internal/requests"
	"github.com/treasury-erp/treasury-erp/internal/shared"
)

// Repository defines workflow data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetDisbursement(ctx context.Context, id uuid.UUID) (Disbursement, error)
	ListDisbursements(ctx context.Context, requestID uuid.UUID) ([]Disbursement, error)
	ListSettlements(ctx context.Context, requestID uuid.UUID) ([]Settlement, error)
}

// TxRepository is the set of row operations a workflow transaction may perform. Locks are
// taken in the order request, disbursement, budget.
type TxRepository interface {
	LockRequest(ctx context.Context, id uuid.UUID) (requests.FundRequest, error)
	UpdateRequest(ctx context.Context, r requests.FundRequest) error
	LockDisbursementByRequest(ctx context.Context, requestID uuid.UUID) (Disbursement, error)
	InsertDisbursement(ctx context.Context, d Disbursement) error
	UpdateDisbursementStatus(ctx context.Context, id uuid.UUID, status DisbursementStatus) error
	LockActiveBudget(ctx context.Context, department string, period shared.FiscalPeriod) (budget.Budget, error)
	UpdateBudgetRemaining(ctx context.Context, b budget.Budget) error
	InsertSettlement(ctx context.Context, s Settlement) error
	RecordApproval(ctx context.Context, log shared.ApprovalLog) error
}

var _ Repository = (*pgRepository)(nil)
var _ TxRepository = (*pgTxRepository)(nil)

const disbursementColumns = `id, request_id, amount, disbursed_by, transaction_reference, notes, disbursed_at, status`

const settlementColumns = `id, disbursement_id, request_id, initial_budget, amount_used, remaining_balance,
comment, attachments, settled_by, settled_at, status`

func scanDisbursement(row pgx.Row) (Disbursement, error) {
	var d Disbursement
	var status string
	err := row.Scan(&d.ID, &d.RequestID, &d.Amount, &d.DisbursedBy, &d.TransactionReference, &d.Notes, &d.DisbursedAt, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Disbursement{}, fmt.Errorf("%w: disbursement", shared.ErrNotFound)
		}
		return Disbursement{}, err
	}
	d.Status = DisbursementStatus(status)
	return d, nil
}

func scanSettlement(row pgx.Row) (Settlement, error) {
	var s Settlement
	var status string
	err := row.Scan(&s.ID, &s.DisbursementID, &s.RequestID, &s.InitialBudget, &s.AmountUsed, &s.RemainingBalance,
		&s.Comment, &s.Attachments, &s.SettledBy, &s.SettledAt, &status)
	if err != nil {
		return Settlement{}, err
	}
	s.Status = SettlementStatus(status)
	return s, nil
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

func (r *pgRepository) GetDisbursement(ctx context.Context, id uuid.UUID) (Disbursement, error) {
	d, err := scanDisbursement(r.pool.QueryRow(ctx, `SELECT `+disbursementColumns+` FROM disbursements WHERE id=$1`, id))
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return Disbursement{}, db.Wrap("get disbursement", err)
	}
	return d, err
}

func (r *pgRepository) ListDisbursements(ctx context.Context, requestID uuid.UUID) ([]Disbursement, error) {
	query := `SELECT ` + disbursementColumns + ` FROM disbursements`
	var args []any
	if requestID != uuid.Nil {
		query += ` WHERE request_id=$1`
		args = append(args, requestID)
	}
	rows, err := r.pool.Query(ctx, query+` ORDER BY disbursed_at DESC`, args...)
	if err != nil {
		return nil, db.Wrap("list disbursements", err)
	}
	defer rows.Close()

	out := []Disbursement{}
	for rows.Next() {
		d, err := scanDisbursement(rows)
		if err != nil {
			return nil, db.Wrap("scan disbursement", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Wrap("list disbursements", err)
	}
	return out, nil
}

func (r *pgRepository) ListSettlements(ctx context.Context, requestID uuid.UUID) ([]Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlements`
	var args []any
	if requestID != uuid.Nil {
		query += ` WHERE request_id=$1`
		args = append(args, requestID)
	}
	rows, err := r.pool.Query(ctx, query+` ORDER BY settled_at DESC`, args...)
	if err != nil {
		return nil, db.Wrap("list settlements", err)
	}
	defer rows.Close()

	out := []Settlement{}
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, db.Wrap("scan settlement", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Wrap("list settlements", err)
	}
	return out, nil
}

func (t *pgTxRepository) LockRequest(ctx context.Context, id uuid.UUID) (requests.FundRequest, error) {
	return requests.LockRequest(ctx, t.tx, id)
}

func (t *pgTxRepository) UpdateRequest(ctx context.Context, r requests.FundRequest) error {
	return requests.UpdateRequest(ctx, t.tx, r)
}

func (t *pgTxRepository) LockDisbursementByRequest(ctx context.Context, requestID uuid.UUID) (Disbursement, error) {
	return scanDisbursement(t.tx.QueryRow(ctx, `SELECT `+disbursementColumns+` FROM disbursements WHERE request_id=$1 FOR UPDATE`, requestID))
}

func (t *pgTxRepository) InsertDisbursement(ctx context.Context, d Disbursement) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO disbursements (id, request_id, amount, disbursed_by, transaction_reference, notes, disbursed_at, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.RequestID, d.Amount, d.DisbursedBy, d.TransactionReference, d.Notes, d.DisbursedAt, string(d.Status))
	return err
}

func (t *pgTxRepository) UpdateDisbursementStatus(ctx context.Context, id uuid.UUID, status DisbursementStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE disbursements SET status=$2 WHERE id=$1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: disbursement", shared.ErrNotFound)
	}
	return nil
}

func (t *pgTxRepository) LockActiveBudget(ctx context.Context, department string, period shared.FiscalPeriod) (budget.Budget, error) {
	b, err := budget.ScanBudget(t.tx.QueryRow(ctx, `SELECT `+budget.Columns+` FROM budgets
WHERE department=$1 AND fiscal_year=$2 AND fiscal_quarter=$3 AND status='approved'
FOR UPDATE`, department, period.Year, period.Quarter))
	if errors.Is(err, shared.ErrNotFound) {
		return budget.Budget{}, fmt.Errorf("%w: no approved budget for %s %s", shared.ErrNotFound, department, period)
	}
	return b, err
}

// UpdateBudgetRemaining persists only remaining_amount, the single column the ledger owns.
func (t *pgTxRepository) UpdateBudgetRemaining(ctx context.Context, b budget.Budget) error {
	tag, err := t.tx.Exec(ctx, `UPDATE budgets SET remaining_amount=$2, updated_at=$3 WHERE id=$1 AND status='approved'`,
		b.ID, b.RemainingAmount, b.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: approved budget", shared.ErrNotFound)
	}
	return nil
}

func (t *pgTxRepository) InsertSettlement(ctx context.Context, s Settlement) error {
	attachments := s.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	_, err := t.tx.Exec(ctx, `INSERT INTO settlements (id, disbursement_id, request_id, initial_budget, amount_used,
remaining_balance, comment, attachments, settled_by, settled_at, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		s.ID, s.DisbursementID, s.RequestID, s.InitialBudget, s.AmountUsed, s.RemainingBalance, s.Comment,
		attachments, s.SettledBy, s.SettledAt, string(s.Status))
	return err
}

func (t *pgTxRepository) RecordApproval(ctx context.Context, log shared.ApprovalLog) error {
	return shared.NewApprovalRecorder(t.tx, nil).Record(ctx, log)
}
