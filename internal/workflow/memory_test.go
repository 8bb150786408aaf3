package workflow

import (
	"context"
	"fmt"
	"maps"

	"github.com/google/uuid"

	"github.com/treasury-erp/treasury-erp/internal/budget"
	"github.com/treasury-erp/treasury-erp/internal/platform/db"
	"github.com/treasury-erp/treasury-erp/internal/requests"
	"github.com/treasury-erp/treasury-erp/internal/shared"
)

// memoryRepo keeps every table in maps and restores a snapshot when a callback fails, the way
// a rolled back transaction would.
type memoryRepo struct {
	requests      map[uuid.UUID]requests.FundRequest
	budgets       map[uuid.UUID]budget.Budget
	disbursements map[uuid.UUID]Disbursement
	settlements   map[uuid.UUID]Settlement
	approvals     []shared.ApprovalLog
	failOn        map[string]error
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		requests:      make(map[uuid.UUID]requests.FundRequest),
		budgets:       make(map[uuid.UUID]budget.Budget),
		disbursements: make(map[uuid.UUID]Disbursement),
		settlements:   make(map[uuid.UUID]Settlement),
		failOn:        make(map[string]error),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	reqs := maps.Clone(r.requests)
	budgets := maps.Clone(r.budgets)
	disbursements := maps.Clone(r.disbursements)
	settlements := maps.Clone(r.settlements)
	approvals := append([]shared.ApprovalLog(nil), r.approvals...)
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.requests, r.budgets, r.disbursements, r.settlements, r.approvals = reqs, budgets, disbursements, settlements, approvals
		return err
	}
	return nil
}

func (r *memoryRepo) GetDisbursement(ctx context.Context, id uuid.UUID) (Disbursement, error) {
	d, ok := r.disbursements[id]
	if !ok {
		return Disbursement{}, fmt.Errorf("%w: disbursement", shared.ErrNotFound)
	}
	return d, nil
}

func (r *memoryRepo) ListDisbursements(ctx context.Context, requestID uuid.UUID) ([]Disbursement, error) {
	out := []Disbursement{}
	for _, d := range r.disbursements {
		if requestID == uuid.Nil || d.RequestID == requestID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListSettlements(ctx context.Context, requestID uuid.UUID) ([]Settlement, error) {
	out := []Settlement{}
	for _, s := range r.settlements {
		if requestID == uuid.Nil || s.RequestID == requestID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (t *memoryTx) fail(op string) error {
	return t.repo.failOn[op]
}

func (t *memoryTx) LockRequest(ctx context.Context, id uuid.UUID) (requests.FundRequest, error) {
	fr, ok := t.repo.requests[id]
	if !ok {
		return requests.FundRequest{}, fmt.Errorf("%w: fund request", shared.ErrNotFound)
	}
	return fr, nil
}

func (t *memoryTx) UpdateRequest(ctx context.Context, fr requests.FundRequest) error {
	if err := t.fail("UpdateRequest"); err != nil {
		return err
	}
	t.repo.requests[fr.ID] = fr
	return nil
}

func (t *memoryTx) LockDisbursementByRequest(ctx context.Context, requestID uuid.UUID) (Disbursement, error) {
	for _, d := range t.repo.disbursements {
		if d.RequestID == requestID {
			return d, nil
		}
	}
	return Disbursement{}, fmt.Errorf("%w: disbursement", shared.ErrNotFound)
}

func (t *memoryTx) InsertDisbursement(ctx context.Context, d Disbursement) error {
	if err := t.fail("InsertDisbursement"); err != nil {
		return err
	}
	for _, existing := range t.repo.disbursements {
		if existing.RequestID == d.RequestID {
			return fmt.Errorf("%w: disbursements_request_id_key", db.ErrDuplicate)
		}
	}
	t.repo.disbursements[d.ID] = d
	return nil
}

func (t *memoryTx) UpdateDisbursementStatus(ctx context.Context, id uuid.UUID, status DisbursementStatus) error {
	d, ok := t.repo.disbursements[id]
	if !ok {
		return fmt.Errorf("%w: disbursement", shared.ErrNotFound)
	}
	d.Status = status
	t.repo.disbursements[id] = d
	return nil
}

func (t *memoryTx) LockActiveBudget(ctx context.Context, department string, period shared.FiscalPeriod) (budget.Budget, error) {
	for _, b := range t.repo.budgets {
		if b.Department == department && b.Period() == period && b.Status == budget.StatusApproved {
			return b, nil
		}
	}
	return budget.Budget{}, fmt.Errorf("%w: no approved budget for %s %s", shared.ErrNotFound, department, period)
}

func (t *memoryTx) UpdateBudgetRemaining(ctx context.Context, b budget.Budget) error {
	if err := t.fail("UpdateBudgetRemaining"); err != nil {
		return err
	}
	stored, ok := t.repo.budgets[b.ID]
	if !ok {
		return fmt.Errorf("%w: approved budget", shared.ErrNotFound)
	}
	stored.RemainingAmount = b.RemainingAmount
	stored.UpdatedAt = b.UpdatedAt
	t.repo.budgets[b.ID] = stored
	return nil
}

func (t *memoryTx) InsertSettlement(ctx context.Context, s Settlement) error {
	if err := t.fail("InsertSettlement"); err != nil {
		return err
	}
	for _, existing := range t.repo.settlements {
		if existing.DisbursementID == s.DisbursementID {
			return fmt.Errorf("%w: settlements_disbursement_id_key", db.ErrDuplicate)
		}
	}
	t.repo.settlements[s.ID] = s
	return nil
}

func (t *memoryTx) RecordApproval(ctx context.Context, log shared.ApprovalLog) error {
	t.repo.approvals = append(t.repo.approvals, log)
	return nil
}
