package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/treasury-erp/treasury-erp/internal/platform/cache"
	"github.com/treasury-erp/treasury-erp/internal/platform/db"
	"github.com/treasury-erp/treasury-erp/internal/shared"
)

// Service coordinates budget administration.
type Service struct {
	repo   Repository
	cache  *cache.Versioned
	audit  shared.AuditRecorder
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds the budget service. cache and audit may be nil.
func NewService(repo Repository, overviewCache *cache.Versioned, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: overviewCache, audit: audit, logger: logger, now: time.Now}
}

// Create stores a new pending budget.
func (s *Service) Create(ctx context.Context, input CreateInput) (Budget, error) {
	input.Department = strings.TrimSpace(input.Department)
	input.Comment = strings.TrimSpace(input.Comment)
	if input.Department == "" {
		return Budget{}, fmt.Errorf("%w: department required", shared.ErrValidation)
	}
	if !input.AllocatedAmount.IsPositive() {
		return Budget{}, fmt.Errorf("%w: allocated amount must be positive", shared.ErrValidation)
	}
	if err := shared.CheckMoney("allocated amount", input.AllocatedAmount); err != nil {
		return Budget{}, err
	}
	if input.Comment == "" {
		return Budget{}, fmt.Errorf("%w: comment required", shared.ErrValidation)
	}
	if _, err := shared.NewFiscalPeriod(input.FiscalYear, input.FiscalQuarter); err != nil {
		return Budget{}, err
	}

	now := s.now()
	b := Budget{
		ID:              uuid.New(),
		Department:      input.Department,
		AllocatedAmount: input.AllocatedAmount,
		FiscalYear:      input.FiscalYear,
		FiscalQuarter:   input.FiscalQuarter,
		Comment:         input.Comment,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.Insert(ctx, b)
	})
	if err != nil {
		return Budget{}, err
	}
	s.record(ctx, uuid.Nil, "budget.create", b)
	return b, nil
}

// Approve moves a pending budget to approved and opens its ledger at the allocated amount.
func (s *Service) Approve(ctx context.Context, id, approverID uuid.UUID) (Budget, error) {
	if approverID == uuid.Nil {
		return Budget{}, fmt.Errorf("%w: approver id required", shared.ErrValidation)
	}
	var out Budget
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		b, err := tx.LockBudget(ctx, id)
		if err != nil {
			return err
		}
		if b.Status != StatusPending {
			return fmt.Errorf("%w: budget is %s", shared.ErrInvalidState, b.Status)
		}
		taken, err := tx.HasApproved(ctx, b.Department, b.Period(), b.ID)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: %s already has an approved budget for %s", shared.ErrConflict, b.Department, b.Period())
		}
		now := s.now()
		b.Status = StatusApproved
		b.RemainingAmount = decimal.NewNullDecimal(b.AllocatedAmount)
		b.ApprovedBy = &approverID
		b.ApprovedAt = &now
		b.UpdatedAt = now
		if err := tx.UpdateReview(ctx, b); err != nil {
			return err
		}
		if err := tx.RecordApproval(ctx, shared.ApprovalLog{Module: ApprovalModule, RefID: b.ID, ActorID: approverID, Action: shared.ApprovalApprove, At: now}); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return Budget{}, fmt.Errorf("%w: approved budget already exists for the period", shared.ErrConflict)
		}
		return Budget{}, err
	}
	s.record(ctx, approverID, "budget.approve", out)
	s.InvalidateOverview(ctx)
	return out, nil
}

// Reject moves a pending budget to rejected, appending the reason to the comment.
func (s *Service) Reject(ctx context.Context, id, approverID uuid.UUID, reason string) (Budget, error) {
	reason = strings.TrimSpace(reason)
	if approverID == uuid.Nil {
		return Budget{}, fmt.Errorf("%w: approver id required", shared.ErrValidation)
	}
	if reason == "" {
		return Budget{}, fmt.Errorf("%w: rejection reason required", shared.ErrValidation)
	}
	var out Budget
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		b, err := tx.LockBudget(ctx, id)
		if err != nil {
			return err
		}
		if b.Status != StatusPending {
			return fmt.Errorf("%w: budget is %s", shared.ErrInvalidState, b.Status)
		}
		now := s.now()
		b.Status = StatusRejected
		b.Comment = b.Comment + " | Rejected: " + reason
		b.UpdatedAt = now
		if err := tx.UpdateReview(ctx, b); err != nil {
			return err
		}
		if err := tx.RecordApproval(ctx, shared.ApprovalLog{Module: ApprovalModule, RefID: b.ID, ActorID: approverID, Action: shared.ApprovalReject, Note: reason, At: now}); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return Budget{}, err
	}
	s.record(ctx, approverID, "budget.reject", out)
	return out, nil
}

// Get returns one budget.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Budget, error) {
	return s.repo.Get(ctx, id)
}

// List returns budgets matching the filter with the total match count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Budget, shared.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.Pagination{}, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, filter.Status)
	}
	budgets, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return budgets, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// Overview returns the cached ledger read model for the filter.
func (s *Service) Overview(ctx context.Context, filter OverviewFilter) (Overview, error) {
	if filter.Quarter != 0 && (filter.Quarter < 1 || filter.Quarter > 4) {
		return Overview{}, fmt.Errorf("%w: fiscal quarter must be 1-4", shared.ErrValidation)
	}
	key, err := s.cache.BuildKey(ctx, "overview", filter.Department, strconv.Itoa(filter.FiscalYear), strconv.Itoa(filter.Quarter))
	if err != nil {
		s.logger.Warn("overview cache key", slog.Any("error", err))
		return s.loadOverview(ctx, filter)
	}
	var out Overview
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.loadOverview(ctx, filter)
	})
	if err != nil {
		return Overview{}, err
	}
	return out, nil
}

// InvalidateOverview drops every cached overview. Failures are logged, never returned.
func (s *Service) InvalidateOverview(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump overview cache", slog.Any("error", err))
	}
}

func (s *Service) loadOverview(ctx context.Context, filter OverviewFilter) (Overview, error) {
	lines, err := s.repo.Overview(ctx, filter)
	if err != nil {
		return Overview{}, err
	}
	return buildOverview(lines, s.now()), nil
}

func (s *Service) record(ctx context.Context, actor uuid.UUID, action string, b Budget) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "budget",
		EntityID: b.ID.String(),
		Meta: map[string]any{
			"department": b.Department,
			"period":     b.Period().String(),
			"status":     string(b.Status),
			"allocated":  b.AllocatedAmount.String(),
		},
	})
	if err != nil {
		s.logger.Warn("audit budget", slog.String("action", action), slog.Any("error", err))
	}
}
