package requests

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/treasury-erp/treasury-erp/internal/shared"
)

// IdempotencyModule scopes request creation keys.
const IdempotencyModule = "fund_request.create"

// IdempotencyGuard is satisfied by shared.IdempotencyStore.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service handles fund request intake.
type Service struct {
	repo   Repository
	idem   IdempotencyGuard
	audit  shared.AuditRecorder
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds the intake service. idem and audit may be nil.
func NewService(repo Repository, idem IdempotencyGuard, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, idem: idem, audit: audit, logger: logger, now: time.Now}
}

// Create stores a new draft with a generated request number. A non-empty idempotencyKey makes
// repeated submissions of the same key fail with shared.ErrIdempotencyConflict.
func (s *Service) Create(ctx context.Context, input CreateInput, idempotencyKey string) (FundRequest, error) {
	if err := validateCreate(&input); err != nil {
		return FundRequest{}, err
	}
	if idempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, idempotencyKey, IdempotencyModule); err != nil {
			return FundRequest{}, err
		}
	}

	now := s.now()
	fr := FundRequest{
		ID:            uuid.New(),
		Department:    input.Department,
		RequesterID:   input.RequesterID,
		Amount:        input.Amount,
		Purpose:       input.Purpose,
		Priority:      input.Priority,
		FiscalYear:    input.FiscalYear,
		FiscalQuarter: input.FiscalQuarter,
		Status:        StatusDraft,
		Notes:         input.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.NextSequence(ctx, now.Year())
		if err != nil {
			return err
		}
		fr.RequestNumber = FormatNumber(now.Year(), seq)
		return tx.Insert(ctx, fr)
	})
	if err != nil {
		if idempotencyKey != "" && s.idem != nil {
			if delErr := s.idem.Delete(ctx, idempotencyKey); delErr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		return FundRequest{}, err
	}
	s.record(ctx, fr.RequesterID, "fund_request.create", fr)
	return fr, nil
}

func validateCreate(input *CreateInput) error {
	input.Department = strings.TrimSpace(input.Department)
	input.Purpose = strings.TrimSpace(input.Purpose)
	switch {
	case input.Department == "":
		return fmt.Errorf("%w: department required", shared.ErrValidation)
	case input.RequesterID == uuid.Nil:
		return fmt.Errorf("%w: requester id required", shared.ErrValidation)
	case !input.Amount.IsPositive():
		return fmt.Errorf("%w: amount must be positive", shared.ErrValidation)
	case input.Purpose == "":
		return fmt.Errorf("%w: purpose required", shared.ErrValidation)
	}
	if err := shared.CheckMoney("amount", input.Amount); err != nil {
		return err
	}
	if input.Priority == "" {
		input.Priority = PriorityMedium
	}
	if !input.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", shared.ErrValidation, input.Priority)
	}
	_, err := shared.NewFiscalPeriod(input.FiscalYear, input.FiscalQuarter)
	return err
}

// UpdateDraft edits a draft. Any other status is refused.
func (s *Service) UpdateDraft(ctx context.Context, id uuid.UUID, input UpdateInput) (FundRequest, error) {
	if input.Amount != nil {
		if !input.Amount.IsPositive() {
			return FundRequest{}, fmt.Errorf("%w: amount must be positive", shared.ErrValidation)
		}
		if err := shared.CheckMoney("amount", *input.Amount); err != nil {
			return FundRequest{}, err
		}
	}
	if input.Purpose != nil && strings.TrimSpace(*input.Purpose) == "" {
		return FundRequest{}, fmt.Errorf("%w: purpose required", shared.ErrValidation)
	}
	if input.Priority != nil && !input.Priority.Valid() {
		return FundRequest{}, fmt.Errorf("%w: unknown priority %q", shared.ErrValidation, *input.Priority)
	}
	var out FundRequest
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		fr, err := tx.LockRequest(ctx, id)
		if err != nil {
			return err
		}
		if !CanEdit(fr) {
			return fmt.Errorf("%w: only draft requests can be edited", shared.ErrInvalidState)
		}
		if input.Amount != nil {
			fr.Amount = *input.Amount
		}
		if input.Purpose != nil {
			fr.Purpose = strings.TrimSpace(*input.Purpose)
		}
		if input.Priority != nil {
			fr.Priority = *input.Priority
		}
		if input.Notes != nil {
			fr.Notes = *input.Notes
		}
		fr.UpdatedAt = s.now()
		if err := tx.Update(ctx, fr); err != nil {
			return err
		}
		out = fr
		return nil
	})
	if err != nil {
		return FundRequest{}, err
	}
	return out, nil
}

// Submit moves a draft into the review queue.
func (s *Service) Submit(ctx context.Context, id uuid.UUID) (FundRequest, error) {
	out, err := s.transition(ctx, id, func(ctx context.Context, tx TxRepository, fr FundRequest, now time.Time) (FundRequest, error) {
		next, err := Submit(fr, now)
		if err != nil {
			return fr, err
		}
		return next, tx.EnsureSubmitted(ctx, fr.ID, fr.RequesterID)
	})
	if err != nil {
		return FundRequest{}, err
	}
	s.record(ctx, out.RequesterID, "fund_request.submit", out)
	return out, nil
}

// StartReview marks a submitted request as under review by reviewerID.
func (s *Service) StartReview(ctx context.Context, id, reviewerID uuid.UUID) (FundRequest, error) {
	if reviewerID == uuid.Nil {
		return FundRequest{}, fmt.Errorf("%w: reviewer id required", shared.ErrValidation)
	}
	out, err := s.transition(ctx, id, func(ctx context.Context, tx TxRepository, fr FundRequest, now time.Time) (FundRequest, error) {
		next, err := StartReview(fr, now)
		if err != nil {
			return fr, err
		}
		return next, tx.RecordApproval(ctx, shared.ApprovalLog{Module: ApprovalModule, RefID: fr.ID, ActorID: reviewerID, Action: shared.ApprovalReview, At: now})
	})
	if err != nil {
		return FundRequest{}, err
	}
	s.record(ctx, reviewerID, "fund_request.review", out)
	return out, nil
}

// ReturnToSubmitted sends a request under review back to the queue.
func (s *Service) ReturnToSubmitted(ctx context.Context, id, reviewerID uuid.UUID, note string) (FundRequest, error) {
	if reviewerID == uuid.Nil {
		return FundRequest{}, fmt.Errorf("%w: reviewer id required", shared.ErrValidation)
	}
	out, err := s.transition(ctx, id, func(ctx context.Context, tx TxRepository, fr FundRequest, now time.Time) (FundRequest, error) {
		next, err := ReturnToSubmitted(fr, now)
		if err != nil {
			return fr, err
		}
		return next, tx.RecordApproval(ctx, shared.ApprovalLog{Module: ApprovalModule, RefID: fr.ID, ActorID: reviewerID, Action: shared.ApprovalReturn, Note: strings.TrimSpace(note), At: now})
	})
	if err != nil {
		return FundRequest{}, err
	}
	s.record(ctx, reviewerID, "fund_request.return", out)
	return out, nil
}

// Delete removes a draft.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	var deleted FundRequest
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		fr, err := tx.LockRequest(ctx, id)
		if err != nil {
			return err
		}
		if !CanDelete(fr) {
			return fmt.Errorf("%w: only draft requests can be deleted", shared.ErrInvalidState)
		}
		deleted = fr
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, deleted.RequesterID, "fund_request.delete", deleted)
	return nil
}

// Get returns one request.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (FundRequest, error) {
	return s.repo.Get(ctx, id)
}

// List returns requests matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]FundRequest, shared.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.Pagination{}, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, filter.Status)
	}
	out, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return out, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// Approvals returns the approval trail of a request.
func (s *Service) Approvals(ctx context.Context, id uuid.UUID) ([]shared.ApprovalLog, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListApprovals(ctx, id)
}

type transitionFunc func(ctx context.Context, tx TxRepository, fr FundRequest, now time.Time) (FundRequest, error)

func (s *Service) transition(ctx context.Context, id uuid.UUID, fn transitionFunc) (FundRequest, error) {
	var out FundRequest
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		fr, err := tx.LockRequest(ctx, id)
		if err != nil {
			return err
		}
		next, err := fn(ctx, tx, fr, s.now())
		if err != nil {
			return err
		}
		if err := tx.Update(ctx, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	return out, err
}

func (s *Service) record(ctx context.Context, actor uuid.UUID, action string, fr FundRequest) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "fund_request",
		EntityID: fr.ID.String(),
		Meta: map[string]any{
			"request_number": fr.RequestNumber,
			"status":         string(fr.Status),
			"amount":         fr.Amount.String(),
		},
	})
	if err != nil {
		s.logger.Warn("audit fund request", slog.String("action", action), slog.Any("error", err))
	}
}
