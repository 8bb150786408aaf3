package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/treasury-erp/treasury-erp/internal/observability"
	"github.com/treasury-erp/treasury-erp/internal/requests"
	"github.com/treasury-erp/treasury-erp/internal/shared"
)

// OverviewInvalidator drops cached budget read models. Satisfied by *budget.Service.
type OverviewInvalidator interface {
	InvalidateOverview(ctx context.Context)
}

// MetricsPort receives workflow counters. Satisfied by *observability.Metrics.
type MetricsPort interface {
	ObserveWorkflow(operation, outcome string, err error)
	AddLedgerAmount(direction string, amount float64)
}

// OverspendPort queues a manual review after a settlement used more than was disbursed.
type OverspendPort interface {
	EnqueueOverspendReview(ctx context.Context, review OverspendReview) error
}

// Service orchestrates approval, disbursement and settlement. Every operation commits all of
// its writes in one transaction or none of them.
type Service struct {
	repo      Repository
	audit     shared.AuditRecorder
	overview  OverviewInvalidator
	metrics   MetricsPort
	overspend OverspendPort
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the workflow service. Every collaborator except repo may be nil.
func NewService(repo Repository, audit shared.AuditRecorder, overview OverviewInvalidator, metrics MetricsPort, overspend OverspendPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		audit:     audit,
		overview:  overview,
		metrics:   metrics,
		overspend: overspend,
		logger:    logger,
		now:       time.Now,
	}
}

// Approve approves a submitted or reviewed request.
func (s *Service) Approve(ctx context.Context, input ApproveInput) (requests.FundRequest, error) {
	out, err := s.approve(ctx, input)
	s.observe("approve", "", err)
	return out, err
}

func (s *Service) approve(ctx context.Context, input ApproveInput) (requests.FundRequest, error) {
	if input.ApproverID == uuid.Nil {
		return requests.FundRequest{}, fmt.Errorf("%w: approver id required", shared.ErrValidation)
	}
	var out requests.FundRequest
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		fr, err := tx.LockRequest(ctx, input.RequestID)
		if err != nil {
			return err
		}
		now := s.now()
		approved, err := requests.Approve(fr, input.ApproverID, input.Notes, now)
		if err != nil {
			return err
		}
		if err := tx.UpdateRequest(ctx, approved); err != nil {
			return err
		}
		if err := tx.RecordApproval(ctx, shared.ApprovalLog{
			Module: requests.ApprovalModule, RefID: fr.ID, ActorID: input.ApproverID,
			Action: shared.ApprovalApprove, Note: strings.TrimSpace(input.Notes), At: now,
		}); err != nil {
			return err
		}
		out = approved
		return nil
	})
	if err != nil {
		return requests.FundRequest{}, err
	}
	s.record(ctx, input.ApproverID, "fund_request.approve", out.ID, map[string]any{
		"request_number": out.RequestNumber,
		"amount":         out.Amount.String(),
	})
	return out, nil
}

// Reject rejects a submitted or reviewed request. A reason is mandatory.
func (s *Service) Reject(ctx context.Context, input RejectInput) (requests.FundRequest, error) {
	out, err := s.reject(ctx, input)
	s.observe("reject", "", err)
	return out, err
}

func (s *Service) reject(ctx context.Context, input RejectInput) (requests.FundRequest, error) {
	input.Reason = strings.TrimSpace(input.Reason)
	switch {
	case input.ApproverID == uuid.Nil:
		return requests.FundRequest{}, fmt.Errorf("%w: approver id required", shared.ErrValidation)
	case input.Reason == "":
		return requests.FundRequest{}, fmt.Errorf("%w: rejection reason required", shared.ErrValidation)
	}
	var out requests.FundRequest
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		fr, err := tx.LockRequest(ctx, input.RequestID)
		if err != nil {
			return err
		}
		now := s.now()
		rejected, err := requests.Reject(fr, input.ApproverID, input.Reason, now)
		if err != nil {
			return err
		}
		if err := tx.UpdateRequest(ctx, rejected); err != nil {
			return err
		}
		if err := tx.RecordApproval(ctx, shared.ApprovalLog{
			Module: requests.ApprovalModule, RefID: fr.ID, ActorID: input.ApproverID,
			Action: shared.ApprovalReject, Note: input.Reason, At: now,
		}); err != nil {
			return err
		}
		out = rejected
		return nil
	})
	if err != nil {
		return requests.FundRequest{}, err
	}
	s.record(ctx, input.ApproverID, "fund_request.reject", out.ID, map[string]any{
		"request_number": out.RequestNumber,
		"reason":         out.RejectionReason,
	})
	return out, nil
}

// Disbursements lists disbursements, optionally for one request.
func (s *Service) Disbursements(ctx context.Context, requestID uuid.UUID) ([]Disbursement, error) {
	return s.repo.ListDisbursements(ctx, requestID)
}

// Settlements lists settlements, optionally for one request.
func (s *Service) Settlements(ctx context.Context, requestID uuid.UUID) ([]Settlement, error) {
	return s.repo.ListSettlements(ctx, requestID)
}

func (s *Service) observe(operation, outcome string, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveWorkflow(operation, outcome, err)
}

func (s *Service) ledgerMoved(direction string, amount float64) {
	if s.metrics == nil {
		return
	}
	s.metrics.AddLedgerAmount(direction, amount)
}

func (s *Service) invalidate(ctx context.Context) {
	if s.overview == nil {
		return
	}
	s.overview.InvalidateOverview(ctx)
}

func (s *Service) record(ctx context.Context, actor uuid.UUID, action string, requestID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor,
		Action:   action,
		Entity:   "fund_request",
		EntityID: requestID.String(),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit workflow", slog.String("action", action), slog.Any("error", err))
	}
}

var _ MetricsPort = (*observability.Metrics)(nil)
