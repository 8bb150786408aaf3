package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/treasury-erp/treasury-erp/internal/budget"
	"github.com/treasury-erp/treasury-erp/internal/observability"
	"github.com/treasury-erp/treasury-erp/internal/requests"
	"github.com/treasury-erp/treasury-erp/internal/shared"
)

// Disburse pays out an approved request against the department's approved budget for the
// request's quarter. When the remaining amount cannot cover the request, the request is
// rejected instead and AutoRejected is returned with a nil error.
func (s *Service) Disburse(ctx context.Context, input DisburseInput) (DisburseOutcome, error) {
	outcome, err := s.disburse(ctx, input)
	label := ""
	if _, ok := outcome.(AutoRejected); ok {
		label = observability.OutcomeAutoRejected
	}
	s.observe("disburse", label, err)
	return outcome, err
}

func (s *Service) disburse(ctx context.Context, input DisburseInput) (DisburseOutcome, error) {
	input.TransactionReference = strings.TrimSpace(input.TransactionReference)
	switch {
	case input.DisburserID == uuid.Nil:
		return nil, fmt.Errorf("%w: disburser id required", shared.ErrValidation)
	case input.TransactionReference == "":
		return nil, fmt.Errorf("%w: transaction reference required", shared.ErrValidation)
	}

	var outcome DisburseOutcome
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		fr, err := tx.LockRequest(ctx, input.RequestID)
		if err != nil {
			return err
		}
		if fr.Status != requests.StatusApproved {
			return &requests.TransitionError{From: fr.Status, To: requests.StatusDisbursed}
		}
		b, err := tx.LockActiveBudget(ctx, fr.Department, fr.Period())
		if err != nil {
			return err
		}
		now := s.now()

		if !budget.Covers(b, fr.Amount) {
			rejected, err := requests.AutoReject(fr, requests.InsufficientBudgetReason, now)
			if err != nil {
				return err
			}
			if err := tx.UpdateRequest(ctx, rejected); err != nil {
				return err
			}
			if err := tx.RecordApproval(ctx, shared.ApprovalLog{
				Module: requests.ApprovalModule, RefID: fr.ID, ActorID: input.DisburserID,
				Action: shared.ApprovalReject, Note: requests.InsufficientBudgetReason, At: now,
			}); err != nil {
				return err
			}
			outcome = AutoRejected{Request: rejected, Budget: b, Shortfall: fr.Amount.Sub(b.Remaining())}
			return nil
		}

		debited, err := budget.Debit(b, fr.Amount)
		if err != nil {
			return err
		}
		debited.UpdatedAt = now
		disbursed, err := requests.MarkDisbursed(fr, now)
		if err != nil {
			return err
		}
		d := Disbursement{
			ID:                   uuid.New(),
			RequestID:            fr.ID,
			Amount:               fr.Amount,
			DisbursedBy:          input.DisburserID,
			TransactionReference: input.TransactionReference,
			Notes:                strings.TrimSpace(input.Notes),
			DisbursedAt:          now,
			Status:               DisbursementPending,
		}
		if err := tx.InsertDisbursement(ctx, d); err != nil {
			return err
		}
		if err := tx.UpdateRequest(ctx, disbursed); err != nil {
			return err
		}
		if err := tx.UpdateBudgetRemaining(ctx, debited); err != nil {
			return err
		}
		outcome = Disbursed{Request: disbursed, Disbursement: d, Budget: debited}
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch o := outcome.(type) {
	case Disbursed:
		s.record(ctx, input.DisburserID, "fund_request.disburse", o.Request.ID, map[string]any{
			"request_number":        o.Request.RequestNumber,
			"disbursement_id":       o.Disbursement.ID.String(),
			"amount":                o.Disbursement.Amount.String(),
			"transaction_reference": o.Disbursement.TransactionReference,
			"remaining":             o.Budget.Remaining().String(),
		})
		s.ledgerMoved("debit", o.Disbursement.Amount.InexactFloat64())
		s.invalidate(ctx)
	case AutoRejected:
		s.logger.Info("disbursement auto-rejected",
			slog.String("request_id", o.Request.ID.String()),
			slog.String("shortfall", o.Shortfall.String()))
		s.record(ctx, input.DisburserID, "fund_request.auto_reject", o.Request.ID, map[string]any{
			"request_number": o.Request.RequestNumber,
			"reason":         o.Request.RejectionReason,
			"shortfall":      o.Shortfall.String(),
		})
	}
	return outcome, nil
}
