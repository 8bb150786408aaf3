package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/treasury-erp/treasury-erp/internal/budget"
	"github.com/treasury-erp/treasury-erp/internal/requests"
	"github.com/treasury-erp/treasury-erp/internal/shared"
)

// Settle closes a disbursed request. The unused part of the disbursement flows back into the
// budget; an overspend is drawn from it and fails with budget.ErrOverdrawn when the budget
// cannot absorb it.
func (s *Service) Settle(ctx context.Context, input SettleInput) (SettleResult, error) {
	out, err := s.settle(ctx, input)
	s.observe("settle", "", err)
	return out, err
}

func (s *Service) settle(ctx context.Context, input SettleInput) (SettleResult, error) {
	input.Comment = strings.TrimSpace(input.Comment)
	switch {
	case input.RequestID == uuid.Nil && input.DisbursementID == uuid.Nil:
		return SettleResult{}, fmt.Errorf("%w: request or disbursement id required", shared.ErrValidation)
	case input.SettlerID == uuid.Nil:
		return SettleResult{}, fmt.Errorf("%w: settler id required", shared.ErrValidation)
	case !input.AmountUsed.Valid:
		return SettleResult{}, fmt.Errorf("%w: amount used required", shared.ErrValidation)
	case input.AmountUsed.Decimal.IsNegative():
		return SettleResult{}, fmt.Errorf("%w: amount used must not be negative", shared.ErrValidation)
	case input.Comment == "":
		return SettleResult{}, fmt.Errorf("%w: comment required", shared.ErrValidation)
	}
	if err := shared.CheckMoney("amount used", input.AmountUsed.Decimal); err != nil {
		return SettleResult{}, err
	}

	// Resolve the request first so locks are always taken request before disbursement.
	if input.RequestID == uuid.Nil {
		d, err := s.repo.GetDisbursement(ctx, input.DisbursementID)
		if err != nil {
			return SettleResult{}, err
		}
		input.RequestID = d.RequestID
	}

	var out SettleResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		fr, err := tx.LockRequest(ctx, input.RequestID)
		if err != nil {
			return err
		}
		if fr.Status != requests.StatusDisbursed {
			return &requests.TransitionError{From: fr.Status, To: requests.StatusSettled}
		}
		d, err := tx.LockDisbursementByRequest(ctx, fr.ID)
		if err != nil {
			return err
		}
		if input.DisbursementID != uuid.Nil && d.ID != input.DisbursementID {
			return fmt.Errorf("%w: disbursement %s does not belong to request %s", shared.ErrValidation, input.DisbursementID, fr.ID)
		}
		if d.Status != DisbursementPending {
			return fmt.Errorf("%w: disbursement already %s", shared.ErrInvalidState, d.Status)
		}
		b, err := tx.LockActiveBudget(ctx, fr.Department, fr.Period())
		if err != nil {
			return err
		}

		now := s.now()
		used := input.AmountUsed.Decimal
		initial := b.Remaining().Add(d.Amount)
		credited, err := budget.ApplyVariance(b, budget.Variance(d.Amount, used))
		if err != nil {
			return err
		}
		credited.UpdatedAt = now
		settled, err := requests.MarkSettled(fr, now)
		if err != nil {
			return err
		}
		st := Settlement{
			ID:               uuid.New(),
			DisbursementID:   d.ID,
			RequestID:        fr.ID,
			InitialBudget:    initial,
			AmountUsed:       used,
			RemainingBalance: credited.Remaining(),
			Comment:          input.Comment,
			Attachments:      input.Attachments,
			SettledBy:        input.SettlerID,
			SettledAt:        now,
			Status:           SettlementCompleted,
		}
		if st.Attachments == nil {
			st.Attachments = []string{}
		}
		if err := tx.InsertSettlement(ctx, st); err != nil {
			return err
		}
		if err := tx.UpdateRequest(ctx, settled); err != nil {
			return err
		}
		if err := tx.UpdateDisbursementStatus(ctx, d.ID, DisbursementCompleted); err != nil {
			return err
		}
		if err := tx.UpdateBudgetRemaining(ctx, credited); err != nil {
			return err
		}
		d.Status = DisbursementCompleted
		out = SettleResult{Request: settled, Disbursement: d, Settlement: st, Budget: credited}
		return nil
	})
	if err != nil {
		return SettleResult{}, err
	}

	s.record(ctx, input.SettlerID, "fund_request.settle", out.Request.ID, map[string]any{
		"request_number":    out.Request.RequestNumber,
		"settlement_id":     out.Settlement.ID.String(),
		"amount_used":       out.Settlement.AmountUsed.String(),
		"remaining_balance": out.Settlement.RemainingBalance.String(),
	})
	variance := budget.Variance(out.Disbursement.Amount, out.Settlement.AmountUsed)
	if variance.IsPositive() {
		s.ledgerMoved("credit", variance.InexactFloat64())
	} else if variance.IsNegative() {
		s.ledgerMoved("debit", variance.Neg().InexactFloat64())
	}
	s.invalidate(ctx)
	s.requestOverspendReview(ctx, out)
	return out, nil
}

func (s *Service) requestOverspendReview(ctx context.Context, res SettleResult) {
	over := res.Settlement.Overspend(res.Disbursement.Amount)
	if s.overspend == nil || !over.IsPositive() {
		return
	}
	err := s.overspend.EnqueueOverspendReview(ctx, OverspendReview{
		RequestID:      res.Request.ID,
		DisbursementID: res.Disbursement.ID,
		SettlementID:   res.Settlement.ID,
		Department:     res.Request.Department,
		Overspend:      over,
	})
	if err != nil {
		s.logger.Warn("enqueue overspend review",
			slog.String("settlement_id", res.Settlement.ID.String()),
			slog.Any("error", err))
	}
}
