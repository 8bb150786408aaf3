package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treasury-erp/treasury-erp/internal/budget"
	"github.com/treasury-erp/treasury-erp/internal/observability"
	"github.com/treasury-erp/treasury-erp/internal/requests"
	"github.com/treasury-erp/treasury-erp/internal/shared"
)

var clock = time.Date(2025, time.February, 10, 9, 30, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeOverview struct {
	bumps int
}

func (f *fakeOverview) InvalidateOverview(ctx context.Context) { f.bumps++ }

type fakeOverspend struct {
	reviews []OverspendReview
	err     error
}

func (f *fakeOverspend) EnqueueOverspendReview(ctx context.Context, review OverspendReview) error {
	f.reviews = append(f.reviews, review)
	return f.err
}

type fakeAudit struct {
	actions []string
}

func (f *fakeAudit) Record(ctx context.Context, log shared.AuditLog) error {
	f.actions = append(f.actions, log.Action)
	return nil
}

type fixture struct {
	svc       *Service
	repo      *memoryRepo
	overview  *fakeOverview
	overspend *fakeOverspend
	audit     *fakeAudit
	metrics   *observability.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:      newMemoryRepo(),
		overview:  &fakeOverview{},
		overspend: &fakeOverspend{},
		audit:     &fakeAudit{},
		metrics:   observability.NewMetrics(),
	}
	f.svc = NewService(f.repo, f.audit, f.overview, f.metrics, f.overspend, nil)
	f.svc.now = func() time.Time { return clock }
	return f
}

func (f *fixture) seedBudget(dept string, remaining string) budget.Budget {
	b := budget.Budget{
		ID:              uuid.New(),
		Department:      dept,
		AllocatedAmount: dec("10000"),
		FiscalYear:      2025,
		FiscalQuarter:   1,
		Comment:         "Q1 operating budget",
		Status:          budget.StatusApproved,
		RemainingAmount: decimal.NewNullDecimal(dec(remaining)),
	}
	f.repo.budgets[b.ID] = b
	return b
}

func (f *fixture) seedRequest(dept, amount string, status requests.Status) requests.FundRequest {
	fr := requests.FundRequest{
		ID:            uuid.New(),
		RequestNumber: "REQ-2025-001",
		Department:    dept,
		RequesterID:   uuid.New(),
		Amount:        dec(amount),
		Purpose:       "Equipment",
		Priority:      requests.PriorityMedium,
		FiscalYear:    2025,
		FiscalQuarter: 1,
		Status:        status,
	}
	f.repo.requests[fr.ID] = fr
	return fr
}

func (f *fixture) disburse(t *testing.T, id uuid.UUID) DisburseOutcome {
	t.Helper()
	outcome, err := f.svc.Disburse(context.Background(), DisburseInput{
		RequestID:            id,
		DisburserID:          uuid.New(),
		TransactionReference: "TRX-1",
	})
	require.NoError(t, err)
	return outcome
}

func settleInput(requestID uuid.UUID, used string) SettleInput {
	return SettleInput{
		RequestID:  requestID,
		SettlerID:  uuid.New(),
		AmountUsed: decimal.NewNullDecimal(dec(used)),
		Comment:    "Receipts attached",
	}
}

func TestDisburseDebitsBudget(t *testing.T) {
	f := newFixture(t)
	b := f.seedBudget("A", "10000")
	fr := f.seedRequest("A", "4000", requests.StatusApproved)

	outcome := f.disburse(t, fr.ID)

	disbursed, ok := outcome.(Disbursed)
	require.True(t, ok, "expected Disbursed, got %T", outcome)
	require.Equal(t, "4000", disbursed.Disbursement.Amount.String())
	require.Equal(t, DisbursementPending, disbursed.Disbursement.Status)
	require.Equal(t, requests.StatusDisbursed, f.repo.requests[fr.ID].Status)
	require.Equal(t, "6000", f.repo.budgets[b.ID].Remaining().String())
	require.True(t, f.repo.budgets[b.ID].AllocatedAmount.Equal(dec("10000")))
	require.Len(t, f.repo.disbursements, 1)
	require.Equal(t, 1, f.overview.bumps)
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.WorkflowCounter("disburse", observability.OutcomeSuccess)))
}

func TestSettleReturnsUnusedFunds(t *testing.T) {
	f := newFixture(t)
	b := f.seedBudget("A", "10000")
	fr := f.seedRequest("A", "4000", requests.StatusApproved)
	f.disburse(t, fr.ID)

	res, err := f.svc.Settle(context.Background(), settleInput(fr.ID, "3500"))
	require.NoError(t, err)

	require.Equal(t, "10000", res.Settlement.InitialBudget.String())
	require.Equal(t, "6500", res.Settlement.RemainingBalance.String())
	require.Equal(t, SettlementCompleted, res.Settlement.Status)
	require.Equal(t, requests.StatusSettled, f.repo.requests[fr.ID].Status)
	require.Equal(t, "6500", f.repo.budgets[b.ID].Remaining().String())
	require.Equal(t, DisbursementCompleted, f.repo.disbursements[res.Disbursement.ID].Status)
	require.Empty(t, f.overspend.reviews)
	require.Equal(t, 2, f.overview.bumps)
}

func TestSettleBalanceIdentity(t *testing.T) {
	cases := []struct {
		name      string
		remaining string
		amount    string
		used      string
	}{
		{"underspend", "10000", "4000", "3500"},
		{"exact", "10000", "4000", "4000"},
		{"nothing used", "10000", "4000", "0"},
		{"overspend", "10000", "4000", "4750.25"},
		{"fractional", "999.99", "333.33", "333.34"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			b := f.seedBudget("A", tc.remaining)
			fr := f.seedRequest("A", tc.amount, requests.StatusApproved)
			f.disburse(t, fr.ID)
			pre := f.repo.budgets[b.ID].Remaining()

			res, err := f.svc.Settle(context.Background(), settleInput(fr.ID, tc.used))
			require.NoError(t, err)

			want := pre.Add(dec(tc.amount).Sub(dec(tc.used)))
			assert.True(t, want.Equal(res.Settlement.RemainingBalance), "want %s got %s", want, res.Settlement.RemainingBalance)
			assert.True(t, want.Equal(f.repo.budgets[b.ID].Remaining()))
			assert.False(t, f.repo.budgets[b.ID].Remaining().IsNegative())
		})
	}
}

func TestDisburseAutoRejectsWhenBudgetShort(t *testing.T) {
	f := newFixture(t)
	b := f.seedBudget("A", "1000")
	fr := f.seedRequest("A", "5000", requests.StatusApproved)

	outcome := f.disburse(t, fr.ID)

	rejected, ok := outcome.(AutoRejected)
	require.True(t, ok, "expected AutoRejected, got %T", outcome)
	require.Equal(t, "4000", rejected.Shortfall.String())
	stored := f.repo.requests[fr.ID]
	require.Equal(t, requests.StatusRejected, stored.Status)
	require.Equal(t, "Insufficient budget for disbursement", stored.RejectionReason)
	require.Empty(t, f.repo.disbursements)
	require.Equal(t, "1000", f.repo.budgets[b.ID].Remaining().String())
	require.Zero(t, f.overview.bumps)
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.WorkflowCounter("disburse", observability.OutcomeAutoRejected)))
}

func TestDisburseFromDraftHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	b := f.seedBudget("A", "10000")
	fr := f.seedRequest("A", "4000", requests.StatusDraft)

	_, err := f.svc.Disburse(context.Background(), DisburseInput{RequestID: fr.ID, DisburserID: uuid.New(), TransactionReference: "TRX-1"})

	require.ErrorIs(t, err, shared.ErrInvalidState)
	var terr *requests.TransitionError
	require.True(t, errors.As(err, &terr))
	require.Equal(t, requests.StatusDraft, terr.From)
	require.Equal(t, requests.StatusDraft, f.repo.requests[fr.ID].Status)
	require.Empty(t, f.repo.disbursements)
	require.Equal(t, "10000", f.repo.budgets[b.ID].Remaining().String())
	require.Empty(t, f.audit.actions)
}

func TestSettleTwiceFails(t *testing.T) {
	f := newFixture(t)
	f.seedBudget("A", "10000")
	fr := f.seedRequest("A", "4000", requests.StatusApproved)
	disbursed := f.disburse(t, fr.ID).(Disbursed)

	_, err := f.svc.Settle(context.Background(), SettleInput{
		DisbursementID: disbursed.Disbursement.ID,
		SettlerID:      uuid.New(),
		AmountUsed:     decimal.NewNullDecimal(dec("3500")),
		Comment:        "first",
	})
	require.NoError(t, err)

	_, err = f.svc.Settle(context.Background(), SettleInput{
		DisbursementID: disbursed.Disbursement.ID,
		SettlerID:      uuid.New(),
		AmountUsed:     decimal.NewNullDecimal(dec("100")),
		Comment:        "second",
	})
	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.Len(t, f.repo.settlements, 1)
}

func TestSettleFailureRollsBackEveryWrite(t *testing.T) {
	f := newFixture(t)
	b := f.seedBudget("A", "10000")
	fr := f.seedRequest("A", "4000", requests.StatusApproved)
	f.disburse(t, fr.ID)
	bumps := f.overview.bumps
	f.repo.failOn["UpdateBudgetRemaining"] = errors.New("connection reset")

	_, err := f.svc.Settle(context.Background(), settleInput(fr.ID, "3500"))

	require.Error(t, err)
	require.Empty(t, f.repo.settlements)
	require.Equal(t, requests.StatusDisbursed, f.repo.requests[fr.ID].Status)
	for _, d := range f.repo.disbursements {
		require.Equal(t, DisbursementPending, d.Status)
	}
	require.Equal(t, "6000", f.repo.budgets[b.ID].Remaining().String())
	require.Equal(t, bumps, f.overview.bumps)
}

func TestDisburseFailureRollsBackEveryWrite(t *testing.T) {
	f := newFixture(t)
	b := f.seedBudget("A", "10000")
	fr := f.seedRequest("A", "4000", requests.StatusApproved)
	f.repo.failOn["UpdateBudgetRemaining"] = errors.New("connection reset")

	_, err := f.svc.Disburse(context.Background(), DisburseInput{RequestID: fr.ID, DisburserID: uuid.New(), TransactionReference: "TRX-1"})

	require.Error(t, err)
	require.Empty(t, f.repo.disbursements)
	require.Equal(t, requests.StatusApproved, f.repo.requests[fr.ID].Status)
	require.Equal(t, "10000", f.repo.budgets[b.ID].Remaining().String())
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.WorkflowCounter("disburse", observability.OutcomeError)))
}

func TestSettleOverspendBeyondBudgetIsOverdrawn(t *testing.T) {
	f := newFixture(t)
	b := f.seedBudget("A", "4000")
	fr := f.seedRequest("A", "4000", requests.StatusApproved)
	f.disburse(t, fr.ID)

	_, err := f.svc.Settle(context.Background(), settleInput(fr.ID, "4500"))

	require.ErrorIs(t, err, budget.ErrOverdrawn)
	require.ErrorIs(t, err, shared.ErrUnprocessable)
	require.Empty(t, f.repo.settlements)
	require.Equal(t, "0", f.repo.budgets[b.ID].Remaining().String())
	require.Equal(t, requests.StatusDisbursed, f.repo.requests[fr.ID].Status)
}

func TestSettleOverspendQueuesReview(t *testing.T) {
	f := newFixture(t)
	f.seedBudget("A", "10000")
	fr := f.seedRequest("A", "4000", requests.StatusApproved)
	f.disburse(t, fr.ID)
	f.overspend.err = errors.New("redis down")

	res, err := f.svc.Settle(context.Background(), settleInput(fr.ID, "4250"))

	require.NoError(t, err)
	require.Len(t, f.overspend.reviews, 1)
	review := f.overspend.reviews[0]
	require.Equal(t, res.Settlement.ID, review.SettlementID)
	require.Equal(t, "250", review.Overspend.String())
	require.Equal(t, "5750", res.Settlement.RemainingBalance.String())
}

func TestDisburseWithoutApprovedBudget(t *testing.T) {
	f := newFixture(t)
	f.seedBudget("B", "10000")
	fr := f.seedRequest("A", "4000", requests.StatusApproved)

	_, err := f.svc.Disburse(context.Background(), DisburseInput{RequestID: fr.ID, DisburserID: uuid.New(), TransactionReference: "TRX-1"})

	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Equal(t, requests.StatusApproved, f.repo.requests[fr.ID].Status)
}

func TestDisburseValidation(t *testing.T) {
	f := newFixture(t)
	fr := f.seedRequest("A", "4000", requests.StatusApproved)
	ctx := context.Background()

	_, err := f.svc.Disburse(ctx, DisburseInput{RequestID: fr.ID, TransactionReference: "TRX"})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.svc.Disburse(ctx, DisburseInput{RequestID: fr.ID, DisburserID: uuid.New(), TransactionReference: "  "})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = f.svc.Disburse(ctx, DisburseInput{RequestID: uuid.New(), DisburserID: uuid.New(), TransactionReference: "TRX"})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSettleValidation(t *testing.T) {
	f := newFixture(t)
	fr := f.seedRequest("A", "4000", requests.StatusDisbursed)
	ctx := context.Background()

	cases := map[string]SettleInput{
		"no target":      {SettlerID: uuid.New(), AmountUsed: decimal.NewNullDecimal(dec("1")), Comment: "c"},
		"no settler":     {RequestID: fr.ID, AmountUsed: decimal.NewNullDecimal(dec("1")), Comment: "c"},
		"missing amount": {RequestID: fr.ID, SettlerID: uuid.New(), Comment: "c"},
		"negative":       {RequestID: fr.ID, SettlerID: uuid.New(), AmountUsed: decimal.NewNullDecimal(dec("-1")), Comment: "c"},
		"no comment":     {RequestID: fr.ID, SettlerID: uuid.New(), AmountUsed: decimal.NewNullDecimal(dec("1")), Comment: " "},
		"sub-cent":       {RequestID: fr.ID, SettlerID: uuid.New(), AmountUsed: decimal.NewNullDecimal(dec("3500.005")), Comment: "c"},
	}
	for name, in := range cases {
		_, err := f.svc.Settle(ctx, in)
		require.ErrorIs(t, err, shared.ErrValidation, name)
	}
}

func TestSettleRejectsForeignDisbursement(t *testing.T) {
	f := newFixture(t)
	f.seedBudget("A", "10000")
	first := f.seedRequest("A", "1000", requests.StatusApproved)
	second := f.seedRequest("A", "2000", requests.StatusApproved)
	f.disburse(t, first.ID)
	other := f.disburse(t, second.ID).(Disbursed)

	in := settleInput(first.ID, "500")
	in.DisbursementID = other.Disbursement.ID
	_, err := f.svc.Settle(context.Background(), in)

	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, f.repo.settlements)
}

func TestApproveAndReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	approver := uuid.New()
	submitted := f.seedRequest("A", "4000", requests.StatusSubmitted)
	submitted.Notes = "Quote attached"
	f.repo.requests[submitted.ID] = submitted
	reviewed := f.seedRequest("A", "900", requests.StatusUnderReview)

	out, err := f.svc.Approve(ctx, ApproveInput{RequestID: submitted.ID, ApproverID: approver, Notes: "Approved for Q1"})
	require.NoError(t, err)
	require.Equal(t, requests.StatusApproved, out.Status)
	require.Equal(t, "Quote attached\nApproved for Q1", out.Notes)
	require.Equal(t, approver, *out.ApproverID)
	require.Equal(t, clock, *out.ApprovedAt)

	_, err = f.svc.Approve(ctx, ApproveInput{RequestID: submitted.ID, ApproverID: approver})
	require.ErrorIs(t, err, shared.ErrInvalidState)

	_, err = f.svc.Reject(ctx, RejectInput{RequestID: reviewed.ID, ApproverID: approver, Reason: " "})
	require.ErrorIs(t, err, shared.ErrValidation)
	out, err = f.svc.Reject(ctx, RejectInput{RequestID: reviewed.ID, ApproverID: approver, Reason: "Out of scope"})
	require.NoError(t, err)
	require.Equal(t, requests.StatusRejected, out.Status)
	require.Equal(t, "Out of scope", out.RejectionReason)

	_, err = f.svc.Reject(ctx, RejectInput{RequestID: submitted.ID, ApproverID: approver, Reason: "late"})
	require.ErrorIs(t, err, shared.ErrInvalidState)

	require.Len(t, f.repo.approvals, 2)
	require.Equal(t, shared.ApprovalApprove, f.repo.approvals[0].Action)
	require.Equal(t, shared.ApprovalReject, f.repo.approvals[1].Action)
	require.Equal(t, []string{"fund_request.approve", "fund_request.reject"}, f.audit.actions)
}

func TestDisbursedRequestIsDisbursedOnce(t *testing.T) {
	f := newFixture(t)
	b := f.seedBudget("A", "10000")
	fr := f.seedRequest("A", "4000", requests.StatusApproved)
	f.disburse(t, fr.ID)

	_, err := f.svc.Disburse(context.Background(), DisburseInput{RequestID: fr.ID, DisburserID: uuid.New(), TransactionReference: "TRX-2"})

	require.ErrorIs(t, err, shared.ErrInvalidState)
	require.Len(t, f.repo.disbursements, 1)
	require.Equal(t, "6000", f.repo.budgets[b.ID].Remaining().String())
}

func TestSettleSubCentAmountLeavesLedgerUntouched(t *testing.T) {
	f := newFixture(t)
	b := f.seedBudget("A", "10000")
	fr := f.seedRequest("A", "4000", requests.StatusApproved)
	f.disburse(t, fr.ID)

	_, err := f.svc.Settle(context.Background(), settleInput(fr.ID, "3500.005"))
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Empty(t, f.repo.settlements)
	require.Equal(t, requests.StatusDisbursed, f.repo.requests[fr.ID].Status)
	require.Equal(t, "6000", f.repo.budgets[b.ID].Remaining().String())

	res, err := f.svc.Settle(context.Background(), settleInput(fr.ID, "3500.01"))
	require.NoError(t, err)
	require.Equal(t, "6499.99", res.Settlement.RemainingBalance.String())
	require.True(t, res.Settlement.RemainingBalance.Equal(res.Settlement.RemainingBalance.Round(shared.MoneyScale)))
}
