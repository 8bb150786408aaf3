package requests

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/treasury-erp/treasury-erp/internal/shared"
)

// InsufficientBudgetReason is recorded when disbursement finds the budget short.
const InsufficientBudgetReason = "Insufficient budget for disbursement"

var transitions = map[Status][]Status{
	StatusDraft:       {StatusSubmitted},
	StatusSubmitted:   {StatusUnderReview, StatusApproved, StatusRejected},
	StatusUnderReview: {StatusSubmitted, StatusApproved, StatusRejected},
	StatusApproved:    {StatusDisbursed, StatusRejected},
	StatusRejected:    {},
	StatusDisbursed:   {StatusSettled},
	StatusSettled:     {},
}

// TransitionError reports a disallowed status change. It matches shared.ErrInvalidState.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: request cannot move from %s to %s", shared.ErrInvalidState, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return shared.ErrInvalidState
}

// CanTransition reports whether the graph has an edge from -> to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanDelete reports whether the request may be removed.
func CanDelete(r FundRequest) bool {
	return r.Status == StatusDraft
}

// CanEdit reports whether draft fields such as amount may change.
func CanEdit(r FundRequest) bool {
	return r.Status == StatusDraft
}

func move(r FundRequest, to Status, now time.Time, from ...Status) (FundRequest, error) {
	allowed := false
	for _, f := range from {
		if r.Status == f {
			allowed = true
			break
		}
	}
	if !allowed || !CanTransition(r.Status, to) {
		return r, &TransitionError{From: r.Status, To: to}
	}
	r.Status = to
	r.UpdatedAt = now
	return r, nil
}

// Submit moves a draft into the review queue and stamps SubmittedAt.
func Submit(r FundRequest, now time.Time) (FundRequest, error) {
	out, err := move(r, StatusSubmitted, now, StatusDraft)
	if err != nil {
		return r, err
	}
	out.SubmittedAt = &now
	return out, nil
}

// StartReview marks a submitted request as under review.
func StartReview(r FundRequest, now time.Time) (FundRequest, error) {
	return move(r, StatusUnderReview, now, StatusSubmitted)
}

// ReturnToSubmitted sends a request under review back to the submitted queue.
func ReturnToSubmitted(r FundRequest, now time.Time) (FundRequest, error) {
	return move(r, StatusSubmitted, now, StatusUnderReview)
}

// Approve approves a submitted or reviewed request. Notes, when present, are appended to the
// existing notes on a new line.
func Approve(r FundRequest, approverID uuid.UUID, notes string, now time.Time) (FundRequest, error) {
	if approverID == uuid.Nil {
		return r, fmt.Errorf("%w: approver id required", shared.ErrValidation)
	}
	out, err := move(r, StatusApproved, now, StatusSubmitted, StatusUnderReview)
	if err != nil {
		return r, err
	}
	out.ApproverID = &approverID
	out.ApprovedAt = &now
	out.Notes = appendNote(out.Notes, notes)
	return out, nil
}

// Reject rejects a submitted or reviewed request with a mandatory reason.
func Reject(r FundRequest, approverID uuid.UUID, reason string, now time.Time) (FundRequest, error) {
	reason = strings.TrimSpace(reason)
	if approverID == uuid.Nil {
		return r, fmt.Errorf("%w: approver id required", shared.ErrValidation)
	}
	if reason == "" {
		return r, fmt.Errorf("%w: rejection reason required", shared.ErrValidation)
	}
	out, err := move(r, StatusRejected, now, StatusSubmitted, StatusUnderReview)
	if err != nil {
		return r, err
	}
	out.ApproverID = &approverID
	out.RejectionReason = reason
	return out, nil
}

// MarkDisbursed records that funds left the budget for an approved request.
func MarkDisbursed(r FundRequest, now time.Time) (FundRequest, error) {
	return move(r, StatusDisbursed, now, StatusApproved)
}

// AutoReject rejects an approved request at disbursement time.
func AutoReject(r FundRequest, reason string, now time.Time) (FundRequest, error) {
	out, err := move(r, StatusRejected, now, StatusApproved)
	if err != nil {
		return r, err
	}
	out.RejectionReason = reason
	return out, nil
}

// MarkSettled closes a disbursed request.
func MarkSettled(r FundRequest, now time.Time) (FundRequest, error) {
	return move(r, StatusSettled, now, StatusDisbursed)
}

func appendNote(existing, note string) string {
	note = strings.TrimSpace(note)
	switch {
	case note == "":
		return existing
	case existing == "":
		return note
	default:
		return existing + "\n" + note
	}
}
