package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/pkg/util"
)

// BulkAction enumerates the operations a bulk request may apply.
type BulkAction string

const (
	BulkApprove BulkAction = "approve"
	BulkReject  BulkAction = "reject"
	BulkSend    BulkAction = "send"
)

// BulkFailure records why a single ticket in a batch failed.
type BulkFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// BulkResult reports the per-ticket outcome of a batch. A batch never fails
// as a whole; every id gets an independent verdict.
type BulkResult struct {
	Succeeded []string      `json:"succeeded"`
	Failed    []BulkFailure `json:"failed"`
}

// BulkService applies an action across many tickets, one exclusive section
// per ticket. There is no batch-wide lock, so overlapping batches interleave
// safely and each contested transition succeeds exactly once.
type BulkService struct {
	lifecycle *LifecycleService
	logger    *zap.Logger
}

// NewBulkService constructs the bulk service.
func NewBulkService(lifecycle *LifecycleService, logger *zap.Logger) *BulkService {
	return &BulkService{lifecycle: lifecycle, logger: logger}
}

// Apply runs action against each ticket id in order. Failures are collected,
// never propagated, so one bad id cannot poison the rest of the batch.
func (s *BulkService) Apply(ctx context.Context, ids []string, action BulkAction, actor string) (*BulkResult, error) {
	switch action {
	case BulkApprove, BulkReject, BulkSend:
	default:
		return nil, util.NewValidationError(fmt.Sprintf("unknown bulk action %q", action), nil)
	}
	if len(ids) == 0 {
		return nil, util.NewValidationError("no ticket ids given", nil)
	}
	if (action == BulkApprove || action == BulkReject) && actor == "" {
		return nil, util.NewValidationError("approver is required for approve/reject", nil)
	}

	result := &BulkResult{Succeeded: []string{}, Failed: []BulkFailure{}}
	for _, id := range ids {
		var err error
		switch action {
		case BulkApprove:
			_, err = s.lifecycle.Approve(ctx, id, actor)
		case BulkReject:
			_, err = s.lifecycle.Reject(ctx, id, actor)
		case BulkSend:
			_, err = s.lifecycle.Send(ctx, id)
		}
		if err != nil {
			result.Failed = append(result.Failed, BulkFailure{ID: id, Reason: err.Error()})
			s.logger.Debug("bulk action failed for ticket",
				zap.String("ticket_id", id),
				zap.String("action", string(action)),
				zap.Error(err))
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}
	return result, nil
}
