package checklist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sebenza/internal/audit"
	"sebenza/internal/platform/metrics"
	id "sebenza/pkg/domain"
	dErrors "sebenza/pkg/domain-errors"
	"sebenza/pkg/platform/locks"
	"sebenza/pkg/platform/sentinel"
)

// Reason codes written to the audit trail by checklist operations.
const (
	ReasonChecklistInitialized = "CHECKLIST_INITIALIZED"
	ReasonItemCompleted        = "ITEM_COMPLETED"
	ReasonItemInvalidated      = "ITEM_INVALIDATED"
	ReasonConsentGranted       = "POPIA_CONSENT_GRANTED"
)

// AuditRecorder appends compliance entries. Fail-closed: an error here must
// fail the item mutation it is paired with.
type AuditRecorder interface {
	Create(ctx context.Context, entry audit.Entry) (id.EntryID, error)
}

// TxRunner wraps item mutations and their audit appends in one atomic unit.
// The postgres runner opens a sql.Tx and threads it through context; the
// default passthrough relies on service-level compensation under the
// per-candidate lock.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// NopTx runs the function directly.
type NopTx struct{}

func (NopTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Service is the checklist gate: it tracks the thirteen required compliance
// items per candidate and answers whether verification may proceed.
type Service struct {
	store   Store
	auditor AuditRecorder
	tx      TxRunner
	locks   *locks.Keyed
	cache   *StatusCache
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithStatusCache attaches an optional redis-backed status cache.
func WithStatusCache(cache *StatusCache) Option {
	return func(s *Service) { s.cache = cache }
}

func WithTxRunner(tx TxRunner) Option {
	return func(s *Service) { s.tx = tx }
}

func NewService(store Store, auditor AuditRecorder, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("checklist store is required")
	}
	if auditor == nil {
		return nil, errors.New("audit recorder is required")
	}
	svc := &Service{
		store:   store,
		auditor: auditor,
		tx:      NopTx{},
		locks:   locks.NewKeyed(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// WithCandidateLock runs fn while holding the candidate's checklist lock. The
// state machine takes it before reading the verification gate so no item can
// change between the gate read and the resulting state write.
func (s *Service) WithCandidateLock(candidateID id.CandidateID, fn func() error) error {
	return s.locks.WithLock(candidateID.String(), fn)
}

// Initialize creates all thirteen items pending and uncompleted. A second
// call for the same candidate returns CodeConflict.
func (s *Service) Initialize(ctx context.Context, candidateID id.CandidateID, actor, actorRole string) ([]Item, error) {
	if candidateID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "candidate id cannot be empty")
	}

	items := make([]Item, 0, len(allItemTypes))
	for _, t := range allItemTypes {
		items = append(items, Item{
			ID:               id.NewItemID(),
			CandidateID:      candidateID,
			Type:             t,
			Completed:        false,
			ValidationStatus: StatusPending,
		})
	}

	err := s.locks.WithLock(candidateID.String(), func() error {
		existing, err := s.store.ListByCandidate(ctx, candidateID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load checklist")
		}
		if len(existing) > 0 {
			return dErrors.Newf(dErrors.CodeConflict, "checklist for candidate %s already initialized", candidateID)
		}
		return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
			if err := s.store.SaveAll(txCtx, items); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "save checklist items")
			}
			for _, item := range items {
				entry := audit.Entry{
					EntityType: audit.EntityChecklistItem,
					EntityID:   item.ID.String(),
					Action:     audit.ActionCreated,
					Actor:      actor,
					ActorRole:  actorRole,
					ReasonCode: ReasonChecklistInitialized,
				}
				if _, err := s.auditor.Create(txCtx, entry); err != nil {
					// No item may outlive a failed trail write: remove the
					// batch so a retry starts clean. Inside a real transaction
					// the rollback makes this a no-op.
					if delErr := s.store.DeleteByCandidate(txCtx, candidateID); delErr != nil && s.logger != nil {
						s.logger.ErrorContext(ctx, "checklist rollback failed after audit error",
							"candidate_id", candidateID,
							"error", delErr,
						)
					}
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "checklist initialised",
			"candidate_id", candidateID,
			"items", len(items),
		)
	}
	return items, nil
}

// CompleteItem marks an item completed and valid. Idempotent: completing an
// already-completed item is a no-op with no second audit entry and an
// unchanged completedAt.
//
// POPIA_CONSENT is refused here; consent is only ever recorded through
// RecordConsent so it can never be inferred from a generic completion.
func (s *Service) CompleteItem(ctx context.Context, candidateID id.CandidateID, itemType ItemType, actor, actorRole, notes string) (Item, error) {
	if itemType == ItemPOPIAConsent {
		return Item{}, dErrors.New(dErrors.CodeInvalidInput,
			"POPIA consent requires an explicit consent event; use RecordConsent")
	}
	return s.complete(ctx, candidateID, itemType, actor, actorRole, notes, ReasonItemCompleted)
}

// RecordConsent completes the POPIA_CONSENT item from an explicit consent
// event. This is the only path that can mark consent valid.
func (s *Service) RecordConsent(ctx context.Context, candidateID id.CandidateID, actor, actorRole, notes string) (Item, error) {
	return s.complete(ctx, candidateID, ItemPOPIAConsent, actor, actorRole, notes, ReasonConsentGranted)
}

func (s *Service) complete(ctx context.Context, candidateID id.CandidateID, itemType ItemType, actor, actorRole, notes, reasonCode string) (Item, error) {
	if !itemType.IsValid() {
		return Item{}, dErrors.Newf(dErrors.CodeInvalidInput, "unknown checklist item type %q", itemType)
	}

	var result Item
	err := s.locks.WithLock(candidateID.String(), func() error {
		item, err := s.store.Get(ctx, candidateID, itemType)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotFound, "checklist item %s not found for candidate %s", itemType, candidateID)
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load checklist item")
		}

		if item.IsSatisfied() {
			result = item
			return nil
		}

		previous := item
		now := time.Now().UTC()
		item.Completed = true
		item.ValidationStatus = StatusValid
		item.CompletedAt = &now
		item.CompletedBy = actor
		if notes != "" {
			item.ValidationNotes = notes
		}

		if err := s.store.Update(ctx, item); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "update checklist item")
		}

		entry := audit.Entry{
			EntityType:        audit.EntityChecklistItem,
			EntityID:          item.ID.String(),
			Action:            audit.ActionUpdated,
			Actor:             actor,
			ActorRole:         actorRole,
			ReasonCode:        reasonCode,
			ReasonDescription: notes,
		}
		if _, err := s.auditor.Create(ctx, entry); err != nil {
			// Audit writes are fail-closed: revert the item so no completion
			// exists without its trail entry.
			if restoreErr := s.store.Update(ctx, previous); restoreErr != nil && s.logger != nil {
				s.logger.ErrorContext(ctx, "checklist rollback failed after audit error",
					"candidate_id", candidateID,
					"item_type", itemType,
					"error", restoreErr,
				)
			}
			return err
		}

		if s.metrics != nil {
			s.metrics.ChecklistCompletions.Inc()
		}
		result = item
		return nil
	})
	if err != nil {
		return Item{}, err
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, candidateID)
	}
	return result, nil
}

// InvalidateItem marks an item incomplete and invalid. Unlike completion this
// always writes an audit entry, repeat calls included: every invalidation is
// compliance-relevant.
func (s *Service) InvalidateItem(ctx context.Context, candidateID id.CandidateID, itemType ItemType, actor, actorRole, reason string) (Item, error) {
	if !itemType.IsValid() {
		return Item{}, dErrors.Newf(dErrors.CodeInvalidInput, "unknown checklist item type %q", itemType)
	}
	if reason == "" {
		return Item{}, dErrors.New(dErrors.CodeInvalidInput, "invalidation reason cannot be empty")
	}

	var result Item
	err := s.locks.WithLock(candidateID.String(), func() error {
		item, err := s.store.Get(ctx, candidateID, itemType)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeNotFound, "checklist item %s not found for candidate %s", itemType, candidateID)
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load checklist item")
		}

		previous := item
		item.Completed = false
		item.ValidationStatus = StatusInvalid
		item.CompletedAt = nil
		item.CompletedBy = ""
		item.ValidationNotes = reason

		if err := s.store.Update(ctx, item); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "update checklist item")
		}

		entry := audit.Entry{
			EntityType:        audit.EntityChecklistItem,
			EntityID:          item.ID.String(),
			Action:            audit.ActionRejection,
			Actor:             actor,
			ActorRole:         actorRole,
			ReasonCode:        ReasonItemInvalidated,
			ReasonDescription: reason,
		}
		if _, err := s.auditor.Create(ctx, entry); err != nil {
			if restoreErr := s.store.Update(ctx, previous); restoreErr != nil && s.logger != nil {
				s.logger.ErrorContext(ctx, "checklist rollback failed after audit error",
					"candidate_id", candidateID,
					"item_type", itemType,
					"error", restoreErr,
				)
			}
			return err
		}

		if s.metrics != nil {
			s.metrics.ChecklistInvalidation.Inc()
		}
		result = item
		return nil
	})
	if err != nil {
		return Item{}, err
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, candidateID)
	}
	return result, nil
}

// Status summarizes a candidate's checklist progress.
//
// Errors: CodeNotFound when the checklist was never initialised.
func (s *Service) Status(ctx context.Context, candidateID id.CandidateID) (Status, error) {
	if s.cache != nil {
		if status, ok := s.cache.Get(ctx, candidateID); ok {
			return status, nil
		}
	}

	items, err := s.store.ListByCandidate(ctx, candidateID)
	if err != nil {
		return Status{}, dErrors.Wrap(err, dErrors.CodeInternal, "list checklist items")
	}
	if len(items) == 0 {
		return Status{}, dErrors.Newf(dErrors.CodeNotFound, "no checklist for candidate %s", candidateID)
	}

	status := Status{Total: len(items), MissingItems: []ItemType{}}
	for _, item := range items {
		switch {
		case item.IsSatisfied():
			status.Completed++
		case item.ValidationStatus == StatusInvalid:
			status.Invalid++
			status.MissingItems = append(status.MissingItems, item.Type)
		default:
			status.Pending++
			status.MissingItems = append(status.MissingItems, item.Type)
		}
	}
	status.Percentage = status.Completed * 100 / status.Total
	status.IsComplete = status.Completed == status.Total && status.Invalid == 0

	if s.cache != nil {
		s.cache.Set(ctx, candidateID, status)
	}
	return status, nil
}

// CanVerify is the hard verification gate: true only when all thirteen items
// are completed and valid. A missing POPIA_CONSENT blocks regardless of the
// other twelve.
func (s *Service) CanVerify(ctx context.Context, candidateID id.CandidateID) (bool, error) {
	status, err := s.Status(ctx, candidateID)
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return status.IsComplete, nil
}

// EmptyStatus describes a candidate whose checklist was never initialised:
// nothing completed, everything missing.
func EmptyStatus() Status {
	return Status{
		Total:        len(allItemTypes),
		Pending:      len(allItemTypes),
		MissingItems: AllItemTypes(),
	}
}

// GateError builds the ValidationGateFailed error for a candidate, naming the
// specific missing items so the candidate can be routed back.
func GateError(status Status) error {
	names := make([]string, 0, len(status.MissingItems))
	for _, t := range status.MissingItems {
		names = append(names, string(t))
	}
	return dErrors.New(dErrors.CodeValidationGate,
		fmt.Sprintf("checklist incomplete (%d/%d): missing %s",
			status.Completed, status.Total, strings.Join(names, ", ")))
}
