package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"sebenza/internal/platform/metrics"
	id "sebenza/pkg/domain"
	dErrors "sebenza/pkg/domain-errors"
	"sebenza/pkg/platform/circuit"
)

// Service owns the append-only audit trail. It validates enum fields, assigns
// IDs and timestamps, and answers trail queries. There is no update or delete
// path.
type Service struct {
	store   Store
	stream  Publisher
	breaker *circuit.Breaker
	skipped atomic.Uint64
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

// WithPublisher attaches a change-feed sink. Publish failures are logged and
// counted, never propagated: the store is the source of truth. A breaker
// skips publishing while the feed is down so a broker outage does not add a
// per-entry timeout to every audited operation.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.stream = p
		s.breaker = circuit.New("audit-feed", circuit.WithFailureThreshold(3))
	}
}

func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "audit store is required")
	}
	svc := &Service{store: store}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Create appends one entry and returns its ID. Fail-closed: callers pairing
// an entry with a state mutation must treat an error here as a failure of the
// whole operation.
func (s *Service) Create(ctx context.Context, entry Entry) (id.EntryID, error) {
	if !entry.EntityType.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown entity type %q", entry.EntityType)
	}
	if !entry.Action.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown audit action %q", entry.Action)
	}
	if entry.EntityID == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "entity id cannot be empty")
	}
	if entry.ID == "" {
		entry.ID = id.NewEntryID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	if err := s.store.Append(ctx, entry); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "audit append failed")
	}
	if s.metrics != nil {
		s.metrics.AuditEntriesTotal.WithLabelValues(string(entry.Action)).Inc()
	}

	if s.stream != nil {
		s.publish(ctx, entry)
	}

	return entry.ID, nil
}

// feedProbeInterval is how many entries are skipped between probe publishes
// while the feed breaker is open.
const feedProbeInterval = 16

// publish streams one entry to the change feed, best effort. While the
// breaker is open only every feedProbeInterval-th entry is attempted, giving
// the breaker a path back to closed once the feed recovers.
func (s *Service) publish(ctx context.Context, entry Entry) {
	if s.breaker.IsOpen() && s.skipped.Add(1)%feedProbeInterval != 0 {
		if s.metrics != nil {
			s.metrics.AuditPublishFailures.Inc()
		}
		return
	}

	if err := s.stream.Publish(ctx, entry); err != nil {
		_, change := s.breaker.RecordFailure()
		if s.metrics != nil {
			s.metrics.AuditPublishFailures.Inc()
		}
		if s.logger != nil {
			s.logger.WarnContext(ctx, "audit change-feed publish failed",
				"entry_id", entry.ID,
				"action", entry.Action,
				"error", err,
			)
			if change.Opened {
				s.logger.WarnContext(ctx, "audit change-feed breaker opened",
					"breaker", s.breaker.Name(),
				)
			}
		}
		return
	}

	_, change := s.breaker.RecordSuccess()
	if change.Closed && s.logger != nil {
		s.logger.InfoContext(ctx, "audit change-feed breaker closed",
			"breaker", s.breaker.Name(),
		)
	}
}

// ByEntity returns the chronological trail for one entity.
func (s *Service) ByEntity(ctx context.Context, entityType EntityType, entityID string) ([]Entry, error) {
	if !entityType.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown entity type %q", entityType)
	}
	entries, err := s.store.ByEntity(ctx, entityType, entityID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "audit query failed")
	}
	return entries, nil
}

// ByCandidate assembles a best-effort cross-entity trail. The log does not
// own the candidate-to-entity mapping, so callers supply the refs to merge.
// The result is ordered by timestamp across entities.
func (s *Service) ByCandidate(ctx context.Context, candidateID id.CandidateID, refs []EntityRef) ([]Entry, error) {
	if candidateID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "candidate id cannot be empty")
	}
	var merged []Entry
	for _, ref := range refs {
		entries, err := s.ByEntity(ctx, ref.Type, ref.ID)
		if err != nil {
			return nil, err
		}
		merged = append(merged, entries...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})
	return merged, nil
}

// VerifyIntegrity checks the supplied trails for per-entity chronological
// monotonicity, presence of the bootstrap entry, and continuity of
// state-changing entries. Issues are reported, never repaired.
func (s *Service) VerifyIntegrity(ctx context.Context, candidateID id.CandidateID, refs []EntityRef) (IntegrityReport, error) {
	if candidateID == "" {
		return IntegrityReport{}, dErrors.New(dErrors.CodeInvalidInput, "candidate id cannot be empty")
	}

	report := IntegrityReport{Issues: []string{}}
	bootstrapSeen := false
	sessionRefSeen := false

	for _, ref := range refs {
		entries, err := s.ByEntity(ctx, ref.Type, ref.ID)
		if err != nil {
			return IntegrityReport{}, err
		}
		report.LogCount += len(entries)
		if ref.Type == EntitySession {
			sessionRefSeen = true
		}

		var lastTimestamp time.Time
		var lastNewState string
		chainStarted := false
		for i, entry := range entries {
			if i > 0 && entry.Timestamp.Before(lastTimestamp) {
				report.Issues = append(report.Issues, fmt.Sprintf(
					"%s %s: entry %s timestamp precedes previous entry",
					ref.Type, ref.ID, entry.ID))
			}
			lastTimestamp = entry.Timestamp

			if ref.Type == EntitySession && entry.Action == ActionCreated && entry.ReasonCode == BootstrapReasonCode {
				bootstrapSeen = true
			}

			if entry.Action.ChangesState() {
				if chainStarted && entry.PreviousState != lastNewState {
					report.Issues = append(report.Issues, fmt.Sprintf(
						"%s %s: entry %s previous state %q does not continue from %q",
						ref.Type, ref.ID, entry.ID, entry.PreviousState, lastNewState))
				}
				lastNewState = entry.NewState
				chainStarted = true
			}
		}
	}

	if !sessionRefSeen {
		report.Issues = append(report.Issues, "no session entity supplied for candidate")
	} else if !bootstrapSeen {
		report.Issues = append(report.Issues, "bootstrap OnboardingStarted entry missing")
	}

	report.IsValid = len(report.Issues) == 0
	if !report.IsValid && s.metrics != nil {
		s.metrics.IntegrityFailures.Inc()
	}
	if !report.IsValid && s.logger != nil {
		s.logger.WarnContext(ctx, "audit trail integrity issues found",
			"candidate_id", candidateID,
			"issue_count", len(report.Issues),
		)
	}
	return report, nil
}
