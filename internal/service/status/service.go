// Package status provides the shared business logic for recording and
// reading the user's life-status events.
//
// The HTTP API, the MCP server, and the CLI all delegate here so that
// validation, the "today" window, and activity tracking behave the same on
// every surface.
package status

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/xiaoban/internal/model"
	"github.com/ashita-ai/xiaoban/internal/proactive"
	"github.com/ashita-ai/xiaoban/internal/telemetry"
)

// Store is the subset of storage.Store the service needs.
type Store interface {
	RecordStatus(ctx context.Context, ev model.StatusEvent) (model.StatusEvent, error)
	StatusesBetween(ctx context.Context, from, to time.Time) ([]model.StatusEvent, error)
	RecentStatuses(ctx context.Context, limit int) ([]model.StatusEvent, error)
	StatusesByType(ctx context.Context, typ model.StatusType, limit int) ([]model.StatusEvent, error)
	TouchActivity(ctx context.Context, userID string, at time.Time) error
	LastActivity(ctx context.Context, userID string) (time.Time, error)
}

// Service encapsulates status operations shared by HTTP, MCP, and CLI.
type Service struct {
	store  Store
	loc    *time.Location
	userID string
	now    func() time.Time
	logger *slog.Logger

	recorded metric.Int64Counter
}

// New creates a status Service. loc defines "today"; nil means time.Local.
func New(store Store, loc *time.Location, userID string, logger *slog.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	if userID == "" {
		userID = model.DefaultUserID
	}
	meter := telemetry.Meter("xiaoban/status")
	recorded, _ := meter.Int64Counter("xiaoban.status.recorded",
		metric.WithDescription("Status events recorded, by type"),
	)
	return &Service{
		store:    store,
		loc:      loc,
		userID:   userID,
		now:      time.Now,
		logger:   logger,
		recorded: recorded,
	}
}

// WithClock overrides the service's time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Record validates req and stores it as a new status event. A status the
// user reported themselves also counts as activity for idle detection.
func (s *Service) Record(ctx context.Context, req model.RecordStatusRequest) (model.StatusEvent, error) {
	if err := req.Validate(); err != nil {
		return model.StatusEvent{}, err
	}
	now := s.now()
	recordedAt := now
	if req.RecordedAt != nil {
		recordedAt = *req.RecordedAt
	}

	ev, err := s.store.RecordStatus(ctx, model.StatusEvent{
		ID:         uuid.New(),
		Type:       req.StatusType,
		Detail:     req.Detail,
		RecordedAt: recordedAt,
		Source:     req.Source,
	})
	if err != nil {
		return model.StatusEvent{}, fmt.Errorf("status: record: %w", err)
	}
	ev.RecordedAt = ev.RecordedAt.In(s.loc)
	if s.recorded != nil {
		s.recorded.Add(ctx, 1, metric.WithAttributes(attribute.String("status_type", string(ev.Type))))
	}

	if req.Source == model.SourceCommand {
		if err := s.store.TouchActivity(ctx, s.userID, now); err != nil {
			s.logger.Warn("status: touch activity failed", "error", err)
		}
	}
	return ev, nil
}

// Today returns today's events in chronological order.
func (s *Service) Today(ctx context.Context) ([]model.StatusEvent, error) {
	from, to := proactive.DayBounds(s.now(), s.loc)
	events, err := s.store.StatusesBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("status: today: %w", err)
	}
	return s.localize(events), nil
}

// Recent returns the most recent events, newest first.
func (s *Service) Recent(ctx context.Context, limit int) ([]model.StatusEvent, error) {
	events, err := s.store.RecentStatuses(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("status: recent: %w", err)
	}
	return s.localize(events), nil
}

// ByType returns the most recent events of one type, newest first.
func (s *Service) ByType(ctx context.Context, typ model.StatusType, limit int) ([]model.StatusEvent, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("unknown status_type %q", typ)
	}
	events, err := s.store.StatusesByType(ctx, typ, limit)
	if err != nil {
		return nil, fmt.Errorf("status: by type: %w", err)
	}
	return s.localize(events), nil
}

// localize converts event times to the service's zone for display.
func (s *Service) localize(events []model.StatusEvent) []model.StatusEvent {
	for i := range events {
		events[i].RecordedAt = events[i].RecordedAt.In(s.loc)
	}
	return events
}

// Location returns the zone used for the "today" window.
func (s *Service) Location() *time.Location { return s.loc }

// Touch marks the user as active at the current time and returns it.
// An empty userID means the configured user.
func (s *Service) Touch(ctx context.Context, userID string) (time.Time, error) {
	if userID == "" {
		userID = s.userID
	}
	now := s.now()
	if err := s.store.TouchActivity(ctx, userID, now); err != nil {
		return time.Time{}, fmt.Errorf("status: touch activity: %w", err)
	}
	return now, nil
}

// LastActivity returns when the configured user was last active.
// storage.ErrNotFound passes through when the user was never seen.
func (s *Service) LastActivity(ctx context.Context) (time.Time, error) {
	return s.store.LastActivity(ctx, s.userID)
}
