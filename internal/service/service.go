package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/access"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/domain"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/events"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/history"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/idempotency"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/notify"
	"github.com/MrKroemer/BarApp-WPA-Web/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// ValidationError is a request rejected before any write.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return store.ErrInvalidInput }

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// ChangeNotifier is told which collection a committed write touched.
type ChangeNotifier interface {
	Notify(ctx context.Context, collection string)
}

type Dependencies struct {
	Reports     history.Store
	Idempotency idempotency.Store
	Events      events.Publisher
	Changes     ChangeNotifier
	Notices     *notify.Center
	Logger      *slog.Logger
}

type Options struct {
	Location            *time.Location
	Now                 func() time.Time
	CloseDayTimeout     time.Duration
	CloseDayMaxRetries  int
	CloseDayConcurrency int
	// CloseDayDeadline bounds the whole sweep, which keeps running after
	// the caller goes away.
	CloseDayDeadline time.Duration
}

type Service struct {
	repo    store.Repository
	reports history.Store
	idem    idempotency.Store
	events  events.Publisher
	changes ChangeNotifier
	notices *notify.Center
	log     *slog.Logger
	tracer  trace.Tracer

	loc                 *time.Location
	now                 func() time.Time
	closeDayTimeout     time.Duration
	closeDayMaxRetries  int
	closeDayConcurrency int
	closeDayDeadline    time.Duration
}

func New(repo store.Repository, deps Dependencies, opts Options) *Service {
	s := &Service{
		repo:                repo,
		reports:             deps.Reports,
		idem:                deps.Idempotency,
		events:              deps.Events,
		changes:             deps.Changes,
		notices:             deps.Notices,
		log:                 deps.Logger,
		tracer:              otel.Tracer("github.com/MrKroemer/BarApp-WPA-Web/internal/service"),
		loc:                 opts.Location,
		now:                 opts.Now,
		closeDayTimeout:     opts.CloseDayTimeout,
		closeDayMaxRetries:  opts.CloseDayMaxRetries,
		closeDayConcurrency: opts.CloseDayConcurrency,
		closeDayDeadline:    opts.CloseDayDeadline,
	}
	if s.reports == nil {
		s.reports = history.NewMemoryStore(history.DefaultLimit)
	}
	if s.idem == nil {
		s.idem = idempotency.NewMemoryStore(idempotency.DefaultTTL)
	}
	if s.events == nil {
		s.events = events.NoopPublisher{}
	}
	if s.notices == nil {
		s.notices = notify.NewCenter(notify.DefaultLimit)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.closeDayTimeout <= 0 {
		s.closeDayTimeout = 5 * time.Second
	}
	if s.closeDayMaxRetries < 0 {
		s.closeDayMaxRetries = 0
	}
	if s.closeDayConcurrency < 1 {
		s.closeDayConcurrency = 8
	}
	if s.closeDayDeadline <= 0 {
		s.closeDayDeadline = 2 * time.Minute
	}
	return s
}

// Notices exposes the notification center for the inbox endpoints.
func (s *Service) Notices() *notify.Center {
	return s.notices
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

var errUnauthenticated = fmt.Errorf("%w: authentication required", store.ErrForbidden)

// authorize returns the caller when they hold permission.
func authorize(ctx context.Context, permission access.Permission) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, errUnauthenticated
	}
	if !access.HasPermission(actor.Profile(), permission) {
		return domain.Actor{}, fmt.Errorf("%w: %s required", store.ErrForbidden, permission)
	}
	return actor, nil
}

func (s *Service) changed(ctx context.Context, collections ...string) {
	if s.changes == nil {
		return
	}
	for _, c := range collections {
		s.changes.Notify(context.WithoutCancel(ctx), c)
	}
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if event.At.IsZero() {
		event.At = s.clock()
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.WarnContext(ctx, "event publish failed", "type", event.Type, "key", event.Key, "error", err)
	}
}

// logAudit records who did what. Audit is best effort and never fails the
// operation it describes.
func (s *Service) logAudit(ctx context.Context, action, entityType, entityID, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{UserID: "system", Name: "system"}
	}
	s.log.InfoContext(ctx, "audit",
		"action", action,
		"entity_type", entityType,
		"entity_id", entityID,
		"actor_id", actor.UserID,
		"actor_owner", actor.IsOwner,
		"detail", detail,
	)
}

func isPermanent(err error) bool {
	return errors.Is(err, store.ErrInvalidTransition) ||
		errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, store.ErrInvalidInput) ||
		errors.Is(err, store.ErrForbidden)
}
