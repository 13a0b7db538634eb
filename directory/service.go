package directory

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/chessdojo/dirtree/internal/metrics"
)

// Service implements the directory operations on top of a Repository.
type Service struct {
	repo     Repository
	refs     CrossReferencer
	resolver *Resolver
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Collector
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records operation outcomes in c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Service) { s.metrics = c }
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Service. refs may be nil when game back-references are not
// maintained.
func New(repo Repository, refs CrossReferencer, cfg Config, opts ...Option) *Service {
	cfg.validate()
	s := &Service{
		repo:   repo,
		refs:   refs,
		cfg:    cfg,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if l, ok := repo.(ItemLimiter); ok {
		if limit := l.MaxItemsPerUpdate(); limit > 0 && s.cfg.AddBatchSize > limit {
			s.logger.Warn("add batch size exceeds what the repository accepts per update",
				"configured", s.cfg.AddBatchSize,
				"using", limit,
			)
			s.cfg.AddBatchSize = limit
		}
	}
	s.resolver = NewResolver(repo, cfg.MaxDepth)
	return s
}

// Resolver returns the access resolver used by the service.
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// authorize resolves caller's role on owner/id and fails with KindForbidden
// when it is below required. The fetched directory is returned with the role.
func (s *Service) authorize(ctx context.Context, op, owner, id, caller string, required Role) (resolution, error) {
	res, err := s.resolver.resolve(ctx, owner, id, caller)
	if err != nil {
		return res, err
	}
	if res.role < required {
		return res, forbidden(op, "%s holds %s on %s/%s, %s required", caller, res.role, owner, id, required)
	}
	return res, nil
}

func (s *Service) observe(op string, err error) {
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeError
		if k := KindOf(err); k != 0 {
			outcome = strings.ReplaceAll(k.String(), " ", "_")
		}
	}
	s.metrics.Operation(op, outcome)
}

func (s *Service) crossrefAdd(ctx context.Context, owner, id string, items []Item) {
	if s.refs == nil {
		return
	}
	if err := s.refs.AddDirectory(ctx, owner, id, items); err != nil {
		s.metrics.SideEffectFailed("crossref")
		s.logger.Warn("failed to add game cross-references",
			"owner", owner,
			"directoryId", id,
			"items", len(items),
			"error", err,
		)
	}
}

func (s *Service) crossrefRemove(ctx context.Context, owner, id string, items []Item) {
	if s.refs == nil {
		return
	}
	if err := s.refs.RemoveDirectory(ctx, owner, id, items); err != nil {
		s.metrics.SideEffectFailed("crossref")
		s.logger.Warn("failed to remove game cross-references",
			"owner", owner,
			"directoryId", id,
			"items", len(items),
			"error", err,
		)
	}
}
