package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vango-go/resilios/pkg/core/safety"
	"github.com/vango-go/resilios/pkg/core/types"
)

const (
	// DefaultFreePerDay is the free-tier daily message allowance.
	DefaultFreePerDay = 100
	// DefaultHistoryLimit is how many prior messages are sent to the model.
	DefaultHistoryLimit = 200
)

// HistoryStore persists conversations.
type HistoryStore interface {
	Add(ctx context.Context, userID string, msg types.Message) (int64, error)
	History(ctx context.Context, userID string, limit int) ([]types.Message, error)
	Delete(ctx context.Context, id int64) error
}

// Entitlements answers premium status.
type Entitlements interface {
	IsPremium(ctx context.Context, userID string) (bool, error)
}

// UsageCounter tracks free-tier consumption per UTC day.
type UsageCounter interface {
	Used(ctx context.Context, userID string, now time.Time) (int, error)
	Record(ctx context.Context, userID string, now time.Time) error
}

// Backend produces the model reply for a request given prior history,
// oldest first.
type Backend interface {
	Generate(ctx context.Context, history []types.Message, req Request) (Reply, error)
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	FreePerDay   int
	HistoryLimit int
}

// Service handles server-side sends.
type Service struct {
	store        HistoryStore
	entitlements Entitlements
	usage        UsageCounter
	backend      Backend
	cfg          ServiceConfig
	logger       *slog.Logger
	now          func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewService wires a Service. usage may be nil to disable the free quota.
func NewService(store HistoryStore, entitlements Entitlements, usage UsageCounter, backend Backend, cfg ServiceConfig, logger *slog.Logger) *Service {
	if cfg.FreePerDay <= 0 {
		cfg.FreePerDay = DefaultFreePerDay
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:        store,
		entitlements: entitlements,
		usage:        usage,
		backend:      backend,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
		inFlight:     make(map[string]struct{}),
	}
}

// Send runs one turn: quota, safety filter, persistence and the model call.
// On a model failure the persisted user message is deleted again.
func (s *Service) Send(ctx context.Context, req Request) (Reply, error) {
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" && req.Attachment == nil {
		return Reply{}, ErrEmptyMessage
	}
	if req.Attachment != nil && !req.Attachment.Supported() {
		return Reply{}, ErrUnsupportedMedia
	}

	if !s.acquire(req.UserID) {
		return Reply{}, ErrSendInFlight
	}
	defer s.release(req.UserID)

	now := s.now()
	if err := s.checkQuota(ctx, req.UserID, now); err != nil {
		return Reply{}, err
	}

	verdict := safety.Check(req.Text)
	if !verdict.Allowed {
		s.logger.Info("chat message blocked", "user_id", req.UserID, "term", verdict.Term)
		return Reply{}, ErrBlocked
	}

	history, err := s.store.History(ctx, req.UserID, s.cfg.HistoryLimit)
	if err != nil {
		return Reply{}, fmt.Errorf("load history: %w", err)
	}

	msgID, err := s.store.Add(ctx, req.UserID, types.Message{
		Role:       types.RoleUser,
		Text:       req.Text,
		Timestamp:  now,
		Attachment: req.Attachment,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("persist message: %w", err)
	}

	reply, err := s.backend.Generate(ctx, history, req)
	if err != nil {
		// The turn never happened; the caller's context may already be done.
		if derr := s.store.Delete(context.WithoutCancel(ctx), msgID); derr != nil {
			s.logger.Error("roll back user message", "user_id", req.UserID, "message_id", msgID, "error", derr)
		}
		return Reply{}, fmt.Errorf("%w: %w", ErrBackend, err)
	}

	if _, err := s.store.Add(ctx, req.UserID, types.Message{
		Role:            types.RoleModel,
		Text:            reply.Text,
		Timestamp:       s.now(),
		GroundingChunks: reply.GroundingChunks,
		Sticker:         reply.Sticker,
	}); err != nil {
		return Reply{}, fmt.Errorf("persist reply: %w", err)
	}
	// Only answered turns consume free quota.
	if s.usage != nil {
		if err := s.usage.Record(ctx, req.UserID, now); err != nil {
			s.logger.Warn("record chat usage", "user_id", req.UserID, "error", err)
		}
	}

	reply.Crisis = verdict.Crisis
	return reply, nil
}

// checkQuota looks up premium status and usage concurrently. Either lookup
// failing lets the request through.
func (s *Service) checkQuota(ctx context.Context, userID string, now time.Time) error {
	if s.usage == nil {
		return nil
	}

	var (
		premium bool
		used    int
	)
	var g errgroup.Group
	g.Go(func() error {
		p, err := s.entitlements.IsPremium(ctx, userID)
		if err != nil {
			return fmt.Errorf("premium status: %w", err)
		}
		premium = p
		return nil
	})
	g.Go(func() error {
		n, err := s.usage.Used(ctx, userID, now)
		if err != nil {
			return fmt.Errorf("count usage: %w", err)
		}
		used = n
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.Warn("check chat quota; allowing request", "user_id", userID, "error", err)
		return nil
	}

	if !premium && used >= s.cfg.FreePerDay {
		return ErrQuotaExceeded
	}
	return nil
}

// History returns up to limit messages, newest last.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]types.Message, error) {
	if limit <= 0 {
		limit = s.cfg.HistoryLimit
	}
	return s.store.History(ctx, userID, limit)
}

// InFlight reports whether userID has an outstanding send.
func (s *Service) InFlight(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[userID]
	return ok
}

func (s *Service) acquire(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inFlight[userID]; ok {
		return false
	}
	s.inFlight[userID] = struct{}{}
	return true
}

func (s *Service) release(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, userID)
}

// StartOfDayUTC truncates t to midnight UTC.
func StartOfDayUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MessageCounter counts stored messages since a point in time.
type MessageCounter interface {
	CountSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// StoreUsage derives usage from the message log: every message a user has
// stored since midnight UTC counts.
type StoreUsage struct {
	Counter MessageCounter
}

func (u StoreUsage) Used(ctx context.Context, userID string, now time.Time) (int, error) {
	return u.Counter.CountSince(ctx, userID, StartOfDayUTC(now))
}

// Record is a no-op; the message itself is the record.
func (StoreUsage) Record(context.Context, string, time.Time) error { return nil }

const (
	// NoKeyReply is returned when no model credentials are configured.
	NoKeyReply = "(No Gemini API key configured on server — reply unavailable.)"
)

// FallbackBackend answers with a fixed text.
type FallbackBackend struct {
	Text string
}

func (b FallbackBackend) Generate(ctx context.Context, history []types.Message, req Request) (Reply, error) {
	text := b.Text
	if text == "" {
		text = NoKeyReply
	}
	return Reply{Text: text}, nil
}
