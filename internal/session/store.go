package session

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"stylenow-studio/internal/workflow"
)

const (
	defaultTTL             = 60 * time.Minute
	defaultCleanupInterval = 5 * time.Minute
)

var ErrExists = errors.New("session already exists")

type Factory func(key string) (*workflow.Controller, error)

type Options struct {
	// TTL is the idle lifetime; every lookup slides it forward.
	TTL             time.Duration
	CleanupInterval time.Duration
	New             Factory
	OnEvicted       func(key string)
	Logger          *slog.Logger
}

// Store keeps one workflow controller per session key (a Telegram user or a
// web session id). Idle sessions expire and their controllers are closed;
// OnEvicted then runs with the key, also after Delete and Close.
type Store struct {
	mu     sync.Mutex
	items  *cache.Cache
	newFn  Factory
	logger *slog.Logger
}

func NewStore(opts Options) (*Store, error) {
	if opts.New == nil {
		return nil, errors.New("session: controller factory is required")
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	cleanup := opts.CleanupInterval
	if cleanup <= 0 {
		cleanup = defaultCleanupInterval
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Store{
		items:  cache.New(ttl, cleanup),
		newFn:  opts.New,
		logger: logger,
	}
	onEvicted := opts.OnEvicted
	s.items.OnEvicted(func(key string, v interface{}) {
		if ctrl, ok := v.(*workflow.Controller); ok {
			ctrl.Close()
		}
		if onEvicted != nil {
			onEvicted(key)
		}
		s.logger.Debug("session closed", "session", key)
	})
	return s, nil
}

func (s *Store) Get(key string) (*workflow.Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(key)
}

func (s *Store) GetOrCreate(key string) (*workflow.Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ctrl, ok := s.getLocked(key); ok {
		return ctrl, nil
	}
	return s.createLocked(key)
}

// Create registers a fresh session and fails if the key is taken.
func (s *Store) Create(key string) (*workflow.Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items.Get(key); ok {
		return nil, ErrExists
	}
	return s.createLocked(key)
}

// Delete drops the session and closes its controller.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items.Get(key); !ok {
		return false
	}
	s.items.Delete(key)
	return true
}

func (s *Store) Len() int {
	return s.items.ItemCount()
}

func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.items.Items() {
		s.items.Delete(key)
	}
}

func (s *Store) getLocked(key string) (*workflow.Controller, bool) {
	v, ok := s.items.Get(key)
	if !ok {
		return nil, false
	}
	ctrl := v.(*workflow.Controller)
	s.items.SetDefault(key, ctrl)
	return ctrl, true
}

func (s *Store) createLocked(key string) (*workflow.Controller, error) {
	ctrl, err := s.newFn(key)
	if err != nil {
		return nil, err
	}
	s.items.SetDefault(key, ctrl)
	s.logger.Debug("session created", "session", key)
	return ctrl, nil
}
