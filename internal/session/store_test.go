package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stylenow-studio/internal/media"
	"stylenow-studio/internal/studio"
	"stylenow-studio/internal/workflow"
)

type nopGenerator struct{}

func (nopGenerator) Generate(context.Context, studio.GenerationRequest) (media.ImageAsset, error) {
	return media.ImageAsset{}, errors.New("not used")
}

type nopAnalyzer struct{}

func (nopAnalyzer) Analyze(context.Context, media.ImageAsset, media.ImageAsset) studio.AnalysisResult {
	return studio.UnavailableAnalysis()
}

func newStore(t *testing.T, opts Options) (*Store, *int) {
	t.Helper()
	created := 0
	opts.New = func(string) (*workflow.Controller, error) {
		created++
		return workflow.New(workflow.Options{
			Generator: nopGenerator{},
			Analyzer:  nopAnalyzer{},
			Permitted: func() bool { return true },
		})
	}
	s, err := NewStore(opts)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, &created
}

func TestNewStoreRequiresFactory(t *testing.T) {
	_, err := NewStore(Options{})
	assert.Error(t, err)
}

func TestGetOrCreateReusesSession(t *testing.T) {
	s, created := newStore(t, Options{})

	a, err := s.GetOrCreate("42")
	require.NoError(t, err)
	b, err := s.GetOrCreate("42")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, *created)

	other, err := s.GetOrCreate("43")
	require.NoError(t, err)
	assert.NotSame(t, a, other)
	assert.Equal(t, 2, s.Len())
}

func TestCreateRejectsDuplicate(t *testing.T) {
	s, _ := newStore(t, Options{})
	_, err := s.Create("abc")
	require.NoError(t, err)
	_, err = s.Create("abc")
	assert.ErrorIs(t, err, ErrExists)
}

func TestDeleteClosesController(t *testing.T) {
	s, _ := newStore(t, Options{})
	ctrl, err := s.GetOrCreate("42")
	require.NoError(t, err)

	assert.True(t, s.Delete("42"))
	assert.False(t, s.Delete("42"))

	_, ok := s.Get("42")
	assert.False(t, ok)
	assert.ErrorIs(t, ctrl.Invoke(context.Background()), workflow.ErrClosed)
}

func TestIdleSessionsExpire(t *testing.T) {
	s, _ := newStore(t, Options{TTL: 30 * time.Millisecond, CleanupInterval: 10 * time.Millisecond})
	ctrl, err := s.GetOrCreate("42")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return ctrl.Invoke(context.Background()) == workflow.ErrClosed
	}, time.Second, 10*time.Millisecond)

	_, ok := s.Get("42")
	assert.False(t, ok)
}

func TestCloseClosesAll(t *testing.T) {
	s, _ := newStore(t, Options{})
	a, _ := s.GetOrCreate("a")
	b, _ := s.GetOrCreate("b")

	s.Close()
	assert.Equal(t, 0, s.Len())
	assert.ErrorIs(t, a.Invoke(context.Background()), workflow.ErrClosed)
	assert.ErrorIs(t, b.Invoke(context.Background()), workflow.ErrClosed)
}

func TestOnEvictedReportsKeys(t *testing.T) {
	var mu sync.Mutex
	var evicted []string
	s, _ := newStore(t, Options{
		TTL:             30 * time.Millisecond,
		CleanupInterval: 10 * time.Millisecond,
		OnEvicted: func(key string) {
			mu.Lock()
			defer mu.Unlock()
			evicted = append(evicted, key)
		},
	})
	_, err := s.GetOrCreate("gone")
	require.NoError(t, err)
	_, err = s.GetOrCreate("deleted")
	require.NoError(t, err)
	require.True(t, s.Delete("deleted"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(evicted) == 2
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"gone", "deleted"}, evicted)
}
