package mediagroup

import (
	"strconv"
	"sync"
	"time"
)

const (
	defaultDebounce = 1200 * time.Millisecond
	// Telegram albums carry at most ten items.
	defaultMaxItems = 10
)

type Item struct {
	ChatID       int64
	UserID       int64
	MediaGroupID string
	Caption      string
	FileID       string
}

// Album is the set of photos that arrived under one media group id, in
// arrival order.
type Album struct {
	ChatID  int64
	UserID  int64
	Caption string
	FileIDs []string
}

type Options struct {
	Debounce time.Duration
	MaxItems int
	OnFlush  func(Album)
}

// Aggregator collects album photos and hands each album to OnFlush once no
// new photo has arrived for the debounce window.
type Aggregator struct {
	mu       sync.Mutex
	debounce time.Duration
	maxItems int
	onFlush  func(Album)
	pending  map[string]*pendingAlbum
	stopped  bool
}

type pendingAlbum struct {
	album Album
	timer *time.Timer
}

func New(opts Options) *Aggregator {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	maxItems := opts.MaxItems
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}

	return &Aggregator{
		debounce: debounce,
		maxItems: maxItems,
		onFlush:  opts.OnFlush,
		pending:  make(map[string]*pendingAlbum),
	}
}

// Add reports whether the item was accepted. Items without a media group id
// are not albums and are left to the caller.
func (a *Aggregator) Add(item Item) bool {
	if item.MediaGroupID == "" || item.FileID == "" {
		return false
	}

	key := albumKey(item.ChatID, item.MediaGroupID)

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return false
	}

	pa, ok := a.pending[key]
	if !ok {
		pa = &pendingAlbum{album: Album{ChatID: item.ChatID, UserID: item.UserID}}
		a.pending[key] = pa
	}
	pa.album.FileIDs = append(pa.album.FileIDs, item.FileID)
	if item.Caption != "" {
		pa.album.Caption = item.Caption
	}

	if pa.timer != nil {
		pa.timer.Stop()
	}
	if len(pa.album.FileIDs) >= a.maxItems {
		a.mu.Unlock()
		a.flush(key)
		return true
	}
	pa.timer = time.AfterFunc(a.debounce, func() {
		a.flush(key)
	})
	a.mu.Unlock()
	return true
}

func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Stop drops every pending album without flushing it.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopped = true
	for key, pa := range a.pending {
		if pa.timer != nil {
			pa.timer.Stop()
		}
		delete(a.pending, key)
	}
}

func (a *Aggregator) flush(key string) {
	a.mu.Lock()
	pa, ok := a.pending[key]
	if !ok {
		a.mu.Unlock()
		return
	}
	delete(a.pending, key)
	album := pa.album
	onFlush := a.onFlush
	a.mu.Unlock()

	if onFlush != nil {
		onFlush(album)
	}
}

func albumKey(chatID int64, mediaGroupID string) string {
	return strconv.FormatInt(chatID, 10) + ":" + mediaGroupID
}
