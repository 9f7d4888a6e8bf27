package cdp

import (
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
)

// TabInfo describes an attached tab.
type TabInfo struct {
	TargetID   string    `json:"target_id"`
	URL        string    `json:"url"`
	Host       string    `json:"host"`
	AttachedAt time.Time `json:"attached_at"`
}

// TabRegistry maps CDP target IDs to tab metadata.
type TabRegistry struct {
	tabs map[target.ID]*TabInfo
	mu   sync.RWMutex
}

func NewTabRegistry() *TabRegistry {
	return &TabRegistry{tabs: make(map[target.ID]*TabInfo)}
}

// Register records a tab or updates its URL. The attach time is kept across
// navigations.
func (r *TabRegistry) Register(targetID target.ID, rawURL string) *TabInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.tabs[targetID]
	if !ok {
		info = &TabInfo{TargetID: string(targetID), AttachedAt: time.Now()}
		r.tabs[targetID] = info
	}
	info.URL = rawURL
	info.Host = hostOf(rawURL)
	cp := *info
	return &cp
}

func (r *TabRegistry) Get(targetID target.ID) (TabInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.tabs[targetID]
	if !ok {
		return TabInfo{}, false
	}
	return *info, true
}

func (r *TabRegistry) Remove(targetID target.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tabs, targetID)
}

func (r *TabRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tabs)
}

// List returns tabs ordered by attach time.
func (r *TabRegistry) List() []TabInfo {
	r.mu.RLock()
	out := make([]TabInfo, 0, len(r.tabs))
	for _, info := range r.tabs {
		out = append(out, *info)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].AttachedAt.Equal(out[j].AttachedAt) {
			return out[i].TargetID < out[j].TargetID
		}
		return out[i].AttachedAt.Before(out[j].AttachedAt)
	})
	return out
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
