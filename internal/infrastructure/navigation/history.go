// Package navigation provides an in-process location history for views
// that are not rendered by a browser.
package navigation

import (
	"sync"
)

// Entry is one visited location. From is the protected location the user was
// sent away from, when the navigation was a redirect.
type Entry struct {
	Path string
	From string
}

// History implements ports.Navigator.
type History struct {
	mu        sync.RWMutex
	entries   []Entry
	listeners []func(Entry)
}

func NewHistory(start string) *History {
	if start == "" {
		start = "/"
	}
	return &History{entries: []Entry{{Path: start}}}
}

func (h *History) Navigate(to, from string) {
	e := Entry{Path: to, From: from}

	h.mu.Lock()
	h.entries = append(h.entries, e)
	listeners := append([]func(Entry){}, h.listeners...)
	h.mu.Unlock()

	for _, l := range listeners {
		l(e)
	}
}

func (h *History) Location() string {
	return h.Current().Path
}

func (h *History) Current() Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.entries[len(h.entries)-1]
}

// From returns the location the current entry was redirected away from.
func (h *History) From() string {
	return h.Current().From
}

// Back drops the current entry and returns the new current one.
func (h *History) Back() Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) > 1 {
		h.entries = h.entries[:len(h.entries)-1]
	}
	return h.entries[len(h.entries)-1]
}

func (h *History) Entries() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Entry(nil), h.entries...)
}

// OnNavigate registers a listener called after every navigation.
func (h *History) OnNavigate(fn func(Entry)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}
