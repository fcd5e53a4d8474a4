package services

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akagifreeez/gemini-key-pool/internal/models"
)

// DefaultErrorLogCapacity is how many failures are retained before the oldest is evicted.
const DefaultErrorLogCapacity = 1000

// ErrorLog is a fixed-capacity ring of failures, read newest-first.
type ErrorLog struct {
	mu      sync.RWMutex
	entries []models.ErrorLogEntry
	head    int // slot the next append writes to
	size    int

	subs    map[int]chan models.ErrorLogEntry
	nextSub int
}

func NewErrorLog(capacity int) *ErrorLog {
	if capacity < 1 {
		capacity = DefaultErrorLogCapacity
	}
	return &ErrorLog{
		entries: make([]models.ErrorLogEntry, capacity),
		subs:    make(map[int]chan models.ErrorLogEntry),
	}
}

// NewErrorLogEntry builds an entry with a time-ordered id
func NewErrorLogEntry(at time.Time, keyID, message, requestPath string, responseBody *string) models.ErrorLogEntry {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return models.ErrorLogEntry{
		ID:           id.String(),
		Timestamp:    at,
		KeyID:        keyID,
		Message:      message,
		RequestPath:  requestPath,
		ResponseBody: responseBody,
	}
}

// Append stores entry as the newest one, evicting the oldest when full.
// Subscribers that are not keeping up miss the entry.
func (l *ErrorLog) Append(entry models.ErrorLogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[l.head] = entry
	l.head = (l.head + 1) % len(l.entries)
	if l.size < len(l.entries) {
		l.size++
	}

	for _, ch := range l.subs {
		select {
		case ch <- entry:
		default:
		}
	}
}

// Page returns entries [(page-1)*limit, page*limit) counted from the newest,
// clipped to what is stored, along with the total number of entries.
func (l *ErrorLog) Page(page, limit int) ([]models.ErrorLogEntry, int) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := []models.ErrorLogEntry{}
	if limit > len(l.entries) {
		limit = len(l.entries)
	}
	if page < 1 || limit < 1 || page-1 >= (l.size+limit-1)/limit {
		return out, l.size
	}

	start := (page - 1) * limit
	end := start + limit
	if end > l.size {
		end = l.size
	}
	for i := start; i < end; i++ {
		out = append(out, l.at(i))
	}
	return out, l.size
}

// Len returns the number of stored entries
func (l *ErrorLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// Clear drops every entry
func (l *ErrorLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	clear(l.entries)
	l.head = 0
	l.size = 0
}

// Subscribe registers for entries appended from now on. The returned cancel
// func unregisters and closes the channel.
func (l *ErrorLog) Subscribe(buffer int) (<-chan models.ErrorLogEntry, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextSub
	l.nextSub++
	ch := make(chan models.ErrorLogEntry, buffer)
	l.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
			close(ch)
		})
	}
}

// at returns the i-th newest entry. Caller holds the lock.
func (l *ErrorLog) at(i int) models.ErrorLogEntry {
	n := len(l.entries)
	return l.entries[(l.head-1-i+2*n)%n]
}
