// Package render keeps the latest render pass of each message so copy
// requests can be answered from the raw block text.
package render

import (
	"container/list"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samsaffron/markview/internal/markdown"
)

// DefaultCapacity is used when NewStore is given a non-positive size.
const DefaultCapacity = 256

// ErrStaleGeneration is returned when a render pass older than the stored
// one is put.
var ErrStaleGeneration = errors.New("stale render generation")

// Entry is the stored render pass of one message.
type Entry struct {
	MessageID  string
	Generation uint64
	Result     markdown.Result
	UpdatedAt  time.Time
}

// Store is an LRU of render results keyed by message id.
type Store struct {
	mu      sync.Mutex
	maxSize int
	entries map[string]*list.Element
	lruList *list.List
	now     func() time.Time
}

// NewStore creates a store holding at most maxSize messages.
func NewStore(maxSize int) *Store {
	if maxSize <= 0 {
		maxSize = DefaultCapacity
	}
	return &Store{
		maxSize: maxSize,
		entries: make(map[string]*list.Element),
		lruList: list.New(),
		now:     time.Now,
	}
}

// Put records res as the pass for messageID at generation. A generation
// lower than the stored one is rejected with ErrStaleGeneration; an equal
// one replaces the entry.
func (s *Store) Put(messageID string, generation uint64, res markdown.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[messageID]; ok {
		entry := elem.Value.(*Entry)
		if generation < entry.Generation {
			return fmt.Errorf("message %s: generation %d < %d: %w", messageID, generation, entry.Generation, ErrStaleGeneration)
		}
		entry.Generation = generation
		entry.Result = res
		entry.UpdatedAt = s.now()
		s.lruList.MoveToFront(elem)
		return nil
	}

	if s.lruList.Len() >= s.maxSize {
		s.evictOldest()
	}
	entry := &Entry{
		MessageID:  messageID,
		Generation: generation,
		Result:     res,
		UpdatedAt:  s.now(),
	}
	s.entries[messageID] = s.lruList.PushFront(entry)
	return nil
}

// Get returns a copy of the entry for messageID and marks it recently used.
func (s *Store) Get(messageID string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, ok := s.entries[messageID]
	if !ok {
		return Entry{}, false
	}
	s.lruList.MoveToFront(elem)
	return *elem.Value.(*Entry), true
}

// Block returns the code block blockID of the latest pass of messageID.
func (s *Store) Block(messageID, blockID string) (markdown.CodeBlock, bool) {
	entry, ok := s.Get(messageID)
	if !ok {
		return markdown.CodeBlock{}, false
	}
	return entry.Result.Block(blockID)
}

// Remove deletes the entry for messageID.
func (s *Store) Remove(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elem, ok := s.entries[messageID]; ok {
		delete(s.entries, messageID)
		s.lruList.Remove(elem)
	}
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Clear removes every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*list.Element)
	s.lruList.Init()
}

// evictOldest removes the least recently used entry. Must be called with the
// lock held.
func (s *Store) evictOldest() {
	oldest := s.lruList.Back()
	if oldest == nil {
		return
	}
	delete(s.entries, oldest.Value.(*Entry).MessageID)
	s.lruList.Remove(oldest)
}
