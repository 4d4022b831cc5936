// Package flash хранит последнее уведомление пользователя до первого чтения.
package flash

import (
	"context"
	"sync"
	"time"

	"github.com/mmeshcher/bonus-manager/internal/model"
)

// DefaultTTL задаёт время жизни неполученного уведомления.
const DefaultTTL = 10 * time.Minute

// Store сохраняет уведомление пользователя и отдаёт его ровно один раз.
type Store interface {
	Put(ctx context.Context, userID int64, n model.Notice) error
	// Pop возвращает nil, если уведомления нет или оно уже прочитано.
	Pop(ctx context.Context, userID int64) (*model.Notice, error)
}

type memoryEntry struct {
	notice    model.Notice
	expiresAt time.Time
}

// MemoryStore хранит уведомления в памяти процесса.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[int64]memoryEntry
}

// NewMemoryStore создаёт хранилище уведомлений в памяти.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[int64]memoryEntry),
	}
}

// Put заменяет уведомление пользователя.
func (s *MemoryStore) Put(_ context.Context, userID int64, n model.Notice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[userID] = memoryEntry{notice: n, expiresAt: s.now().Add(s.ttl)}
	return nil
}

// Pop извлекает и удаляет уведомление пользователя.
func (s *MemoryStore) Pop(_ context.Context, userID int64) (*model.Notice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[userID]
	if !ok {
		return nil, nil
	}
	delete(s.entries, userID)

	if s.now().After(e.expiresAt) {
		return nil, nil
	}

	n := e.notice
	return &n, nil
}

// Sweep удаляет просроченные уведомления и возвращает их количество.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for userID, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, userID)
			removed++
		}
	}
	return removed
}

// RunSweeper периодически вызывает Sweep до отмены ctx.
func (s *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
