package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

var (
	// ErrSessionNotFound is returned when a session does not exist or has expired.
	ErrSessionNotFound = errors.New("checkout session not found")
	// ErrVersionConflict is returned when the stored session changed since it was read.
	ErrVersionConflict = errors.New("checkout session version conflict")
)

// Store persists checkout sessions. CompareAndSwap writes s only when the
// stored version equals expected, and bumps s.Version on success.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	CompareAndSwap(ctx context.Context, s *Session, expected int64) error
	Delete(ctx context.Context, id string) error
}

// RedisStore keeps sessions as JSON documents with a sliding TTL.
type RedisStore struct {
	R      *redis.Client
	TTL    time.Duration
	Prefix string
}

func (s RedisStore) key(id string) string {
	prefix := s.Prefix
	if prefix == "" {
		prefix = "checkout:session:"
	}
	return prefix + id
}

func (s RedisStore) ttl() time.Duration {
	if s.TTL <= 0 {
		return 30 * time.Minute
	}
	return s.TTL
}

// Create implements Store.
func (s RedisStore) Create(ctx context.Context, sess *Session) error {
	if s.R == nil {
		return errors.New("checkout: redis client not configured")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("checkout: encode session: %w", err)
	}
	ok, err := s.R.SetNX(ctx, s.key(sess.ID), data, s.ttl()).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrVersionConflict
	}
	return nil
}

// Get implements Store.
func (s RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	if s.R == nil {
		return nil, errors.New("checkout: redis client not configured")
	}
	data, err := s.R.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeSession(data)
}

// CompareAndSwap implements Store using WATCH/MULTI so a concurrent writer or
// a delete between read and write aborts the transaction.
func (s RedisStore) CompareAndSwap(ctx context.Context, sess *Session, expected int64) error {
	if s.R == nil {
		return errors.New("checkout: redis client not configured")
	}
	key := s.key(sess.ID)
	next := *sess
	next.Version = expected + 1
	data, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("checkout: encode session: %w", err)
	}
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		current, err := decodeSession(raw)
		if err != nil {
			return err
		}
		if current.Version != expected {
			return ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl())
			return nil
		})
		return err
	}
	if err := s.R.Watch(ctx, txf, key); err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return ErrVersionConflict
		}
		return err
	}
	sess.Version = next.Version
	return nil
}

// Delete implements Store.
func (s RedisStore) Delete(ctx context.Context, id string) error {
	if s.R == nil {
		return errors.New("checkout: redis client not configured")
	}
	n, err := s.R.Del(ctx, s.key(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func decodeSession(data []byte) (*Session, error) {
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("checkout: decode session: %w", err)
	}
	return &sess, nil
}

// MemoryStore keeps sessions in process memory. Expired sessions are dropped lazily.
type MemoryStore struct {
	TTL time.Duration
	Now func() time.Time

	mu    sync.Mutex
	items map[string]memoryEntry
}

type memoryEntry struct {
	session   *Session
	expiresAt time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{TTL: ttl, items: make(map[string]memoryEntry)}
}

func (m *MemoryStore) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *MemoryStore) expiry() time.Time {
	ttl := m.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return m.now().Add(ttl)
}

func (m *MemoryStore) lookupLocked(id string) (memoryEntry, bool) {
	if m.items == nil {
		m.items = make(map[string]memoryEntry)
	}
	entry, ok := m.items[id]
	if !ok {
		return memoryEntry{}, false
	}
	if !m.now().Before(entry.expiresAt) {
		delete(m.items, id)
		return memoryEntry{}, false
	}
	return entry, true
}

// Create implements Store.
func (m *MemoryStore) Create(_ context.Context, sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lookupLocked(sess.ID); ok {
		return ErrVersionConflict
	}
	m.items[sess.ID] = memoryEntry{session: sess.Clone(), expiresAt: m.expiry()}
	return nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.lookupLocked(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return entry.session.Clone(), nil
}

// CompareAndSwap implements Store.
func (m *MemoryStore) CompareAndSwap(_ context.Context, sess *Session, expected int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.lookupLocked(sess.ID)
	if !ok {
		return ErrSessionNotFound
	}
	if entry.session.Version != expected {
		return ErrVersionConflict
	}
	sess.Version = expected + 1
	m.items[sess.ID] = memoryEntry{session: sess.Clone(), expiresAt: m.expiry()}
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.lookupLocked(id); !ok {
		return ErrSessionNotFound
	}
	delete(m.items, id)
	return nil
}
