package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/redis/go-redis/v9"
)

// MemoryStore keeps the record for the life of the process.
type MemoryStore struct {
	mu  sync.RWMutex
	rec *Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(_ context.Context) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.rec == nil {
		return Record{}, ErrNoSession
	}
	return *m.rec, nil
}

func (m *MemoryStore) Save(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = &rec
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = nil
	return nil
}

const (
	sessionDirMode  = 0o700
	sessionFileMode = 0o600
)

// FileStore persists the record as TOML, readable only by the owner.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultFilePath is ~/.config/grievance-chat/<profile>/session.toml.
func DefaultFilePath(profile string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("session: resolve home dir: %w", err)
	}
	if profile == "" {
		profile = "default"
	}
	return filepath.Join(home, ".config", "grievance-chat", profile, "session.toml"), nil
}

func (f *FileStore) Load(_ context.Context) (Record, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, ErrNoSession
	}
	if err != nil {
		return Record{}, fmt.Errorf("read %s: %w", f.path, err)
	}
	var rec Record
	if err := toml.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return rec, nil
}

func (f *FileStore) Save(_ context.Context, rec Record) error {
	if err := os.MkdirAll(filepath.Dir(f.path), sessionDirMode); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := toml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, sessionFileMode); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace session: %w", err)
	}
	return nil
}

func (f *FileStore) Clear(_ context.Context) error {
	err := os.Remove(f.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", f.path, err)
	}
	return nil
}

// RedisStore shares one login across terminals and hosts. The key lives as
// long as the refresh token so an expired access token can still be renewed;
// an opaque or exp-less refresh token stores the key without expiry.
type RedisStore struct {
	rdb redis.Cmdable
	key string
	now func() time.Time
}

func NewRedisStore(rdb redis.Cmdable, profile string) *RedisStore {
	if profile == "" {
		profile = "default"
	}
	return &RedisStore{rdb: rdb, key: "grievance-chat:session:" + profile, now: time.Now}
}

func (r *RedisStore) Key() string { return r.key }

func (r *RedisStore) Load(ctx context.Context) (Record, error) {
	data, err := r.rdb.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNoSession
	}
	if err != nil {
		return Record{}, fmt.Errorf("redis get %s: %w", r.key, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode %s: %w", r.key, err)
	}
	return rec, nil
}

func (r *RedisStore) Save(ctx context.Context, rec Record) error {
	var ttl time.Duration
	if exp := tokenExpiry(rec.Tokens.Refresh); !exp.IsZero() {
		ttl = exp.Sub(r.now())
		if ttl <= 0 {
			return fmt.Errorf("redis set %s: %w", r.key, ErrSessionExpired)
		}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.rdb.Set(ctx, r.key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.rdb.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", r.key, err)
	}
	return nil
}
