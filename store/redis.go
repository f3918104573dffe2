package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	saga "github.com/goliatone/go-saga"
)

const defaultRedisPrefix = "saga_session:"

var errRedisUnset = errors.New("redis store has no client")

// KeyValue is the slice of redis commands the store issues. Fetch reports
// found=false for a missing key.
type KeyValue interface {
	Fetch(ctx context.Context, key string) (payload []byte, found bool, err error)
	Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Redis keeps the latest session of each transaction under one key. A newer
// session of the same transaction replaces the older one.
type Redis[TData any] struct {
	kv     KeyValue
	ttl    time.Duration
	prefix string
	clock  func() time.Time

	// serializes the read-compare-delete in RemoveSession against writes
	mu sync.Mutex
}

// NewRedis builds a store on kv. A zero ttl keeps keys until the session is
// removed.
func NewRedis[TData any](kv KeyValue, ttl time.Duration) *Redis[TData] {
	return &Redis[TData]{
		kv:     kv,
		ttl:    ttl,
		prefix: defaultRedisPrefix,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// WithPrefix overrides the key prefix. Blank prefixes are ignored.
func (s *Redis[TData]) WithPrefix(prefix string) *Redis[TData] {
	if p := strings.TrimSpace(prefix); p != "" {
		s.prefix = p
	}
	return s
}

func (s *Redis[TData]) SessionStarted(ctx context.Context, snapshot saga.Snapshot[TData]) error {
	return s.write(ctx, snapshot, StatusRunning)
}

func (s *Redis[TData]) StepPrepared(ctx context.Context, snapshot saga.Snapshot[TData]) error {
	return s.write(ctx, snapshot, StatusRunning)
}

func (s *Redis[TData]) StepReceding(ctx context.Context, snapshot saga.Snapshot[TData]) error {
	return s.write(ctx, snapshot, StatusReceding)
}

// RemoveSession deletes the transaction key only while it still holds the
// given session.
func (s *Redis[TData]) RemoveSession(ctx context.Context, snapshot saga.Snapshot[TData]) error {
	if s.kv == nil {
		return errRedisUnset
	}
	if err := validateSnapshot(snapshot); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.key(snapshot.Transaction)
	rec, err := s.read(ctx, key)
	switch {
	case err != nil:
		return err
	case rec == nil, rec.Snapshot.SessionID != snapshot.SessionID:
		return nil
	}
	return s.kv.Delete(ctx, key)
}

func (s *Redis[TData]) RecoverTransaction(ctx context.Context, transaction string) (*saga.Snapshot[TData], error) {
	rec, err := s.Load(ctx, transaction)
	if rec == nil {
		return nil, err
	}
	return &rec.Snapshot, nil
}

// Load returns the record stored for transaction, nil when there is none.
func (s *Redis[TData]) Load(ctx context.Context, transaction string) (*Record[TData], error) {
	if s.kv == nil {
		return nil, errRedisUnset
	}
	if strings.TrimSpace(transaction) == "" {
		return nil, nil
	}
	return s.read(ctx, s.key(transaction))
}

func (s *Redis[TData]) write(ctx context.Context, snapshot saga.Snapshot[TData], status string) error {
	if s.kv == nil {
		return errRedisUnset
	}
	if err := validateSnapshot(snapshot); err != nil {
		return err
	}
	payload, err := json.Marshal(Record[TData]{Snapshot: snapshot, Status: status, UpdatedAt: s.clock()})
	if err != nil {
		return fmt.Errorf("encode session %s: %w", snapshot.SessionID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Put(ctx, s.key(snapshot.Transaction), payload, s.ttl)
}

func (s *Redis[TData]) read(ctx context.Context, key string) (*Record[TData], error) {
	payload, found, err := s.kv.Fetch(ctx, key)
	if err != nil || !found || len(payload) == 0 {
		return nil, err
	}
	rec := &Record[TData]{}
	if err := json.Unmarshal(payload, rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return rec, nil
}

func (s *Redis[TData]) key(transaction string) string {
	return s.prefix + strings.TrimSpace(transaction)
}

// GoRedis adapts a go-redis client to KeyValue.
type GoRedis struct {
	client redis.UniversalClient
}

// NewGoRedis wraps client.
func NewGoRedis(client redis.UniversalClient) *GoRedis {
	return &GoRedis{client: client}
}

// DialRedis parses a URL such as redis://localhost:6379/0 and connects
// lazily.
func DialRedis(url string) (*GoRedis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewGoRedis(redis.NewClient(opts)), nil
}

func (g *GoRedis) Fetch(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := g.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

func (g *GoRedis) Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	return g.client.Set(ctx, key, payload, ttl).Err()
}

func (g *GoRedis) Delete(ctx context.Context, key string) error {
	return g.client.Del(ctx, key).Err()
}

// Close releases the connection pool.
func (g *GoRedis) Close() error {
	return g.client.Close()
}
