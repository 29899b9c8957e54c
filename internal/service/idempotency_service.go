package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fitcoach_backend/internal/util"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	idempotencyPending   = "pending"
	idempotencyCompleted = "completed"

	idempotencyKeyPrefix = "idempotency:"
)

// IdempotencyRecord 一次带幂等键请求的处理状态
type IdempotencyRecord struct {
	Status      string          `json:"status"`
	RequestHash string          `json:"requestHash"`
	Response    json.RawMessage `json:"response,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// IdempotencyStore 幂等记录的存储后端
type IdempotencyStore interface {
	// Reserve 仅当 key 不存在时写入，返回是否写入成功
	Reserve(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type RedisIdempotencyStore struct {
	Client *redis.Client
}

func NewRedisIdempotencyStore(client *redis.Client) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{Client: client}
}

func (s *RedisIdempotencyStore) Reserve(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return s.Client.SetNX(ctx, key, value, ttl).Result()
}

func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (s *RedisIdempotencyStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.Client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisIdempotencyStore) Delete(ctx context.Context, key string) error {
	return s.Client.Del(ctx, key).Err()
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryIdempotencyStore 未启用 Redis 时的单实例实现
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryIdempotencyStore) lookup(key string) (memoryEntry, bool) {
	e, ok := s.entries[key]
	if ok && !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return e, ok
}

func (s *MemoryIdempotencyStore) Reserve(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lookup(key); ok {
		return false, nil
	}
	s.entries[key] = memoryEntry{value: value, expiresAt: s.now().Add(ttl)}
	return true, nil
}

func (s *MemoryIdempotencyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(key)
	return e.value, ok, nil
}

func (s *MemoryIdempotencyStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{value: value, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryIdempotencyStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

type IdempotencyService struct {
	store IdempotencyStore
	ttl   time.Duration
}

func NewIdempotencyService(store IdempotencyStore, ttl time.Duration) *IdempotencyService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyService{store: store, ttl: ttl}
}

// StorageKey 幂等键按用户和接口隔离后取哈希
func (s *IdempotencyService) StorageKey(userID, endpoint, key string) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s", userID, endpoint, key)))
	return idempotencyKeyPrefix + hex.EncodeToString(hash[:])
}

// RequestHash 对请求的规范化表示取哈希，用于识别同一幂等键下的不同请求
func (s *IdempotencyService) RequestHash(canonical []byte) string {
	hash := sha256.Sum256(canonical)
	return hex.EncodeToString(hash[:])
}

// Begin 首次请求返回 (nil, nil) 并占位；已完成的请求返回缓存的响应；处理中的返回 Conflict
// 同一个键对应的请求内容不一致时返回 ErrIdempotencyKeyReused
func (s *IdempotencyService) Begin(ctx context.Context, storageKey, requestHash string) (json.RawMessage, error) {
	pending, err := json.Marshal(IdempotencyRecord{
		Status:      idempotencyPending,
		RequestHash: requestHash,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	// 读取与占位之间记录可能过期，重试一次
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := s.store.Reserve(ctx, storageKey, pending, s.ttl)
		if err != nil {
			return nil, fmt.Errorf("reserve idempotency key: %w", err)
		}
		if ok {
			return nil, nil
		}

		raw, found, err := s.store.Get(ctx, storageKey)
		if err != nil {
			return nil, fmt.Errorf("read idempotency key: %w", err)
		}
		if !found {
			continue
		}

		var record IdempotencyRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, fmt.Errorf("decode idempotency record: %w", err)
		}
		if record.RequestHash != requestHash {
			return nil, util.ErrIdempotencyKeyReused
		}
		if record.Status == idempotencyCompleted {
			return record.Response, nil
		}
		return nil, util.ErrRequestInProgress
	}
	return nil, util.ErrRequestInProgress
}

func (s *IdempotencyService) Complete(ctx context.Context, storageKey, requestHash string, response interface{}) error {
	body, err := json.Marshal(response)
	if err != nil {
		return err
	}
	record, err := json.Marshal(IdempotencyRecord{
		Status:      idempotencyCompleted,
		RequestHash: requestHash,
		Response:    body,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return s.store.Set(ctx, storageKey, record, s.ttl)
}

// Abort 处理失败时释放占位，允许客户端用同一个键重试
func (s *IdempotencyService) Abort(ctx context.Context, storageKey string) error {
	return s.store.Delete(ctx, storageKey)
}
