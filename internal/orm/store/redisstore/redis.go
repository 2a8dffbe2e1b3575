// Package redisstore stores documents in Redis, one hash per kind
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/conduit-lang/entitycore/internal/orm/store"
)

// Store implements store.Store on Redis hashes
type Store struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// Config holds Redis-specific configuration
type Config struct {
	// Addr is the Redis server address (host:port)
	Addr string
	// Password is the Redis password (optional)
	Password string
	// DB is the Redis database number
	DB int
	// Prefix is prepended to every hash key
	Prefix string
}

// DefaultConfig returns a default Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:   "localhost:6379",
		Prefix: "entitycore:",
	}
}

// New connects to Redis and verifies the connection
func New(ctx context.Context, config Config, logger *zap.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.Addr, err)
	}

	return NewWithClient(client, config.Prefix, logger), nil
}

// NewWithClient creates a store with an existing client
func NewWithClient(client *redis.Client, prefix string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, prefix: prefix, logger: logger}
}

func (s *Store) hashKey(kind string) string {
	return s.prefix + kind
}

// Scan implements store.Store
func (s *Store) Scan(ctx context.Context, kind string) ([]store.Document, error) {
	if kind == "" {
		return nil, store.ErrEmptyKind
	}

	values, err := s.client.HGetAll(ctx, s.hashKey(kind)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan %s: %w", kind, err)
	}

	docs := make([]store.Document, 0, len(values))
	for key, body := range values {
		docs = append(docs, store.Document{Key: key, Body: []byte(body)})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Key < docs[j].Key })
	return docs, nil
}

// Apply implements store.Store. The batch runs in a MULTI/EXEC transaction.
func (s *Store) Apply(ctx context.Context, ops []store.Op) error {
	if err := store.Validate(ops); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range ops {
			if op.Delete {
				pipe.HDel(ctx, s.hashKey(op.Kind), op.Key)
			} else {
				pipe.HSet(ctx, s.hashKey(op.Kind), op.Key, op.Body)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("%w: %v", store.ErrConflict, err)
		}
		return fmt.Errorf("failed to apply %d ops: %w", len(ops), err)
	}

	s.logger.Debug("applied document batch", zap.Int("ops", len(ops)))
	return nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}
