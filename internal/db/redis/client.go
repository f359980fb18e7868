package redis

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/jsonstore/internal/db"
)

var (
	_ db.DocumentStore = (*Store)(nil)
	_ db.Pinger        = (*Store)(nil)
)

// DefaultPrefix namespaces document keys when Config.Prefix is empty.
const DefaultPrefix = "jsonstore:doc:"

const (
	readyBackoffMin = 50 * time.Millisecond
	readyBackoffMax = time.Second
)

// Config holds connection parameters for a Redis document store.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int
	// Prefix is prepended to every document id to form its key.
	Prefix string
}

// Store keeps each document as a plain string key under a prefix.
type Store struct {
	client rueidis.Client
	prefix string
	closed atomic.Bool
}

// NewStore connects to Redis. Client-side caching is disabled since
// documents are read once per request.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, &db.Error{Op: db.OpOpen, Err: errors.New("at least one address is required")}
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, &db.Error{Op: db.OpOpen, Err: err}
	}
	return newStore(client, cfg.Prefix), nil
}

func newStore(c rueidis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: c, prefix: prefix}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return db.ErrClosed
	}
	if err := s.client.Do(ctx, s.b().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close shuts down the client. Calling it twice is a no-op.
func (s *Store) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.client.Close()
	}
	return nil
}

// WaitForReady pings with a capped backoff until the server answers or
// timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	delay := readyBackoffMin
	for {
		err := s.Ping(ctx)
		if err == nil || errors.Is(err, db.ErrClosed) {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("redis not ready after %s: %w", timeout, err)
		case <-time.After(delay):
		}
		delay = min(delay*2, readyBackoffMax)
	}
}

func (s *Store) do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return s.client.Do(ctx, cmd)
}

func (s *Store) b() rueidis.Builder {
	return s.client.B()
}

func (s *Store) key(id string) string { return s.prefix + id }
