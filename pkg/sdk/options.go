package jsonstore

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

const (
	backendMemory   = "memory"
	backendSQLite   = "sqlite"
	backendBolt     = "bolt"
	backendJSONFile = "jsonfile"
	backendRedis    = "redis"
)

const defaultIndexPath = "jsonstore.db"

type clientConfig struct {
	backend   string
	path      string // document file for bolt and jsonfile
	indexPath string

	redisAddrs    []string
	redisPassword string
	redisPrefix   string

	poolSize       int
	reindexWorkers int
	uuids          bool

	logger     *slog.Logger
	zapLogger  *zap.Logger
	metricsReg prometheus.Registerer
}

// WithSQLite keeps documents and the index in one SQLite file. Writes are
// atomic across both. This is the default with path "jsonstore.db".
func WithSQLite(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.backend = backendSQLite
		c.indexPath = path
	})
}

// WithMemory keeps documents in process memory. The index still needs a
// file, see WithIndexPath.
func WithMemory() Option {
	return optionFunc(func(c *clientConfig) {
		c.backend = backendMemory
	})
}

// WithBolt keeps documents in a bbolt file.
func WithBolt(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.backend = backendBolt
		c.path = path
	})
}

// WithJSONFile keeps documents in a single JSON file shared safely between processes.
func WithJSONFile(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.backend = backendJSONFile
		c.path = path
	})
}

// WithRedis keeps documents in Redis under the given key prefix
// (empty for the default).
func WithRedis(addr, password, prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.backend = backendRedis
		c.redisAddrs = nil
		if addr != "" {
			c.redisAddrs = []string{addr}
		}
		c.redisPassword = password
		c.redisPrefix = prefix
	})
}

// WithIndexPath sets the SQLite file of the secondary index for backends
// other than WithSQLite.
func WithIndexPath(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.indexPath = path
	})
}

// WithPoolSize sets the number of SQLite worker handles.
func WithPoolSize(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.poolSize = n
	})
}

// WithReindexWorkers sets the decode fan-out used by Reindex.
func WithReindexWorkers(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.reindexWorkers = n
	})
}

// WithUUIDs generates random UUIDs for new entries instead of a numeric sequence.
func WithUUIDs() Option {
	return optionFunc(func(c *clientConfig) {
		c.uuids = true
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithZapLogger receives the engine's internal logs (index failures, reindex).
func WithZapLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.zapLogger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
