package sourcemap

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"
)

// ErrClosed is returned by a Cache that has been torn down.
var ErrClosed = errors.New("sourcemap: cache closed")

// Cache holds one Consumer per source map file for the duration of a remapping pass.
//
// Consumers are loaded on first use. Looking up, loading and storing an entry
// happens as a single step per key, so two requests for the same map never
// load it twice even when they race. A failed load is not stored.
type Cache struct {
	loader   Loader
	metrics  *Metrics
	sessions *xsync.MapOf[string, Consumer]
	loaded   atomic.Int64
	closed   atomic.Bool
}

// NewCache creates an empty cache. A nil metrics records into a private registry.
func NewCache(loader Loader, metrics *Metrics) *Cache {
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}
	return &Cache{
		loader:   loader,
		metrics:  metrics,
		sessions: xsync.NewMapOf[string, Consumer](),
	}
}

// Resolve translates a generated position (1-indexed line, 0-indexed column)
// through the source map at mapFilePath. The map file must exist; callers
// skip records whose map is missing before calling Resolve.
func (c *Cache) Resolve(mapFilePath string, line, column int) (Position, bool, error) {
	if c.closed.Load() {
		return Position{}, false, ErrClosed
	}

	consumer, err := c.session(mapFilePath)
	if err != nil {
		return Position{}, false, err
	}

	pos, ok := consumer.OriginalPosition(line, column)
	return pos, ok, nil
}

// Loaded returns the number of maps loaded since the cache was created.
func (c *Cache) Loaded() int {
	return int(c.loaded.Load())
}

func (c *Cache) session(path string) (Consumer, error) {
	if consumer, ok := c.sessions.Load(path); ok {
		c.metrics.recordHit()
		return consumer, nil
	}

	var (
		loadErr error
		hit     bool
	)
	consumer, _ := c.sessions.Compute(path, func(old Consumer, loaded bool) (Consumer, bool) {
		if loaded {
			hit = true
			return old, false
		}

		start := time.Now()
		consumer, err := c.loader.Load(path)
		c.metrics.recordLoad(time.Since(start), err)
		if err != nil {
			loadErr = err
			return nil, true
		}
		c.loaded.Add(1)
		return consumer, false
	})

	if hit {
		c.metrics.recordHit()
	} else {
		c.metrics.recordMiss()
	}
	if loadErr != nil {
		return nil, loadErr
	}
	return consumer, nil
}

// Close releases every cached consumer. It must be called once, after the last Resolve.
func (c *Cache) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	var errs []error
	c.sessions.Range(func(path string, consumer Consumer) bool {
		if err := consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		}
		return true
	})
	c.sessions.Clear()

	if len(errs) > 0 {
		return fmt.Errorf("errors closing source maps: %w", errors.Join(errs...))
	}
	return nil
}
