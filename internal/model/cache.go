package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrClosed is returned by Get after Close.
	ErrClosed = errors.New("model cache closed")
	// ErrNoModel is returned when a Loader reports success without a value.
	ErrNoModel = errors.New("loader returned no model")
)

// Loader builds a model value.
type Loader[T any] func(ctx context.Context) (T, error)

// Cache loads a model on first Get and hands the same value to every later
// caller. Concurrent first callers share a single load. A failed load is
// not remembered, so the next Get tries again.
type Cache[T any] struct {
	name   string
	load   Loader[T]
	logger *zap.Logger
	group  singleflight.Group

	mu     sync.RWMutex
	value  T
	loaded bool
	closed bool
}

// NewCache returns an empty cache. name identifies the model in logs and
// errors.
func NewCache[T any](name string, load Loader[T], logger *zap.Logger) *Cache[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache[T]{name: name, load: load, logger: logger}
}

func (c *Cache[T]) current() (T, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		var zero T
		return zero, false, ErrClosed
	}
	return c.value, c.loaded, nil
}

// Get returns the cached model, loading it if needed. The load is detached
// from ctx so one impatient caller does not fail it for the others; ctx
// only bounds how long this caller waits.
func (c *Cache[T]) Get(ctx context.Context) (T, error) {
	var zero T
	if v, ok, err := c.current(); err != nil || ok {
		return v, err
	}

	ch := c.group.DoChan(c.name, func() (any, error) {
		if v, ok, err := c.current(); err != nil || ok {
			return v, err
		}

		start := time.Now()
		v, err := c.load(context.WithoutCancel(ctx))
		if err == nil && any(v) == nil {
			err = ErrNoModel
		}
		if err != nil {
			c.logger.Warn("model load failed", zap.String("model", c.name), zap.Error(err))
			return nil, err
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			closeValue(v)
			return nil, ErrClosed
		}
		c.value, c.loaded = v, true
		c.logger.Info("model loaded", zap.String("model", c.name), zap.Duration("took", time.Since(start)))
		return v, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return zero, fmt.Errorf("load %s: %w", c.name, r.Err)
		}
		v, ok := r.Val.(T)
		if !ok {
			return zero, fmt.Errorf("load %s: %w", c.name, ErrNoModel)
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Loaded reports whether a model is currently cached.
func (c *Cache[T]) Loaded() bool {
	_, ok, _ := c.current()
	return ok
}

// Close releases the cached model if it implements io.Closer. Later Gets
// fail with ErrClosed.
func (c *Cache[T]) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if !c.loaded {
		return nil
	}
	var zero T
	v := c.value
	c.value, c.loaded = zero, false
	return closeValue(v)
}

func closeValue(v any) error {
	if closer, ok := v.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
