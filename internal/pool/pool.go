// internal/pool/pool.go
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrClosed      = errors.New("pool: closed")
	ErrNotBorrowed = errors.New("pool: object not borrowed")

	// ErrFactoryPanic wraps a panic raised by Create or Activate.
	ErrFactoryPanic = errors.New("pool: factory panicked")
)

// Factory manages the lifecycle of pooled objects.
type Factory[K comparable, V any] interface {
	Create(ctx context.Context, key K) (V, error)

	// Activate runs before an object is handed to a borrower.
	Activate(ctx context.Context, key K, v V) error

	// Validate runs when an object is returned. Invalid objects are destroyed.
	Validate(key K, v V) bool

	// Passivate runs after a successful validation, before the object goes idle.
	Passivate(key K, v V) error

	Destroy(key K, v V) error
}

type Options struct {
	// OnSwallowedError receives destroy and passivate failures that are not returned to callers.
	OnSwallowedError func(error)
}

// Pool is a keyed pool holding at most one object per key.
// Borrowers of the same key are served in FIFO order and block until the object is free.
type Pool[K comparable, V any] struct {
	factory Factory[K, V]
	opts    Options

	mu     sync.Mutex
	closed bool
	slots  map[K]*slot[V]
}

type slot[V any] struct {
	borrowed bool
	hasIdle  bool
	idle     V
	waiters  []chan struct{}
}

func New[K comparable, V any](f Factory[K, V], opts Options) *Pool[K, V] {
	return &Pool[K, V]{
		factory: f,
		opts:    opts,
		slots:   make(map[K]*slot[V]),
	}
}

func (p *Pool[K, V]) slotLocked(key K) *slot[V] {
	s, ok := p.slots[key]
	if !ok {
		s = &slot[V]{}
		p.slots[key] = s
	}
	return s
}

// releaseLocked hands the slot to the oldest waiter, or frees it.
func (p *Pool[K, V]) releaseLocked(s *slot[V]) {
	if len(s.waiters) > 0 {
		ch := s.waiters[0]
		s.waiters = s.waiters[1:]
		close(ch)
		return
	}
	s.borrowed = false
}

func (p *Pool[K, V]) release(key K) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.slots[key]; ok {
		p.releaseLocked(s)
	}
}

// Borrow waits for exclusive use of the key's object, creating it when none is idle.
// Factory errors are returned and the slot is released for the next waiter.
func (p *Pool[K, V]) Borrow(ctx context.Context, key K) (V, error) {
	var zero V

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return zero, ErrClosed
	}
	s := p.slotLocked(key)
	if !s.borrowed {
		s.borrowed = true
		p.mu.Unlock()
		return p.prepare(ctx, key, s)
	}

	ch := make(chan struct{})
	s.waiters = append(s.waiters, ch)
	p.mu.Unlock()

	select {
	case <-ch:
		// prepare passes the slot on if ctx was cancelled at the same moment
		return p.prepare(ctx, key, s)
	case <-ctx.Done():
		p.mu.Lock()
		select {
		case <-ch:
			// handed over while giving up: pass it on
			p.releaseLocked(s)
		default:
			for i, w := range s.waiters {
				if w == ch {
					s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
					break
				}
			}
		}
		p.mu.Unlock()
		return zero, ctx.Err()
	}
}

// prepare runs with the slot held by the caller.
// A cancelled ctx hands the slot on without touching the idle object.
func (p *Pool[K, V]) prepare(ctx context.Context, key K, s *slot[V]) (V, error) {
	var zero V

	p.mu.Lock()
	if p.closed {
		p.releaseLocked(s)
		p.mu.Unlock()
		return zero, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		p.releaseLocked(s)
		p.mu.Unlock()
		return zero, err
	}
	v, ok := s.idle, s.hasIdle
	s.idle, s.hasIdle = zero, false
	p.mu.Unlock()

	if !ok {
		var err error
		v, err = p.create(ctx, key)
		if err != nil {
			p.release(key)
			return zero, fmt.Errorf("pool: create %v: %w", key, err)
		}
	}

	if err := p.activate(ctx, key, v); err != nil {
		p.destroy(key, v)
		p.release(key)
		return zero, fmt.Errorf("pool: activate %v: %w", key, err)
	}
	return v, nil
}

// create and activate turn factory panics into errors so the slot is always released.

func (p *Pool[K, V]) create(ctx context.Context, key K) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrFactoryPanic, r)
		}
	}()
	return p.factory.Create(ctx, key)
}

func (p *Pool[K, V]) activate(ctx context.Context, key K, v V) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrFactoryPanic, r)
		}
	}()
	return p.factory.Activate(ctx, key, v)
}

// Return gives back a borrowed object. It is validated and passivated, or destroyed.
func (p *Pool[K, V]) Return(key K, v V) error {
	p.mu.Lock()
	s, ok := p.slots[key]
	if !ok || !s.borrowed {
		p.mu.Unlock()
		return ErrNotBorrowed
	}
	p.mu.Unlock()

	keep := p.factory.Validate(key, v)
	if keep {
		if err := p.factory.Passivate(key, v); err != nil {
			p.swallow(fmt.Errorf("pool: passivate %v: %w", key, err))
			keep = false
		}
	}

	p.mu.Lock()
	keep = keep && !p.closed
	if keep {
		s.idle, s.hasIdle = v, true
	}
	p.releaseLocked(s)
	p.mu.Unlock()

	if !keep {
		p.destroy(key, v)
	}
	return nil
}

// Invalidate destroys a borrowed object and frees its slot.
func (p *Pool[K, V]) Invalidate(key K, v V) error {
	p.mu.Lock()
	s, ok := p.slots[key]
	if !ok || !s.borrowed {
		p.mu.Unlock()
		return ErrNotBorrowed
	}
	p.mu.Unlock()

	p.destroy(key, v)
	p.release(key)
	return nil
}

// Clear destroys the idle object of key. A borrowed object is not affected.
func (p *Pool[K, V]) Clear(key K) {
	var zero V

	p.mu.Lock()
	s, ok := p.slots[key]
	if !ok || !s.hasIdle {
		p.mu.Unlock()
		return
	}
	v := s.idle
	s.idle, s.hasIdle = zero, false
	if !s.borrowed {
		delete(p.slots, key)
	}
	p.mu.Unlock()

	p.destroy(key, v)
}

// Close destroys idle objects. Objects still borrowed are destroyed on return.
func (p *Pool[K, V]) Close() {
	var zero V

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true

	type idleObj struct {
		key K
		v   V
	}
	var idle []idleObj
	for k, s := range p.slots {
		if s.hasIdle {
			idle = append(idle, idleObj{k, s.idle})
			s.idle, s.hasIdle = zero, false
		}
	}
	p.mu.Unlock()

	for _, o := range idle {
		p.destroy(o.key, o.v)
	}
}

func (p *Pool[K, V]) NumIdle(key K) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.slots[key]; ok && s.hasIdle {
		return 1
	}
	return 0
}

func (p *Pool[K, V]) NumActive(key K) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.slots[key]; ok && s.borrowed {
		return 1
	}
	return 0
}

func (p *Pool[K, V]) NumWaiters(key K) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.slots[key]; ok {
		return len(s.waiters)
	}
	return 0
}

func (p *Pool[K, V]) destroy(key K, v V) {
	if err := p.factory.Destroy(key, v); err != nil {
		p.swallow(fmt.Errorf("pool: destroy %v: %w", key, err))
	}
}

func (p *Pool[K, V]) swallow(err error) {
	if p.opts.OnSwallowedError != nil {
		p.opts.OnSwallowedError(err)
	}
}
