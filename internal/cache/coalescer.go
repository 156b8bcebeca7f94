package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Coalescer 保证同一 key 同时只有一个操作在执行，其余调用方等待并共享结果。
// 操作结束（成功或失败）时 key 立即释放，之后的调用会重新发起。
type Coalescer[T any] struct {
	group singleflight.Group

	mu      sync.Mutex
	pending map[string]int
}

// NewCoalescer 返回空的合并器。
func NewCoalescer[T any]() *Coalescer[T] {
	return &Coalescer[T]{pending: make(map[string]int)}
}

// Do 发起或加入 key 对应的操作。操作使用 context.WithoutCancel(ctx) 执行，
// 调用方自己的 ctx 结束时只是停止等待，操作继续完成并填充缓存。
// shared 表示结果由多个调用方共享。
func (c *Coalescer[T]) Do(ctx context.Context, key string, start func(context.Context) (T, error)) (T, bool, error) {
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		c.track(key, 1)
		defer c.track(key, -1)
		return start(detached)
	})

	select {
	case res := <-ch:
		value, _ := res.Val.(T)
		return value, res.Shared, res.Err
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	}
}

// Pending 返回正在执行的操作数量。
func (c *Coalescer[T]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Coalescer[T]) track(key string, delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[key] += delta
	if c.pending[key] <= 0 {
		delete(c.pending, key)
	}
}
