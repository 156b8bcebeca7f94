package cache

import (
	"cmp"
	"slices"
	"time"
)

// lruItem 是两层缓存共享的淘汰排序视图。
type lruItem interface {
	lastUsed() time.Time
	order() uint64
}

// sortLeastRecentlyUsed 按 lastUsedAt 升序排列，时间相同时按插入顺序。
// seq 唯一，因此结果与 map 遍历顺序无关。
func sortLeastRecentlyUsed[T lruItem](items []T) {
	slices.SortStableFunc(items, func(a, b T) int {
		if c := a.lastUsed().Compare(b.lastUsed()); c != 0 {
			return c
		}
		return cmp.Compare(a.order(), b.order())
	})
}
