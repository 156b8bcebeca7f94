package cache

import (
	"context"
	"fmt"
	"math"
)

// Key 唯一定位一个缓存条目，Identifier 对应一级目录，Name 可包含 "/"。
type Key struct {
	Identifier string
	Name       string
}

// String 返回内存层使用的键：identifier + "." + name。
func (k Key) String() string {
	return k.Identifier + "." + k.Name
}

// Producer 生成缓存内容，返回值必须是 string 或 []byte。
type Producer func(ctx context.Context) (any, error)

// Tier 标识一次查找最终由哪一层满足。
type Tier string

const (
	TierMemory Tier = "memory"
	TierDisk   Tier = "disk"
	TierMiss   Tier = "miss"
	TierBypass Tier = "bypass"
)

// Result 是 Lookup 的完整结果，Shared 表示调用方复用了他人发起的操作。
type Result struct {
	Content string
	Tier    Tier
	Shared  bool
}

// MemoryBudget 把 MB 配置换算为内存层字节预算（按每字符 2 字节折半）。
// 条目大小是整数，向下取整后 size <= budget 与直接和浮点预算比较等价。
func MemoryBudget(mb float64) int64 {
	return int64(math.Floor(mb * 1_000_000 / 2))
}

// DiskBudget 把 MB 配置换算为磁盘层字节预算，取整方式同 MemoryBudget。
func DiskBudget(mb float64) int64 {
	return int64(math.Floor(mb * 1_000_000))
}

func contentOf(v any) (string, error) {
	switch c := v.(type) {
	case string:
		return c, nil
	case []byte:
		return string(c), nil
	default:
		return "", &TypeMismatchError{Type: fmt.Sprintf("%T", v)}
	}
}
