package cache

// TierStats 汇总单层缓存的容量与命中情况。
type TierStats struct {
	Capacity  int64 `json:"capacity"`
	Size      int64 `json:"size"`
	Items     int   `json:"items"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// HitRate 返回命中率，尚无访问时为 0。
func (s TierStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Stats 是 Cacher 的整体快照。
type Stats struct {
	Memory TierStats `json:"memory"`
	Disk   TierStats `json:"disk"`

	Requests      int64 `json:"requests"`
	MemoryHits    int64 `json:"memory_hits"`
	DiskHits      int64 `json:"disk_hits"`
	ProducerCalls int64 `json:"producer_calls"`
	Bypassed      int64 `json:"bypassed"`
	Failures      int64 `json:"failures"`
	Pending       int   `json:"pending"`
}
