package cache

import (
	"context"
	"sort"
)

// 默认容量 512 MiB，淘汰至 80% 水位。
const (
	DefaultCapacityBytes int64   = 512 * 1024 * 1024
	DefaultWatermark     float64 = 0.8
)

// sweepStore 是淘汰扫描所需的最小存储能力，Adapter 与 Store 都满足。
type sweepStore interface {
	List(ctx context.Context) ([]Entry, error)
	Delete(ctx context.Context, key string) error
}

// Evictor 在写入前执行容量扫描：超出容量时按 StoredAt 从旧到新逐条删除，
// 直到总量回落到 Watermark*CapacityBytes 以下，留出余量避免每次写入都触发淘汰。
type Evictor struct {
	CapacityBytes int64
	Watermark     float64
}

// SweepReport 汇总一次扫描的结果，便于日志与测试断言。
type SweepReport struct {
	Scanned    int
	Evicted    []string
	FreedBytes int64
	Failed     int
	// TotalBytes 是扫描结束时已有条目与待写入正文的合计。
	TotalBytes int64
	// Oversized 表示待写入正文本身已超过容量；写入仍会进行，容量不变式对其例外。
	Oversized bool
}

// NewEvictor 构造淘汰器，非法参数回退到默认值。
func NewEvictor(capacity int64, watermark float64) Evictor {
	if capacity <= 0 {
		capacity = DefaultCapacityBytes
	}
	if watermark <= 0 || watermark > 1 {
		watermark = DefaultWatermark
	}
	return Evictor{CapacityBytes: capacity, Watermark: watermark}
}

// Target 返回淘汰目标水位（字节）。
func (e Evictor) Target() int64 {
	return int64(float64(e.CapacityBytes) * e.Watermark)
}

// Sweep 计入 incoming 字节后检查容量，必要时淘汰最旧条目。单条删除失败会被计数并跳过，
// 列表失败时直接返回，写入照常进行。
func (e Evictor) Sweep(ctx context.Context, store sweepStore, incoming int64) (SweepReport, error) {
	report := SweepReport{Oversized: incoming > e.CapacityBytes}

	entries, err := store.List(ctx)
	if err != nil {
		report.TotalBytes = incoming
		return report, err
	}
	report.Scanned = len(entries)

	total := incoming
	for _, entry := range entries {
		total += entry.SizeBytes
	}
	report.TotalBytes = total
	if total <= e.CapacityBytes {
		return report, nil
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].StoredAt.Equal(entries[j].StoredAt) {
			return entries[i].Key < entries[j].Key
		}
		return entries[i].StoredAt.Before(entries[j].StoredAt)
	})

	target := e.Target()
	for _, entry := range entries {
		if total <= target {
			break
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := store.Delete(ctx, entry.Key); err != nil {
			report.Failed++
			continue
		}
		total -= entry.SizeBytes
		report.FreedBytes += entry.SizeBytes
		report.Evicted = append(report.Evicted, entry.Key)
	}
	report.TotalBytes = total
	return report, nil
}
