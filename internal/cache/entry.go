package cache

import (
	"strings"
	"time"
)

// Entry 是缓存的最小存储单元。SizeBytes 冗余保存正文长度，淘汰扫描时无需读取正文。
type Entry struct {
	Key       string    `json:"key"`
	Payload   []byte    `json:"-"`
	SizeBytes int64     `json:"size_bytes"`
	StoredAt  time.Time `json:"stored_at"`
}

// NewEntry 以实际正文长度构造 Entry，调用方提供的元数据不会参与 SizeBytes 计算。
func NewEntry(key string, payload []byte, storedAt time.Time) *Entry {
	return &Entry{
		Key:       key,
		Payload:   payload,
		SizeBytes: int64(len(payload)),
		StoredAt:  storedAt.UTC(),
	}
}

// NormalizePath 去掉逻辑路径开头的分隔符，使 "/a/b" 与 "a/b" 指向同一条目。
func NormalizePath(logicalPath string) string {
	return strings.TrimLeft(strings.TrimSpace(logicalPath), `/\`)
}

// DeriveKey 将命名空间与规范化后的逻辑路径拼接成缓存键，结果稳定且不同路径互不冲突。
func DeriveKey(namespace, logicalPath string) string {
	rel := NormalizePath(logicalPath)
	if namespace == "" {
		return rel
	}
	return namespace + ":" + rel
}

// KeyDeriver 固定命名空间，供编排层反复派生键。
type KeyDeriver struct {
	Namespace string
}

// Key 返回 logicalPath 对应的缓存键。
func (d KeyDeriver) Key(logicalPath string) string {
	return DeriveKey(d.Namespace, logicalPath)
}
