package media

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ObjectPathPrefix 是临时对象在 HTTP 面上的路径前缀。
const ObjectPathPrefix = "/-/objects/"

// Object 是一份已取回正文的本地引用。
type Object struct {
	ID        string
	Key       string
	Payload   []byte
	CreatedAt time.Time
}

// ObjectRegistry 保存短期有效的对象句柄。每次创建新句柄时先清理超时对象，
// 再按创建顺序丢弃最旧的对象，直到总字节数不超过 maxBytes。
type ObjectRegistry struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxBytes   int64
	now        func() time.Time
	objects    map[string]Object
	order      []string
	totalBytes int64
}

// NewObjectRegistry 创建注册表。ttl 非正时使用 DefaultHandleTTL；maxBytes 非正时不限制总量。
func NewObjectRegistry(ttl time.Duration, maxBytes int64) *ObjectRegistry {
	if ttl <= 0 {
		ttl = DefaultHandleTTL
	}
	return &ObjectRegistry{
		ttl:      ttl,
		maxBytes: maxBytes,
		now:      time.Now,
		objects:  make(map[string]Object),
	}
}

// Create 登记 payload 并返回新的对象 ID。单个 payload 超过上限时仍会登记，但会挤出其余全部对象。
func (r *ObjectRegistry) Create(key string, payload []byte) string {
	id := uuid.NewString()
	now := r.now()
	size := int64(len(payload))

	r.mu.Lock()
	defer r.mu.Unlock()
	r.purgeLocked(now)
	for r.maxBytes > 0 && len(r.objects) > 0 && r.totalBytes+size > r.maxBytes {
		r.dropOldestLocked()
	}
	r.objects[id] = Object{
		ID:        id,
		Key:       key,
		Payload:   payload,
		CreatedAt: now,
	}
	r.order = append(r.order, id)
	r.totalBytes += size
	return id
}

// Lookup 返回未超时的对象。
func (r *ObjectRegistry) Lookup(id string) (Object, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	obj, ok := r.objects[id]
	if !ok {
		return Object{}, false
	}
	if r.now().Sub(obj.CreatedAt) > r.ttl {
		r.removeLocked(id)
		return Object{}, false
	}
	return obj, true
}

// Revoke 释放句柄，返回该句柄此前是否存在。
func (r *ObjectRegistry) Revoke(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(id)
}

// Len 返回当前登记的对象数量。
func (r *ObjectRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.objects)
}

// TotalBytes 返回当前登记对象的正文总字节数。
func (r *ObjectRegistry) TotalBytes() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalBytes
}

// purgeLocked 从最旧的对象开始清理超时项。order 按创建时间递增，遇到未超时对象即可停止。
func (r *ObjectRegistry) purgeLocked(now time.Time) {
	for len(r.order) > 0 {
		id := r.order[0]
		obj, ok := r.objects[id]
		if ok && now.Sub(obj.CreatedAt) <= r.ttl {
			return
		}
		r.order = r.order[1:]
		if ok {
			r.removeLocked(id)
		}
	}
}

func (r *ObjectRegistry) dropOldestLocked() {
	for len(r.order) > 0 {
		id := r.order[0]
		r.order = r.order[1:]
		if r.removeLocked(id) {
			return
		}
	}
}

// removeLocked 只删除 map 中的记录，order 中的残留 ID 在清理时跳过。
func (r *ObjectRegistry) removeLocked(id string) bool {
	obj, ok := r.objects[id]
	if !ok {
		return false
	}
	delete(r.objects, id)
	r.totalBytes -= int64(len(obj.Payload))
	return true
}

// ObjectURL 返回对象在本地服务上的访问路径。
func ObjectURL(id string) string {
	return ObjectPathPrefix + id
}
