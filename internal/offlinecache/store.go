package offlinecache

import (
	"net/http"
	"sync"
	"time"
)

// CachedResponse 缓存的响应内容
type CachedResponse struct {
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// Clone 返回响应副本，调用方可安全修改
func (r *CachedResponse) Clone() *CachedResponse {
	if r == nil {
		return nil
	}
	body := make([]byte, len(r.Body))
	copy(body, r.Body)
	return &CachedResponse{
		Status:   r.Status,
		Header:   r.Header.Clone(),
		Body:     body,
		StoredAt: r.StoredAt,
	}
}

// Store 按代次 (epoch) 分组的响应内容存储。
//
// 每个缓存版本是一个独立代次，新版本激活时旧代次被整体回收，
// 升级不会留下过期资源。
type Store struct {
	mu     sync.RWMutex
	epochs map[string]map[string]*CachedResponse // epoch -> path -> response
}

// NewStore 创建内容存储
func NewStore() *Store {
	return &Store{
		epochs: make(map[string]map[string]*CachedResponse),
	}
}

// Put 写入一条缓存
func (s *Store) Put(epoch, path string, resp *CachedResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.epochs[epoch]
	if !ok {
		bucket = make(map[string]*CachedResponse)
		s.epochs[epoch] = bucket
	}
	bucket[path] = resp.Clone()
}

// Get 读取一条缓存
func (s *Store) Get(epoch, path string) (*CachedResponse, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket, ok := s.epochs[epoch]
	if !ok {
		return nil, false
	}
	resp, ok := bucket[path]
	if !ok {
		return nil, false
	}
	return resp.Clone(), true
}

// DeleteOtherEpochs 删除指定代次之外的所有代次，返回删除数量
func (s *Store) DeleteOtherEpochs(keep string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for epoch := range s.epochs {
		if epoch != keep {
			delete(s.epochs, epoch)
			deleted++
		}
	}
	return deleted
}

// Epochs 返回当前存在的代次列表
func (s *Store) Epochs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	epochs := make([]string, 0, len(s.epochs))
	for epoch := range s.epochs {
		epochs = append(epochs, epoch)
	}
	return epochs
}

// Size 返回指定代次的缓存条目数
func (s *Store) Size(epoch string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.epochs[epoch])
}
