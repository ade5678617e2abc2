package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"agencysite/backend/internal/storage"
)

// Store 文件系统键值存储实现
//
// 每个键对应数据目录下的一个 .json 文件，进程重启后数据仍在。
// 适合单机部署的站点把发件箱落在本地磁盘。
type Store struct {
	mu       sync.Mutex
	basePath string
}

// NewStore 创建文件系统存储实例
func NewStore(basePath string) (*Store, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path is required")
	}

	// 确保数据目录存在
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Store{basePath: basePath}, nil
}

// Get 读取键对应的文件内容
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, err := os.ReadFile(s.keyPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return content, nil
}

// Set 写入键值，先写临时文件再重命名保证原子性
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.keyPath(key)
	tmp := target + ".tmp"

	if err := os.WriteFile(tmp, value, 0644); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("failed to commit key file: %w", err)
	}
	return nil
}

// Remove 删除键对应的文件，文件不存在时静默成功
func (s *Store) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.keyPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove key file: %w", err)
	}
	return nil
}

// keyPath 把键转换为安全的文件路径
//
// 键中的冒号和斜杠替换为下划线，防止逃出数据目录。
func (s *Store) keyPath(key string) string {
	safe := strings.NewReplacer(":", "_", "/", "_", "\\", "_", "..", "_").Replace(key)
	return filepath.Join(s.basePath, safe+".json")
}
