package offlinecache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"agencysite/backend/internal/pool"
)

// startWorker 启动一个连接到指定上游的工作协程
func startWorker(t *testing.T, upstream string, cfg Config) (*Worker, *Store) {
	t.Helper()

	store := NewStore()
	log := zap.NewNop()

	bgPool := pool.NewWorkerPool(2, 8, log)
	ctx, cancel := context.WithCancel(context.Background())
	bgPool.Start(ctx)

	cfg.UpstreamURL = upstream
	if cfg.Version == "" {
		cfg.Version = "static-v1"
	}
	if cfg.ShellPath == "" {
		cfg.ShellPath = "/"
	}
	if cfg.OfflinePath == "" {
		cfg.OfflinePath = "/offline.html"
	}

	worker := NewWorker(store, cfg, bgPool, log)
	done := make(chan struct{})
	go func() {
		_ = worker.Run(ctx)
		close(done)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})
	return worker, store
}

func TestWorkerInstallActivate(t *testing.T) {
	ctx := context.Background()

	t.Run("安装预取关键资源", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("content of " + r.URL.Path))
		}))
		defer server.Close()

		worker, store := startWorker(t, server.URL, Config{
			Precache: []string{"/", "/offline.html", "/favicon.ico"},
		})

		worker.Install(ctx)

		assert.Equal(t, 3, store.Size("static-v1"))
		resp, ok := store.Get("static-v1", "/offline.html")
		assert.True(t, ok)
		assert.Equal(t, []byte("content of /offline.html"), resp.Body)
	})

	t.Run("预取失败不阻止安装", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok"))
		}))
		server.Close() // 上游不可达

		worker, store := startWorker(t, server.URL, Config{
			Precache: []string{"/", "/offline.html"},
		})

		// 不应 panic 或卡死
		worker.Install(ctx)

		assert.Equal(t, 0, store.Size("static-v1"))
	})

	t.Run("激活回收旧代次", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok"))
		}))
		defer server.Close()

		worker, store := startWorker(t, server.URL, Config{Version: "static-v2"})
		store.Put("static-v1", "/", &CachedResponse{Status: 200, Header: http.Header{}, Body: []byte("old")})
		store.Put("static-v2", "/", &CachedResponse{Status: 200, Header: http.Header{}, Body: []byte("new")})

		worker.Activate(ctx)

		assert.Equal(t, []string{"static-v2"}, store.Epochs())
	})
}

func TestWorkerFetch(t *testing.T) {
	ctx := context.Background()

	t.Run("非GET请求直通", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok"))
		}))
		defer server.Close()

		worker, _ := startWorker(t, server.URL, Config{})

		resp := worker.HandleFetch(ctx, http.MethodPost, "/contact", "text/html")

		assert.Nil(t, resp)
	})

	t.Run("导航在线时走网络并缓存", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>page</html>"))
		}))
		defer server.Close()

		worker, store := startWorker(t, server.URL, Config{})

		resp := worker.HandleFetch(ctx, http.MethodGet, "/about", "text/html")

		assert.NotNil(t, resp)
		assert.Equal(t, []byte("<html>page</html>"), resp.Body)

		_, cached := store.Get("static-v1", "/about")
		assert.True(t, cached)
	})

	t.Run("导航离线回退链按优先级取数", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close() // 上游不可达

		worker, store := startWorker(t, server.URL, Config{})

		// 精确路径命中优先
		store.Put("static-v1", "/about", &CachedResponse{Status: 200, Header: http.Header{}, Body: []byte("exact")})
		store.Put("static-v1", "/", &CachedResponse{Status: 200, Header: http.Header{}, Body: []byte("shell")})
		store.Put("static-v1", "/offline.html", &CachedResponse{Status: 200, Header: http.Header{}, Body: []byte("offline")})

		resp := worker.HandleFetch(ctx, http.MethodGet, "/about", "text/html")
		assert.Equal(t, []byte("exact"), resp.Body)

		// 精确路径缺失时落到站点外壳
		resp = worker.HandleFetch(ctx, http.MethodGet, "/pricing", "text/html")
		assert.Equal(t, []byte("shell"), resp.Body)
	})

	t.Run("上游错误页不进缓存不污染回退链", func(t *testing.T) {
		var upstreamDown atomic.Bool
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if upstreamDown.Load() {
				panic(http.ErrAbortHandler)
			}
			if r.URL.Path == "/about" {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("oops 500"))
				return
			}
			w.Write([]byte("shell"))
		}))
		defer server.Close()

		worker, store := startWorker(t, server.URL, Config{})
		store.Put("static-v1", "/", &CachedResponse{Status: 200, Header: http.Header{}, Body: []byte("shell")})

		// 在线时网络优先，错误页原样透传但不落缓存
		resp := worker.HandleFetch(ctx, http.MethodGet, "/about", "text/html")
		assert.Equal(t, http.StatusInternalServerError, resp.Status)
		_, cached := store.Get("static-v1", "/about")
		assert.False(t, cached)

		// 断网后回退链落到完好的站点外壳，而不是之前的错误页
		upstreamDown.Store(true)
		resp = worker.HandleFetch(ctx, http.MethodGet, "/about", "text/html")
		assert.Equal(t, http.StatusOK, resp.Status)
		assert.Equal(t, []byte("shell"), resp.Body)
	})

	t.Run("导航成功时后台刷新站点外壳", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/" {
				w.Write([]byte("fresh shell"))
				return
			}
			w.Write([]byte("<html>page</html>"))
		}))
		defer server.Close()

		worker, store := startWorker(t, server.URL, Config{})
		store.Put("static-v1", "/", &CachedResponse{Status: 200, Header: http.Header{}, Body: []byte("stale shell")})

		worker.HandleFetch(ctx, http.MethodGet, "/about", "text/html")

		assert.Eventually(t, func() bool {
			cached, ok := store.Get("static-v1", "/")
			return ok && string(cached.Body) == "fresh shell"
		}, 2*time.Second, 20*time.Millisecond)
	})

	t.Run("导航全部回退落空返回内联兜底页", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		worker, _ := startWorker(t, server.URL, Config{})

		resp := worker.HandleFetch(ctx, http.MethodGet, "/anything", "text/html")

		assert.NotNil(t, resp)
		assert.Equal(t, http.StatusOK, resp.Status)
		assert.Contains(t, string(resp.Body), "离线")
	})

	t.Run("静态资源缓存命中后后台再验证", func(t *testing.T) {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.Write([]byte("fresh css"))
		}))
		defer server.Close()

		worker, store := startWorker(t, server.URL, Config{})
		store.Put("static-v1", "/app.css", &CachedResponse{Status: 200, Header: http.Header{}, Body: []byte("stale css")})

		resp := worker.HandleFetch(ctx, http.MethodGet, "/app.css", "text/css")

		// 立即返回的是缓存副本
		assert.Equal(t, []byte("stale css"), resp.Body)

		// 后台再验证最终更新缓存
		assert.Eventually(t, func() bool {
			cached, ok := store.Get("static-v1", "/app.css")
			return ok && string(cached.Body) == "fresh css"
		}, 2*time.Second, 20*time.Millisecond)
		assert.GreaterOrEqual(t, hits.Load(), int32(1))
	})

	t.Run("静态资源未缓存时走网络", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("js code"))
		}))
		defer server.Close()

		worker, store := startWorker(t, server.URL, Config{})

		resp := worker.HandleFetch(ctx, http.MethodGet, "/app.js", "*/*")

		assert.Equal(t, []byte("js code"), resp.Body)
		_, cached := store.Get("static-v1", "/app.js")
		assert.True(t, cached)
	})

	t.Run("其他请求网络失败时用缓存兜底", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		worker, store := startWorker(t, server.URL, Config{})
		store.Put("static-v1", "/data.json", &CachedResponse{Status: 200, Header: http.Header{}, Body: []byte(`{"a":1}`)})

		resp := worker.HandleFetch(ctx, http.MethodGet, "/data.json", "application/json")

		assert.NotNil(t, resp)
		assert.Equal(t, []byte(`{"a":1}`), resp.Body)
	})

	t.Run("其他请求网络和缓存都失败返回nil", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		worker, _ := startWorker(t, server.URL, Config{})

		resp := worker.HandleFetch(ctx, http.MethodGet, "/data.json", "application/json")

		assert.Nil(t, resp)
	})
}
