package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestProbe(t *testing.T) {
	ctx := context.Background()
	log := zap.NewNop()

	t.Run("探测端点返回204判定在线", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		probe := New(server.URL+"/ping", server.URL, 2500*time.Millisecond, log)

		assert.True(t, probe.IsOnline(ctx))
	})

	t.Run("服务器错误响应仍判定在线", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		probe := New(server.URL+"/ping", server.URL, 2500*time.Millisecond, log)

		assert.True(t, probe.IsOnline(ctx))
	})

	t.Run("连接失败判定离线", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close() // 立即关闭，后续请求将连接失败

		probe := New(server.URL+"/ping", server.URL, 500*time.Millisecond, log)

		assert.False(t, probe.IsOnline(ctx))
	})

	t.Run("探测端点失败时回退站点根", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		dead.Close()

		probe := New(dead.URL+"/ping", server.URL+"/", 500*time.Millisecond, log)

		assert.True(t, probe.IsOnline(ctx))
	})

	t.Run("离线提示直接短路", func(t *testing.T) {
		requested := false
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requested = true
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		probe := New(server.URL+"/ping", server.URL, 2500*time.Millisecond, log,
			WithHint(func() (bool, bool) { return false, true }))

		assert.False(t, probe.IsOnline(ctx))
		assert.False(t, requested, "离线提示下不应发出探测请求")
	})

	t.Run("在线提示仍需实测验证", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		probe := New(server.URL+"/ping", server.URL, 500*time.Millisecond, log,
			WithHint(func() (bool, bool) { return true, true }))

		assert.False(t, probe.IsOnline(ctx))
	})

	t.Run("探测请求附带缓存破坏参数", func(t *testing.T) {
		var query string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query = r.URL.RawQuery
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		probe := New(server.URL+"/ping", server.URL, 2500*time.Millisecond, log)
		probe.IsOnline(ctx)

		assert.Contains(t, query, "t=")
	})

	t.Run("超时判定离线", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(300 * time.Millisecond)
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		probe := New(server.URL+"/ping", "", 50*time.Millisecond, log)

		assert.False(t, probe.IsOnline(ctx))
	})
}
