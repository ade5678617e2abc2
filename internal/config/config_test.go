package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	// 保存原始环境变量
	originalEnvs := make(map[string]string)
	envKeys := []string{
		"AGENCYSITE_SERVER_HOST",
		"AGENCYSITE_SERVER_PORT",
		"AGENCYSITE_CONTACT_PROVIDER_URL",
		"AGENCYSITE_CONTACT_COOLDOWN",
		"AGENCYSITE_CONTACT_ENQUEUE_ON_FAILURE",
		"AGENCYSITE_PROBE_PING_URL",
		"AGENCYSITE_PROBE_FALLBACK_URL",
		"AGENCYSITE_PROBE_TIMEOUT",
		"AGENCYSITE_FLUSH_INTERVAL",
		"AGENCYSITE_STORAGE_BACKEND",
		"AGENCYSITE_CACHE_PRECACHE",
		"AGENCYSITE_LOG_LEVEL",
		"AGENCYSITE_LOG_DEVELOPMENT",
	}

	for _, key := range envKeys {
		originalEnvs[key] = os.Getenv(key)
	}

	// 测试后恢复环境变量
	defer func() {
		for key, value := range originalEnvs {
			if value == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, value)
			}
		}
	}()

	t.Run("加载默认配置成功", func(t *testing.T) {
		// 清除所有环境变量
		for _, key := range envKeys {
			os.Unsetenv(key)
		}

		cfg, err := Load()

		assert.NoError(t, err)
		assert.NotNil(t, cfg)

		// 验证默认值
		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, time.Hour, cfg.Contact.Cooldown)
		assert.Equal(t, 15*time.Second, cfg.Contact.ProviderTimeout)
		assert.False(t, cfg.Contact.EnqueueOnFailure)
		// 相对探测路径必须被补全为绝对 URL，否则探测永远离线
		assert.Equal(t, "http://127.0.0.1:8080/ping", cfg.Probe.PingURL)
		assert.Equal(t, "http://127.0.0.1:8080/", cfg.Probe.FallbackURL)
		assert.Equal(t, 2500*time.Millisecond, cfg.Probe.Timeout)
		assert.Equal(t, 8*time.Second, cfg.Flush.Interval)
		assert.Equal(t, "", cfg.Flush.Arbiter)
		assert.Equal(t, "static-v1", cfg.Cache.Version)
		assert.Equal(t, []string{"/", "/offline.html", "/favicon.ico"}, cfg.Cache.Precache)
		assert.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
		assert.Equal(t, "memory", cfg.Storage.Backend)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.False(t, cfg.Log.Development)
	})

	t.Run("加载自定义配置成功", func(t *testing.T) {
		os.Setenv("AGENCYSITE_SERVER_HOST", "127.0.0.1")
		os.Setenv("AGENCYSITE_SERVER_PORT", "9090")
		os.Setenv("AGENCYSITE_CONTACT_PROVIDER_URL", "https://mail.example.com/submit")
		os.Setenv("AGENCYSITE_CONTACT_COOLDOWN", "30m")
		os.Setenv("AGENCYSITE_CONTACT_ENQUEUE_ON_FAILURE", "true")
		os.Setenv("AGENCYSITE_PROBE_TIMEOUT", "1s")
		os.Setenv("AGENCYSITE_FLUSH_INTERVAL", "5s")
		os.Setenv("AGENCYSITE_STORAGE_BACKEND", "filesystem")
		os.Setenv("AGENCYSITE_CACHE_PRECACHE", "/,/app.css")

		cfg, err := Load()

		assert.NoError(t, err)
		assert.NotNil(t, cfg)
		assert.Equal(t, "127.0.0.1", cfg.Server.Host)
		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, "https://mail.example.com/submit", cfg.Contact.ProviderURL)
		assert.Equal(t, 30*time.Minute, cfg.Contact.Cooldown)
		assert.True(t, cfg.Contact.EnqueueOnFailure)
		assert.Equal(t, time.Second, cfg.Probe.Timeout)
		assert.Equal(t, 5*time.Second, cfg.Flush.Interval)
		assert.Equal(t, "filesystem", cfg.Storage.Backend)
		assert.Equal(t, []string{"/", "/app.css"}, cfg.Cache.Precache)
	})

	t.Run("相对探测路径按服务地址补全", func(t *testing.T) {
		os.Setenv("AGENCYSITE_SERVER_HOST", "10.0.0.5")
		os.Setenv("AGENCYSITE_SERVER_PORT", "9090")
		os.Setenv("AGENCYSITE_PROBE_PING_URL", "/ping")
		defer func() {
			os.Unsetenv("AGENCYSITE_SERVER_HOST")
			os.Unsetenv("AGENCYSITE_SERVER_PORT")
			os.Unsetenv("AGENCYSITE_PROBE_PING_URL")
		}()

		cfg, err := Load()

		assert.NoError(t, err)
		assert.Equal(t, "http://10.0.0.5:9090/ping", cfg.Probe.PingURL)
	})

	t.Run("绝对探测地址原样保留", func(t *testing.T) {
		os.Setenv("AGENCYSITE_PROBE_PING_URL", "https://www.example.com/ping")
		defer os.Unsetenv("AGENCYSITE_PROBE_PING_URL")

		cfg, err := Load()

		assert.NoError(t, err)
		assert.Equal(t, "https://www.example.com/ping", cfg.Probe.PingURL)
	})

	t.Run("无协议头的探测地址返回错误", func(t *testing.T) {
		os.Setenv("AGENCYSITE_PROBE_PING_URL", "www.example.com/ping")
		defer os.Unsetenv("AGENCYSITE_PROBE_PING_URL")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("无效的冷却时长返回错误", func(t *testing.T) {
		os.Setenv("AGENCYSITE_CONTACT_COOLDOWN", "not-a-duration")
		defer os.Unsetenv("AGENCYSITE_CONTACT_COOLDOWN")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
	})

	t.Run("无效的存储后端返回错误", func(t *testing.T) {
		os.Unsetenv("AGENCYSITE_CONTACT_COOLDOWN")
		os.Setenv("AGENCYSITE_STORAGE_BACKEND", "cassandra")
		defer os.Unsetenv("AGENCYSITE_STORAGE_BACKEND")

		cfg, err := Load()

		assert.Error(t, err)
		assert.Nil(t, cfg)
	})
}
