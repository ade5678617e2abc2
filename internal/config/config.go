package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// ContactConfig 定义联系表单投递的核心业务配置
type ContactConfig struct {
	ProviderURL      string        // 邮件服务商 HTTP 提交端点（黑盒投递）
	ProviderTimeout  time.Duration // 单次投递请求超时，默认 15s
	SMTPAddr         string        // 可选：SMTP 直投地址，格式 "host:port"
	SMTPFrom         string        // SMTP 发件人地址
	SMTPTo           string        // SMTP 收件人地址（工作室收件箱）
	Cooldown         time.Duration // 成功投递后的冷却时长，默认 1h
	EnqueueOnFailure bool          // 在线直发失败时是否落入发件箱（默认 false，仅报错）
}

// ProbeConfig 定义连通性探测配置
type ProbeConfig struct {
	PingURL     string        // 轻量探测端点，返回空 204
	FallbackURL string        // 探测端点不可达时回退探测的站点根地址
	Timeout     time.Duration // 单次探测超时，默认 2500ms
}

// FlushConfig 定义发件箱冲刷循环配置
type FlushConfig struct {
	Interval time.Duration // 发件箱非空时的轮询间隔，默认 8s
	LockTTL  time.Duration // 跨进程冲刷锁的持有时长，默认 30s
	Arbiter  string        // 单写者仲裁后端: ""(进程内) / "redis" / "postgres"
}

// CacheConfig 定义离线资源缓存配置
type CacheConfig struct {
	Version     string   // 缓存代次名称，升级后旧代次在激活时被清理
	UpstreamURL string   // 站点静态资源上游地址
	Precache    []string // 安装阶段预取的关键资源路径
	ShellPath   string   // 站点外壳页路径，默认 "/"
	OfflinePath string   // 离线回退页路径，默认 "/offline.html"
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
}

// StorageConfig 定义本地持久化后端配置（发件箱与冷却锁）
type StorageConfig struct {
	Backend string // 存储后端: "memory" / "filesystem" / "redis"
	Path    string // filesystem 后端的数据目录
}

// DatabaseConfig 定义投递归档数据库配置（支持 MySQL 和 PostgreSQL）
type DatabaseConfig struct {
	Type            string        // 数据库类型: "mysql" 或 "postgres"，留空则不归档
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// RedisConfig 定义 Redis 服务配置（KV 后端与冲刷锁）
type RedisConfig struct {
	Address  string // Redis 服务地址，格式 "host:port"，默认 "localhost:6379"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server   ServerConfig   // HTTP 服务器配置
	Contact  ContactConfig  // 联系表单投递配置
	Probe    ProbeConfig    // 连通性探测配置
	Flush    FlushConfig    // 发件箱冲刷配置
	Cache    CacheConfig    // 离线缓存配置
	CORS     CORSConfig     // 跨域配置
	Log      LogConfig      // 日志配置
	Storage  StorageConfig  // 本地持久化配置
	Database DatabaseConfig // 归档数据库配置
	Redis    RedisConfig    // Redis 配置
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: AGENCYSITE_
// 例如: AGENCYSITE_SERVER_PORT, AGENCYSITE_CONTACT_PROVIDER_URL
//
// 返回值:
//   - *Config: 加载成功的配置对象
//   - error: 配置验证失败时返回错误
func Load() (*Config, error) {
	// 尝试加载 .env 文件（静默失败，因为 .env 文件是可选的）
	loadEnvFile()

	viper.SetEnvPrefix("agencysite")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("contact.provider_url", "")
	viper.SetDefault("contact.provider_timeout", "15s")
	viper.SetDefault("contact.smtp_addr", "")
	viper.SetDefault("contact.smtp_from", "")
	viper.SetDefault("contact.smtp_to", "")
	viper.SetDefault("contact.cooldown", "1h")
	viper.SetDefault("contact.enqueue_on_failure", false)
	viper.SetDefault("probe.ping_url", "/ping")
	viper.SetDefault("probe.fallback_url", "/")
	viper.SetDefault("probe.timeout", "2500ms")
	viper.SetDefault("flush.interval", "8s")
	viper.SetDefault("flush.lock_ttl", "30s")
	viper.SetDefault("flush.arbiter", "")
	viper.SetDefault("cache.version", "static-v1")
	viper.SetDefault("cache.upstream_url", "")
	viper.SetDefault("cache.precache", "/,/offline.html,/favicon.ico")
	viper.SetDefault("cache.shell_path", "/")
	viper.SetDefault("cache.offline_path", "/offline.html")
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("storage.backend", "memory")
	viper.SetDefault("storage.path", "./data/outbox")
	viper.SetDefault("database.type", "") // 默认为空，不启用归档
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	providerTimeout, err := time.ParseDuration(viper.GetString("contact.provider_timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid contact.provider_timeout: %w", err)
	}

	cooldown, err := time.ParseDuration(viper.GetString("contact.cooldown"))
	if err != nil {
		return nil, fmt.Errorf("invalid contact.cooldown: %w", err)
	}

	probeTimeout, err := time.ParseDuration(viper.GetString("probe.timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid probe.timeout: %w", err)
	}

	serverHost := viper.GetString("server.host")
	serverPort := viper.GetInt("server.port")

	pingURL, err := absoluteProbeURL(viper.GetString("probe.ping_url"), serverHost, serverPort)
	if err != nil {
		return nil, fmt.Errorf("invalid probe.ping_url: %w", err)
	}
	fallbackURL, err := absoluteProbeURL(viper.GetString("probe.fallback_url"), serverHost, serverPort)
	if err != nil {
		return nil, fmt.Errorf("invalid probe.fallback_url: %w", err)
	}

	flushInterval, err := time.ParseDuration(viper.GetString("flush.interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid flush.interval: %w", err)
	}

	lockTTL, err := time.ParseDuration(viper.GetString("flush.lock_ttl"))
	if err != nil {
		lockTTL = 30 * time.Second
	}

	connMaxLifetime, err := time.ParseDuration(viper.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	precache := parseList(viper.GetString("cache.precache"))

	storageBackend := strings.ToLower(viper.GetString("storage.backend"))
	switch storageBackend {
	case "memory", "filesystem", "redis":
	default:
		return nil, fmt.Errorf("invalid storage.backend: %q (supported: memory, filesystem, redis)", storageBackend)
	}

	arbiter := strings.ToLower(viper.GetString("flush.arbiter"))
	switch arbiter {
	case "", "redis", "postgres":
	default:
		return nil, fmt.Errorf("invalid flush.arbiter: %q (supported: redis, postgres or empty)", arbiter)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: serverHost,
			Port: serverPort,
		},
		Contact: ContactConfig{
			ProviderURL:      viper.GetString("contact.provider_url"),
			ProviderTimeout:  providerTimeout,
			SMTPAddr:         viper.GetString("contact.smtp_addr"),
			SMTPFrom:         viper.GetString("contact.smtp_from"),
			SMTPTo:           viper.GetString("contact.smtp_to"),
			Cooldown:         cooldown,
			EnqueueOnFailure: viper.GetBool("contact.enqueue_on_failure"),
		},
		Probe: ProbeConfig{
			PingURL:     pingURL,
			FallbackURL: fallbackURL,
			Timeout:     probeTimeout,
		},
		Flush: FlushConfig{
			Interval: flushInterval,
			LockTTL:  lockTTL,
			Arbiter:  arbiter,
		},
		Cache: CacheConfig{
			Version:     viper.GetString("cache.version"),
			UpstreamURL: viper.GetString("cache.upstream_url"),
			Precache:    precache,
			ShellPath:   viper.GetString("cache.shell_path"),
			OfflinePath: viper.GetString("cache.offline_path"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
		},
		Storage: StorageConfig{
			Backend: storageBackend,
			Path:    viper.GetString("storage.path"),
		},
		Database: DatabaseConfig{
			Type:            viper.GetString("database.type"),
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
	}

	return cfg, nil
}

// absoluteProbeURL 把探测地址规整为绝对 URL
//
// 探测请求必须携带 http(s) 协议头，相对路径在传输层直接报错，
// 探测结果会永远是离线。相对路径按本机服务地址补全，
// 监听通配地址时用回环地址探测。
func absoluteProbeURL(raw, host string, port int) (string, error) {
	if strings.HasPrefix(raw, "/") {
		if host == "" || host == "0.0.0.0" || host == "::" {
			host = "127.0.0.1"
		}
		return fmt.Sprintf("http://%s:%d%s", host, port, raw), nil
	}

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("probe url must be absolute http(s) or a /-path: %q", raw)
	}
	return raw, nil
}

// parseList 将逗号分隔的字符串解析为字符串切片
//
// 参数:
//   - value: 逗号分隔的字符串，如 "item1,item2,item3"
//
// 返回值:
//   - []string: 解析后的字符串切片，已去除空白字符
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 加载顺序：
//  1. 当前目录的 .env
//  2. 父目录的 .env（用于从 backend/ 子目录运行的情况）
//
// 注意：
//   - 如果文件不存在，静默失败（.env 是可选的）
//   - 环境变量不会被覆盖（已存在的环境变量优先级更高）
func loadEnvFile() {
	// 尝试当前目录的 .env
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	// 尝试父目录的 .env（从 backend/ 目录运行时）
	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
