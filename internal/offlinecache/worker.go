package offlinecache

import (
	"context"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"agencysite/backend/internal/monitoring"
	"agencysite/backend/internal/pool"
)

// offlineHTML 所有回退都落空时的内联兜底页
const offlineHTML = `<!doctype html>
<html lang="zh-CN">
<head><meta charset="utf-8"><title>离线</title></head>
<body>
<h1>当前处于离线状态</h1>
<p>网络恢复后请刷新页面。您填写的表单内容不会丢失。</p>
</body>
</html>
`

// maxCacheBody 单条缓存响应体上限，超大资源不进缓存
const maxCacheBody = 4 << 20

// requestClass 请求分类，决定取数策略
type requestClass int

const (
	classPassthrough requestClass = iota // 非 GET，直通上游
	classNavigation                      // 页面导航，网络优先加离线回退链
	classStatic                          // 静态资源，缓存优先加后台再验证
	classDefault                         // 其他，网络优先加缓存兜底
)

// 静态资源扩展名
var staticExtensions = map[string]bool{
	".css": true, ".js": true, ".mjs": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".svg": true, ".webp": true, ".ico": true,
	".woff": true, ".woff2": true, ".ttf": true,
}

// command 工作协程的指令
type command struct {
	kind  string // "install" / "activate" / "fetch"
	req   *fetchRequest
	reply chan struct{}
}

// fetchRequest 取数指令的载荷
type fetchRequest struct {
	method string
	path   string
	accept string
	result chan *CachedResponse
}

// Worker 离线缓存工作协程。
//
// 独立于表单提交路径运行，所有操作通过指令通道串行处理，
// 与提交控制器之间没有共享状态。策略与浏览器端缓存代理一致：
// 导航网络优先，静态资源先用缓存再后台刷新，非 GET 永不缓存。
type Worker struct {
	store       *Store
	version     string // 当前代次
	upstreamURL string
	client      *http.Client
	precache    []string
	shellPath   string
	offlinePath string

	bgPool  *pool.WorkerPool
	log     *zap.Logger
	metrics *monitoring.Metrics

	cmds chan command
	now  func() time.Time
}

// Config 工作协程配置
type Config struct {
	Version     string
	UpstreamURL string
	Precache    []string
	ShellPath   string
	OfflinePath string
}

// Option 工作协程可选配置
type Option func(*Worker)

// WithClient 注入上游 HTTP 客户端，用于测试
func WithClient(client *http.Client) Option {
	return func(w *Worker) {
		w.client = client
	}
}

// WithMetrics 启用指标采集
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(w *Worker) {
		w.metrics = metrics
	}
}

// NewWorker 创建离线缓存工作协程
func NewWorker(store *Store, cfg Config, bgPool *pool.WorkerPool, log *zap.Logger, opts ...Option) *Worker {
	w := &Worker{
		store:       store,
		version:     cfg.Version,
		upstreamURL: strings.TrimRight(cfg.UpstreamURL, "/"),
		client:      &http.Client{Timeout: 10 * time.Second},
		precache:    cfg.Precache,
		shellPath:   cfg.ShellPath,
		offlinePath: cfg.OfflinePath,
		bgPool:      bgPool,
		log:         log,
		cmds:        make(chan command),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run 启动指令循环，阻塞到上下文取消
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("离线缓存工作协程启动", zap.String("version", w.version))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-w.cmds:
			switch cmd.kind {
			case "install":
				w.install(ctx)
			case "activate":
				w.activate()
			case "fetch":
				cmd.req.result <- w.fetch(ctx, cmd.req)
			}
			if cmd.reply != nil {
				close(cmd.reply)
			}
		}
	}
}

// Install 触发安装阶段：预取关键资源，等待完成
func (w *Worker) Install(ctx context.Context) {
	w.send(ctx, command{kind: "install", reply: make(chan struct{})})
}

// Activate 触发激活阶段：回收旧代次，等待完成
func (w *Worker) Activate(ctx context.Context) {
	w.send(ctx, command{kind: "activate", reply: make(chan struct{})})
}

// HandleFetch 处理一次资源请求，返回应答内容
//
// 返回 nil 表示直通：调用方应自行转发请求，不经过缓存。
func (w *Worker) HandleFetch(ctx context.Context, method, reqPath, accept string) *CachedResponse {
	req := &fetchRequest{
		method: method,
		path:   reqPath,
		accept: accept,
		result: make(chan *CachedResponse, 1),
	}

	select {
	case w.cmds <- command{kind: "fetch", req: req}:
	case <-ctx.Done():
		return nil
	}

	select {
	case resp := <-req.result:
		return resp
	case <-ctx.Done():
		return nil
	}
}

// send 投递指令并等待处理完成
func (w *Worker) send(ctx context.Context, cmd command) {
	select {
	case w.cmds <- cmd:
	case <-ctx.Done():
		return
	}
	select {
	case <-cmd.reply:
	case <-ctx.Done():
	}
}

// install 安装阶段：逐个预取关键资源，单个失败不阻止整体
func (w *Worker) install(ctx context.Context) {
	for _, p := range w.precache {
		resp, err := w.fetchUpstream(ctx, p)
		if err != nil {
			w.log.Warn("预取失败，跳过", zap.String("path", p), zap.Error(err))
			continue
		}
		if !cacheable(resp) {
			w.log.Warn("预取返回错误状态，跳过",
				zap.String("path", p), zap.Int("status", resp.Status))
			continue
		}
		w.store.Put(w.version, p, resp)
	}
	w.log.Info("安装完成",
		zap.String("version", w.version),
		zap.Int("cached", w.store.Size(w.version)))
}

// activate 激活阶段：回收当前代次之外的所有缓存
func (w *Worker) activate() {
	deleted := w.store.DeleteOtherEpochs(w.version)
	if deleted > 0 {
		w.log.Info("旧缓存代次已回收",
			zap.String("version", w.version),
			zap.Int("deleted", deleted))
	}
}

// fetch 按请求分类执行取数策略
func (w *Worker) fetch(ctx context.Context, req *fetchRequest) *CachedResponse {
	switch w.classify(req) {
	case classPassthrough:
		// 写操作不碰缓存，调用方直接转发
		return nil
	case classNavigation:
		return w.fetchNavigation(ctx, req.path)
	case classStatic:
		return w.fetchStatic(ctx, req.path)
	default:
		return w.fetchDefault(ctx, req.path)
	}
}

// classify 判断请求类别
func (w *Worker) classify(req *fetchRequest) requestClass {
	if req.method != http.MethodGet {
		return classPassthrough
	}
	if strings.Contains(req.accept, "text/html") {
		return classNavigation
	}
	if staticExtensions[strings.ToLower(path.Ext(req.path))] {
		return classStatic
	}
	return classDefault
}

// fetchNavigation 导航请求：网络优先，失败走回退链
//
// 回退链按精确路径、站点外壳、离线页、内联兜底页的顺序尝试，
// 保证导航永远有应答。
func (w *Worker) fetchNavigation(ctx context.Context, reqPath string) *CachedResponse {
	if resp, err := w.fetchUpstream(ctx, reqPath); err == nil {
		// 错误页不进缓存，进了会在离线回退链里压过完好的外壳
		if cacheable(resp) {
			w.store.Put(w.version, reqPath, resp)
			// 导航成功时顺手刷新站点外壳，它是回退链的主要兜底
			if reqPath != w.shellPath {
				w.refreshInBackground(w.shellPath)
			}
		}
		w.hit("navigation")
		return resp
	}

	for _, candidate := range []string{reqPath, w.shellPath, w.offlinePath} {
		if resp, ok := w.store.Get(w.version, candidate); ok {
			w.fallback()
			return resp
		}
	}

	w.fallback()
	return &CachedResponse{
		Status: http.StatusOK,
		Header: http.Header{
			"Content-Type": []string{"text/html; charset=utf-8"},
		},
		Body:     []byte(offlineHTML),
		StoredAt: w.now(),
	}
}

// fetchStatic 静态资源：先用缓存，后台再验证
func (w *Worker) fetchStatic(ctx context.Context, reqPath string) *CachedResponse {
	if cached, ok := w.store.Get(w.version, reqPath); ok {
		w.hit("static")
		// 后台刷新缓存副本，下次命中的就是新内容
		w.refreshInBackground(reqPath)
		return cached
	}

	w.miss("static")
	resp, err := w.fetchUpstream(ctx, reqPath)
	if err != nil {
		return nil
	}
	if cacheable(resp) {
		w.store.Put(w.version, reqPath, resp)
	}
	return resp
}

// fetchDefault 其他请求：网络优先，缓存兜底
func (w *Worker) fetchDefault(ctx context.Context, reqPath string) *CachedResponse {
	if resp, err := w.fetchUpstream(ctx, reqPath); err == nil {
		if cacheable(resp) {
			w.store.Put(w.version, reqPath, resp)
		}
		w.hit("default")
		return resp
	}

	if cached, ok := w.store.Get(w.version, reqPath); ok {
		w.hit("default")
		return cached
	}
	w.miss("default")
	return nil
}

// refreshInBackground 在后台重取资源并更新缓存，错误状态不覆盖旧副本
func (w *Worker) refreshInBackground(reqPath string) {
	w.bgPool.TrySubmit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if resp, err := w.fetchUpstream(ctx, reqPath); err == nil && cacheable(resp) {
			w.store.Put(w.version, reqPath, resp)
		}
	})
}

// cacheable 只有 2xx 响应才允许进缓存
func cacheable(resp *CachedResponse) bool {
	return resp.Status >= 200 && resp.Status < 300
}

// fetchUpstream 从上游取一次资源
func (w *Worker) fetchUpstream(ctx context.Context, reqPath string) (*CachedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.upstreamURL+reqPath, nil)
	if err != nil {
		return nil, err
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCacheBody))
	if err != nil {
		return nil, err
	}

	return &CachedResponse{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: w.now(),
	}, nil
}

func (w *Worker) hit(class string) {
	if w.metrics != nil {
		w.metrics.CacheHits.WithLabelValues(class).Inc()
	}
}

func (w *Worker) miss(class string) {
	if w.metrics != nil {
		w.metrics.CacheMisses.WithLabelValues(class).Inc()
	}
}

func (w *Worker) fallback() {
	if w.metrics != nil {
		w.metrics.CacheFallbacks.Inc()
	}
}
