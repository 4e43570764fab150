// Package server 是推理管道的 HTTP 传输层（gin）。
//
// 每个用例注册一个 POST 路由；领域错误在这里统一映射为 HTTP 状态码与
// {"detail", "kind", ...} 响应体，业务层不感知 HTTP。
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rushteam/inferkit/usecase"
)

// DefaultMaxUploadBytes 图片上传大小上限的默认值
const DefaultMaxUploadBytes = 10 << 20

// reservedRoutes 内置路由，用例不能占用
var reservedRoutes = map[string]struct{}{
	"/health":  {},
	"/ready":   {},
	"/metrics": {},
}

// Options 服务选项
type Options struct {
	Logger *zap.Logger

	// Metrics 为 nil 时不暴露 /metrics，也不打点
	Metrics *Metrics

	// CORSOrigins 允许的来源，为空时等同 "*"
	CORSOrigins []string

	// RateLimit 每秒请求数，0 表示不限流
	RateLimit float64
	RateBurst int

	MaxUploadBytes int64
}

// Server HTTP 服务
type Server struct {
	engine   *gin.Engine
	useCases []*usecase.UseCase
	byName   map[string]*usecase.UseCase
	metrics  *Metrics
	logger   *zap.Logger
	validate *validator.Validate

	maxUploadBytes int64
}

// New 创建服务并注册全部路由
func New(useCases []*usecase.UseCase, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}

	s := &Server{
		engine:         gin.New(),
		useCases:       useCases,
		byName:         make(map[string]*usecase.UseCase, len(useCases)),
		metrics:        opts.Metrics,
		logger:         logger,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		maxUploadBytes: maxUpload,
	}

	s.engine.Use(RequestID(), AccessLog(logger), Recovery(logger), CORS(origins))
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.engine.Use(RateLimit(rate.NewLimiter(rate.Limit(opts.RateLimit), burst)))
	}

	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/health/:usecase", s.handleUseCaseHealth)
	s.engine.GET("/ready", s.handleReady)
	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	routes := make(map[string]string, len(useCases))
	for _, uc := range useCases {
		if _, ok := reservedRoutes[uc.Route]; ok {
			return nil, fmt.Errorf("use case %q: route %s is reserved", uc.Name, uc.Route)
		}
		if other, ok := routes[uc.Route]; ok {
			return nil, fmt.Errorf("use case %q: route %s already used by %q", uc.Name, uc.Route, other)
		}
		if _, ok := s.byName[uc.Name]; ok {
			return nil, fmt.Errorf("duplicate use case name %q", uc.Name)
		}
		routes[uc.Route] = uc.Name
		s.byName[uc.Name] = uc
		s.engine.POST(uc.Route, s.handlePredict(uc))
	}
	return s, nil
}

// Handler 返回 http.Handler
func (s *Server) Handler() http.Handler { return s.engine }

// HTTPServer 构造带超时的 http.Server
func (s *Server) HTTPServer(addr string, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
	}
}
