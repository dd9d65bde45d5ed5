package stats

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"xengine/logger"
)

// Source 可导出统计信息的组件
type Source interface {
	GetStats() map[string]interface{}
}

// Server 只读统计HTTP服务
//
// 暴露引擎各组件的计数器，供诊断使用。端口未配置时不启动。
type Server struct {
	mu      sync.Mutex
	router  *chi.Mux
	srv     *http.Server
	sources map[string]Source
}

// NewServer 创建统计服务
func NewServer(addr string) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))

	s := &Server{
		router:  r,
		sources: make(map[string]Source),
		srv: &http.Server{
			Addr:    addr,
			Handler: r,
		},
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/stats", s.handleAll)
	r.Get("/stats/{component}", s.handleComponent)
	return s
}

// Register 注册一个统计来源
func (s *Server) Register(name string, src Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[name] = src
}

// Start 后台启动监听
func (s *Server) Start() {
	go func() {
		logger.Infof("stats server listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("stats server stopped: %v", err)
		}
	}()
}

// Close 优雅关闭
func (s *Server) Close(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAll(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	names := make([]string, 0, len(s.sources))
	for name := range s.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make(map[string]map[string]interface{}, len(names))
	for _, name := range names {
		out[name] = s.sources[name].GetStats()
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleComponent(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "component")
	s.mu.Lock()
	src, ok := s.sources[name]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown component " + name})
		return
	}
	writeJSON(w, http.StatusOK, src.GetStats())
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("encode stats response: %v", err)
	}
}
