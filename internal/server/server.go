package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/tcross/narrator/internal/history"
	"github.com/tcross/narrator/internal/logger"
	"github.com/tcross/narrator/internal/narrator"
	"github.com/tcross/narrator/internal/speech"
)

// HistoryLister 查询生成记录。
type HistoryLister interface {
	List(ctx context.Context, limit int) ([]history.Record, error)
	Get(ctx context.Context, id string) (*history.Record, error)
}

// Config HTTP 服务配置。
type Config struct {
	Addr    string
	Service *narrator.Service
	Catalog *speech.VoiceCatalog
	// History 为 nil 时 /api/narrations 下的 GET 返回 404。
	History HistoryLister
}

// Server 提供网页表单和 JSON API。
type Server struct {
	addr    string
	svc     *narrator.Service
	catalog *speech.VoiceCatalog
	history HistoryLister
	page    *pageRenderer
}

// New 创建 HTTP 服务。
func New(cfg Config) *Server {
	if cfg.Catalog == nil {
		cfg.Catalog = speech.NewVoiceCatalog(nil)
	}
	return &Server{
		addr:    cfg.Addr,
		svc:     cfg.Service,
		catalog: cfg.Catalog,
		history: cfg.History,
		page:    newPageRenderer(),
	}
}

// Handler 返回注册好全部路由的 http.Handler。
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/", s.index)
	r.Get("/healthz", s.healthz)
	r.Get("/files/{name}", s.file)

	r.Route("/api", func(r chi.Router) {
		r.Post("/narrations", s.createNarration)
		r.Get("/narrations", s.listNarrations)
		r.Get("/narrations/{id}", s.getNarration)
		r.Get("/voices", s.voices)
	})

	return r
}

// Run 启动服务并阻塞，ctx 取消后优雅关闭。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("[server] 监听 %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Infof("[server] 正在关闭...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// requestLogger 记录每个请求的方法、路径、状态码和耗时。
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.With("request_id", chimiddleware.GetReqID(r.Context())).Infof(
			"[server] %s %s %d %dB %v",
			r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(), time.Since(start),
		)
	})
}
