// Package httpapi 提供只读查询接口：最近一轮扫描、历史评估与退出计划。
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"quantgate/internal/gate"
	"quantgate/internal/logger"
	"quantgate/internal/scan"
	exitstrategy "quantgate/internal/strategy/exit"
)

// ResultStore 查询侧需要的存储视图。
type ResultStore interface {
	LatestScanResults(ctx context.Context) ([]scan.ScanResult, error)
	ScanResultsByDate(ctx context.Context, date time.Time) ([]scan.ScanResult, error)
	EvaluationsByTicker(ctx context.Context, ticker string, limit int) ([]gate.Evaluation, error)
}

type Server struct {
	addr   string
	router *gin.Engine
}

type ServerConfig struct {
	Addr     string
	Store    ResultStore
	Exits    *exitstrategy.Manager
	NotFound error // 存储层的"无结果"哨兵
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("http server requires a result store")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8632"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/scan/latest", func(c *gin.Context) {
		results, err := cfg.Store.LatestScanResults(c.Request.Context())
		if err != nil {
			respondStoreErr(c, err, cfg.NotFound)
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": results})
	})
	api.GET("/scan/:date", func(c *gin.Context) {
		day, err := time.Parse("2006-01-02", c.Param("date"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		results, err := cfg.Store.ScanResultsByDate(c.Request.Context(), day)
		if err != nil {
			respondStoreErr(c, err, cfg.NotFound)
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": results})
	})
	api.GET("/evaluations/:ticker", func(c *gin.Context) {
		ticker := strings.ToUpper(strings.TrimSpace(c.Param("ticker")))
		evals, err := cfg.Store.EvaluationsByTicker(c.Request.Context(), ticker, 20)
		if err != nil {
			respondStoreErr(c, err, cfg.NotFound)
			return
		}
		c.JSON(http.StatusOK, gin.H{"evaluations": evals})
	})
	api.GET("/positions/:ticker/exitplan", func(c *gin.Context) {
		if cfg.Exits == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "exit tracking disabled"})
			return
		}
		ticker := strings.ToUpper(strings.TrimSpace(c.Param("ticker")))
		plan, ok := cfg.Exits.Plan(ticker)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no open position"})
			return
		}
		c.JSON(http.StatusOK, plan)
	})

	return &Server{addr: cfg.Addr, router: router}, nil
}

// Handler 暴露内部 router，测试用。
func (s *Server) Handler() http.Handler { return s.router }

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func respondStoreErr(c *gin.Context, err, notFound error) {
	if notFound != nil && errors.Is(err, notFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no results"})
		return
	}
	logger.Errorf("HTTP store error: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// requestLogger 记录接口调用，便于追踪查询来源。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			method, path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}
