// Package server exposes the service over HTTP. Handlers are thin
// adapters: JSON in, core call, JSON out.
package server

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mvp-joe/askcode/internal/crawler"
	"github.com/mvp-joe/askcode/internal/detect"
	"github.com/mvp-joe/askcode/internal/indexer"
	"github.com/mvp-joe/askcode/internal/ollama"
	"github.com/mvp-joe/askcode/internal/rag"
)

// Server wires the HTTP routes to the core components.
type Server struct {
	indexer   *indexer.Indexer
	retriever *rag.Retriever
	models    ollama.Client
	detector  *detect.Detector
	logger    *zap.Logger
	engine    *gin.Engine
}

func New(ix *indexer.Indexer, retriever *rag.Retriever, models ollama.Client, detector *detect.Detector, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		indexer:   ix,
		retriever: retriever,
		models:    models,
		detector:  detector,
		logger:    logger,
		engine:    gin.New(),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s
}

// Handler returns the HTTP handler, for serving and for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	s.logger.Info("http server listening", zap.String("addr", addr))
	return s.engine.Run(addr)
}

func (s *Server) routes() {
	s.engine.POST("/indexing/rebuild", s.handleRebuild)
	s.engine.POST("/indexing/cancel", s.handleCancel)
	s.engine.GET("/indexing/status", s.handleStatus)
	s.engine.GET("/indexing/files", s.handleFiles)
	s.engine.GET("/indexing/browse", s.handleBrowse)
	s.engine.POST("/chat", s.handleChat)
	s.engine.GET("/healthz", s.handleHealthz)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()))
	}
}

type rebuildRequest struct {
	RootPath        string   `json:"rootPath"`
	ExcludePatterns []string `json:"excludePatterns"`
}

func (s *Server) handleRebuild(c *gin.Context) {
	var req rebuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.RootPath == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rootPath is required"})
		return
	}

	s.indexer.Start(req.RootPath, req.ExcludePatterns)
	c.JSON(http.StatusAccepted, gin.H{"message": "indexing started", "rootPath": req.RootPath})
}

func (s *Server) handleCancel(c *gin.Context) {
	s.indexer.Cancel()
	c.JSON(http.StatusOK, gin.H{"message": "cancellation requested"})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.indexer.Status())
}

// handleFiles lists the files the crawler would index under a root.
func (s *Server) handleFiles(c *gin.Context) {
	root := c.Query("root")
	if root == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "root query parameter is required"})
		return
	}

	cr := crawler.ForProject(s.detector.Detect(root), nil, s.logger)
	files, err := cr.Scan(root, nil)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"root":  root,
		"count": len(files),
		"files": files,
	})
}

type browseEntry struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
}

// handleBrowse returns a directory listing for the index-root picker.
func (s *Server) handleBrowse(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		path = string(filepath.Separator)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	listing := make([]browseEntry, 0, len(entries))
	for _, e := range entries {
		listing = append(listing, browseEntry{
			Name:  e.Name(),
			Path:  filepath.Join(path, e.Name()),
			IsDir: e.IsDir(),
		})
	}
	sort.Slice(listing, func(i, j int) bool {
		if listing[i].IsDir != listing[j].IsDir {
			return listing[i].IsDir
		}
		return listing[i].Name < listing[j].Name
	})
	c.JSON(http.StatusOK, gin.H{"path": path, "entries": listing})
}

type chatRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	answer, err := s.retriever.Ask(c.Request.Context(), req.Message)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"answer": answer})
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()
	c.JSON(http.StatusOK, gin.H{
		"status":               "ok",
		"model_server_healthy": s.models.IsHealthy(ctx),
	})
}
