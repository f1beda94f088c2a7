package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/cirrusfs/cirrus/internal/vfs"
)

type nodeView struct {
	Path       string   `json:"path"`
	Kind       string   `json:"kind"`
	Size       int      `json:"size"`
	MimeType   string   `json:"mime_type,omitempty"`
	Children   []string `json:"children,omitempty"`
	ModifiedAt int64    `json:"modified_at"`
	Signature  string   `json:"signature"`
}

func view(n *vfs.Node) nodeView {
	v := nodeView{
		Path:       n.Path,
		Kind:       n.Kind.String(),
		Size:       len(n.Content),
		Children:   n.ChildNames(),
		ModifiedAt: n.ModifiedAt,
		Signature:  n.Signature,
	}
	if n.IsDir() {
		v.Size = len(n.Children)
	} else {
		v.MimeType = mimetype.Detect(n.Content).String()
	}
	return v
}

func statusOf(err error) int {
	var perr *vfs.PersistenceError
	switch {
	case errors.Is(err, vfs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, vfs.ErrPathExists):
		return http.StatusConflict
	case errors.Is(err, vfs.ErrParentMissing),
		errors.Is(err, vfs.ErrTypeMismatch),
		errors.Is(err, vfs.ErrRootDeletion),
		errors.Is(err, vfs.ErrInvalidPath):
		return http.StatusBadRequest
	case errors.As(err, &perr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusOf(err), gin.H{"error": err.Error()})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "nodes": s.tree.Len()})
}

func (s *Server) handleGetNode(c *gin.Context) {
	node, err := s.tree.Get(c.Query("path"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view(node))
}

func (s *Server) handleList(c *gin.Context) {
	path := c.DefaultQuery("path", "/")
	nodes, err := s.tree.List(path)
	if err != nil {
		fail(c, err)
		return
	}
	views := make([]nodeView, len(nodes))
	for i, n := range nodes {
		views[i] = view(n)
	}
	c.JSON(http.StatusOK, gin.H{"path": path, "entries": views})
}

func (s *Server) handleSearch(c *gin.Context) {
	pattern := c.Query("pattern")
	nodes, err := s.tree.Glob(pattern)
	if err != nil {
		fail(c, err)
		return
	}
	views := make([]nodeView, len(nodes))
	for i, n := range nodes {
		views[i] = view(n)
	}
	c.JSON(http.StatusOK, gin.H{"pattern": pattern, "matches": views})
}

func (s *Server) handleReadFile(c *gin.Context) {
	path := c.Query("path")
	content, err := s.tree.ReadFile(path)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path, "content": string(content), "size": len(content)})
}

type writeFileRequest struct {
	Path    string `json:"path" binding:"required"`
	Content string `json:"content"`
}

// handleWriteFile creates the file when absent, overwrites it otherwise.
func (s *Server) handleWriteFile(c *gin.Context) {
	var req writeFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := s.tree.Get(req.Path); errors.Is(err, vfs.ErrNotFound) {
		node, err := s.tree.CreateFile(req.Path, []byte(req.Content))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, view(node))
		return
	}

	if err := s.tree.WriteFile(req.Path, []byte(req.Content)); err != nil {
		fail(c, err)
		return
	}
	node, err := s.tree.Get(req.Path)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view(node))
}

type pathRequest struct {
	Path string `json:"path" binding:"required"`
}

func (s *Server) handleCreateDir(c *gin.Context) {
	var req pathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	node, err := s.tree.CreateDirectory(req.Path)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, view(node))
}

type renameRequest struct {
	From string `json:"from" binding:"required"`
	To   string `json:"to" binding:"required"`
}

func (s *Server) handleRename(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.tree.Rename(req.From, req.To); err != nil {
		fail(c, err)
		return
	}
	node, err := s.tree.Get(req.To)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view(node))
}

func (s *Server) handleDelete(c *gin.Context) {
	if err := s.tree.Delete(c.Query("path")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *Server) handleSyncStatus(c *gin.Context) {
	if s.queue == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	if path := c.Query("path"); path != "" {
		c.JSON(http.StatusOK, s.queue.Status(path))
		return
	}
	c.JSON(http.StatusOK, s.queue.Global())
}

func (s *Server) handleFlush(c *gin.Context) {
	if s.queue == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "sync disabled"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Minute)
	defer cancel()
	if err := s.queue.Flush(ctx); err != nil {
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.queue.Global())
}

func (s *Server) handleRetry(c *gin.Context) {
	if s.queue == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "sync disabled"})
		return
	}
	var req pathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.queue.Retry(req.Path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, s.queue.Status(req.Path))
}
