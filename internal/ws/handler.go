// Package ws streams filesystem and sync events to UI clients over
// WebSocket.
package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cirrusfs/cirrus/internal/logging"
	"github.com/cirrusfs/cirrus/internal/vfs"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the daemon fronts a local UI
	},
}

const writeTimeout = 10 * time.Second

// Frame is the wire form of one event.
type Frame struct {
	Type        string    `json:"type"`
	Path        string    `json:"path,omitempty"`
	OldPath     string    `json:"old_path,omitempty"`
	Node        *nodeView `json:"node,omitempty"`
	Error       string    `json:"error,omitempty"`
	Disposition string    `json:"disposition,omitempty"`
}

type nodeView struct {
	Path       string `json:"path"`
	Kind       string `json:"kind"`
	Size       int    `json:"size"`
	ModifiedAt int64  `json:"modified_at"`
	Signature  string `json:"signature"`
}

func viewOf(n *vfs.Node) *nodeView {
	if n == nil {
		return nil
	}
	size := len(n.Content)
	if n.IsDir() {
		size = len(n.Children)
	}
	return &nodeView{
		Path:       n.Path,
		Kind:       n.Kind.String(),
		Size:       size,
		ModifiedAt: n.ModifiedAt,
		Signature:  n.Signature,
	}
}

func frameOf(ev vfs.Event) Frame {
	f := Frame{
		Type:    ev.Kind.String(),
		Path:    ev.Path,
		OldPath: ev.OldPath,
		Node:    viewOf(ev.Node),
	}
	if ev.Err != nil {
		f.Error = ev.Err.Error()
	}
	if ev.Conflict != nil {
		f.Disposition = string(ev.Conflict.Disposition)
	}
	return f
}

// Handler upgrades connections and fans tree events out to each client.
type Handler struct {
	tree *vfs.Tree
	log  *logging.Logger
}

// NewHandler creates a WebSocket handler bound to tree's observer registry.
func NewHandler(tree *vfs.Tree, log *logging.Logger) *Handler {
	if log == nil {
		log = logging.NewNop()
	}
	return &Handler{tree: tree, log: log}
}

// HandleConnection handles a WebSocket upgrade and streams events until the
// client disconnects.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Buffered so a slow client drops frames instead of stalling the
	// observer registry.
	frames := make(chan Frame, 64)
	handle := h.tree.Subscribe(func(ev vfs.Event) {
		select {
		case frames <- frameOf(ev):
		default:
		}
	})
	defer h.tree.Unsubscribe(handle)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case frame := <-frames:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(frame); err != nil {
				h.log.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-done:
			return
		}
	}
}
