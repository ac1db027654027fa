package relay

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The relay fronts automation sessions, not browsers on foreign
	// origins; all callers are trusted infrastructure.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Router builds the relay's HTTP routes on a fresh gin engine.
func Router(hub *Hub) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/ws", handleWS(hub))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "rooms": hub.Rooms()})
	})
	return router
}

// handleWS upgrades the connection and pumps frames through the hub until
// the peer goes away.
func handleWS(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID := c.DefaultQuery("room", "default")
		role := c.DefaultQuery("role", RoleFollower)

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		hub.Join(roomID, role, ws)
		defer hub.Leave(roomID, ws)

		for {
			messageType, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			hub.Relay(roomID, ws, messageType, data)
		}
	}
}

// Serve runs the relay HTTP server. It blocks until ctx is cancelled, then
// shuts down gracefully.
func Serve(ctx context.Context, port int, out io.Writer) error {
	if port <= 0 {
		return fmt.Errorf("relay: port is required")
	}
	if out == nil {
		out = io.Discard
	}

	hub := NewHub()
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: Router(hub),
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	fmt.Fprintf(out, "Relay listening on :%d\n", port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("relay: %w", err)
	}
	return nil
}
