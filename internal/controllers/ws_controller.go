package controllers

import (
	"net/http"
	"sync"
	"time"

	"github.com/convoscope/backend/internal/logger"
	"github.com/convoscope/backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const wsWriteTimeout = 10 * time.Second

type WSController struct {
	hub *services.EventHub
}

func NewWSController(hub *services.EventHub) *WSController {
	return &WSController{hub: hub}
}

type wsRequest struct {
	Action string `json:"action"`
	JobID  string `json:"job_id"`
}

// wsClient is one websocket connection and its job subscriptions. Writes
// are serialized through mu; the hub forwarders and the read loop never
// write concurrently.
type wsClient struct {
	conn *websocket.Conn
	hub  *services.EventHub

	mu   sync.Mutex
	subs map[string]string // jobID -> subscription ID
	wg   sync.WaitGroup
}

// HandleWS upgrades the connection and serves subscribe, unsubscribe, and
// ping actions. Events published before a subscribe are not replayed; the
// status endpoint remains the source of truth.
func (wc *WSController) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WithError(err, "ws_controller").Warn("Websocket upgrade failed")
		return
	}

	client := &wsClient{
		conn: conn,
		hub:  wc.hub,
		subs: make(map[string]string),
	}
	defer client.close()

	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WithError(err, "ws_controller").Debug("Websocket read failed")
			}
			return
		}

		switch req.Action {
		case "subscribe":
			client.subscribe(req.JobID)
		case "unsubscribe":
			client.unsubscribe(req.JobID)
		case "ping":
			client.write(gin.H{"type": "pong"})
		default:
			client.write(gin.H{"type": "error", "detail": "unknown action"})
		}
	}
}

func (cl *wsClient) subscribe(jobID string) {
	if jobID == "" {
		cl.write(gin.H{"type": "error", "detail": "job_id is required"})
		return
	}

	cl.mu.Lock()
	if _, ok := cl.subs[jobID]; ok {
		cl.mu.Unlock()
		cl.write(gin.H{"type": "subscribed", "job_id": jobID})
		return
	}
	subID, events := cl.hub.Subscribe(jobID)
	cl.subs[jobID] = subID
	cl.mu.Unlock()

	cl.wg.Add(1)
	go func() {
		defer cl.wg.Done()
		for event := range events {
			cl.write(event)
		}
	}()

	cl.write(gin.H{"type": "subscribed", "job_id": jobID})
}

func (cl *wsClient) unsubscribe(jobID string) {
	cl.mu.Lock()
	subID, ok := cl.subs[jobID]
	if ok {
		delete(cl.subs, jobID)
	}
	cl.mu.Unlock()

	if ok {
		cl.hub.Unsubscribe(jobID, subID)
	}
	cl.write(gin.H{"type": "unsubscribed", "job_id": jobID})
}

func (cl *wsClient) write(v interface{}) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	cl.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := cl.conn.WriteJSON(v); err != nil {
		logger.WithError(err, "ws_controller").Debug("Websocket write failed")
	}
}

// close tears down every subscription, waits for the forwarders to drain,
// and closes the connection.
func (cl *wsClient) close() {
	cl.mu.Lock()
	subs := cl.subs
	cl.subs = make(map[string]string)
	cl.mu.Unlock()

	for jobID, subID := range subs {
		cl.hub.Unsubscribe(jobID, subID)
	}
	cl.wg.Wait()
	cl.conn.Close()
}
