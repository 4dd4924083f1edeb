package api

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/thereceipt/thermal-bridge/internal/printer"
)

// WebSocket message types
const (
	EventFindPrinters   = "find_printers"
	EventPrintersFound  = "printers_found"
	EventPrintImage     = "print_image"
	EventPrinterAdded   = "printer_added"
	EventPrinterRemoved = "printer_removed"
	EventResponse       = "response"
	EventError          = "error"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// WSClient represents a connected WebSocket client
type WSClient struct {
	conn   *websocket.Conn
	send   chan WSMessage
	server *Server
	mu     sync.Mutex
}

// hub tracks connected clients for broadcasts.
type hub struct {
	mu      sync.RWMutex
	clients map[*WSClient]bool
}

func newHub() *hub {
	return &hub{clients: make(map[*WSClient]bool)}
}

func (h *hub) add(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
}

// remove forgets c and closes its send channel, ending its write pump.
func (h *hub) remove(c *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *hub) broadcast(msg WSMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			// Client send buffer full, skip
		}
	}
}

// send delivers msg to c unless it has disconnected.
func (h *hub) send(c *WSClient, msg WSMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := &WSClient{
		conn:   conn,
		send:   make(chan WSMessage, 256),
		server: s,
	}
	s.hub.add(client)
	s.log.Info("WebSocket client connected", zap.String("remote", conn.RemoteAddr().String()))

	go client.readPump()
	go client.writePump()
}

func (c *WSClient) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		c.mu.Lock()
		err := c.conn.WriteJSON(msg)
		c.mu.Unlock()

		if err != nil {
			c.server.log.Debug("WebSocket write error", zap.Error(err))
			return
		}
	}
}

func (c *WSClient) readPump() {
	defer func() {
		c.server.hub.remove(c)
		c.conn.Close()
		c.server.log.Info("WebSocket client disconnected")
	}()

	for {
		var msg WSMessage
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.log.Warn("WebSocket error", zap.Error(err))
			}
			break
		}

		c.handleMessage(&msg)
	}
}

func (c *WSClient) handleMessage(msg *WSMessage) {
	switch msg.Event {
	case EventFindPrinters:
		c.handleFindPrinters(msg.Data)
	case EventPrintImage:
		c.handlePrintImage(msg.Data)
	default:
		c.sendError(fmt.Sprintf("unknown event: %s", msg.Event))
	}
}

// handleFindPrinters starts a search. Its result reaches every client as a
// printers_found event.
func (c *WSClient) handleFindPrinters(data map[string]any) {
	manufacturer, _ := data["manufacturer"].(string)
	var typeNames []string
	if t, ok := data["connection_type"].(string); ok && t != "" {
		typeNames = append(typeNames, t)
	}

	m, types, err := parseSearch(manufacturer, typeNames)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	go func() {
		if c.server.findPrinters(context.Background(), m, types) == nil {
			c.sendError("no finder for manufacturer " + string(m))
		}
	}()
}

// handlePrintImage queues an image. The job id is answered at once; the
// outcome follows as a print_image event.
func (c *WSClient) handlePrintImage(data map[string]any) {
	raw, err := json.Marshal(data)
	if err != nil {
		c.sendError(fmt.Sprintf("invalid print request: %v", err))
		return
	}
	var req printRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.sendError(fmt.Sprintf("invalid print request: %v", err))
		return
	}
	if req.Image == "" {
		c.sendError("image is required")
		return
	}

	d, err := c.server.resolve(req.printerRef)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	jobID := c.server.service.PrintImageAsync(req.Image, d)
	c.sendResponse(map[string]any{
		"success": true,
		"job_id":  jobID,
	})
}

func (c *WSClient) sendResponse(data map[string]any) {
	c.server.hub.send(c, WSMessage{Event: EventResponse, Data: data})
}

func (c *WSClient) sendError(message string) {
	c.server.hub.send(c, WSMessage{Event: EventError, Data: map[string]any{"error": message}})
}

// broadcastJob reports a finished asynchronous job as a print_image event
func (s *Server) broadcastJob(job printer.PrintJob) {
	data := map[string]any{
		"success":    job.Result.OK(),
		"job_id":     job.ID,
		"printer_id": job.PrinterID,
		"result":     job.Result.Code(),
	}
	if !job.Result.OK() {
		data["error"] = job.Error
	}
	s.hub.broadcast(WSMessage{Event: EventPrintImage, Data: data})
}

// BroadcastPrinterAdded broadcasts a printer added event to all connected clients
func (s *Server) BroadcastPrinterAdded(d printer.Descriptor) {
	s.hub.broadcast(WSMessage{
		Event: EventPrinterAdded,
		Data: map[string]any{
			"id":          d.ID(),
			"printer":     d,
			"description": d.DisplayName(),
		},
	})
	s.log.Info("Broadcast printer added", zap.String("printer", d.ID()))
}

// BroadcastPrinterRemoved broadcasts a printer removed event to all connected clients
func (s *Server) BroadcastPrinterRemoved(d printer.Descriptor) {
	s.hub.broadcast(WSMessage{
		Event: EventPrinterRemoved,
		Data: map[string]any{
			"id": d.ID(),
		},
	})
	s.log.Info("Broadcast printer removed", zap.String("printer", d.ID()))
}
