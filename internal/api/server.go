// Package api handles HTTP and WebSocket API endpoints
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/thereceipt/thermal-bridge/internal/command"
	"github.com/thereceipt/thermal-bridge/internal/logger"
	"github.com/thereceipt/thermal-bridge/internal/printer"
)

// DefaultFindTimeout bounds a discovery request.
const DefaultFindTimeout = 30 * time.Second

// Server is the API server
type Server struct {
	router      *gin.Engine
	service     *printer.Service
	executor    *command.Executor
	upgrader    websocket.Upgrader
	hub         *hub
	log         *zap.Logger
	findTimeout time.Duration
}

// NewServer creates a new API server
func NewServer(service *printer.Service, log *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	log = logger.OrNop(log)

	router := gin.New()
	router.Use(logger.Recovery(log), logger.GinMiddleware(log), corsMiddleware())

	server := &Server{
		router:   router,
		service:  service,
		executor: command.NewExecutor(service),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		hub:         newHub(),
		log:         log.Named("api"),
		findTimeout: DefaultFindTimeout,
	}

	service.OnJobDone(server.broadcastJob)
	server.setupRoutes()

	return server
}

func (s *Server) setupRoutes() {
	// HTTP API
	s.router.GET("/printers", s.handleGetPrinters)
	s.router.GET("/printers/find", s.handleFindPrinters)
	s.router.POST("/printers/manual", s.handleConnectManually)
	s.router.POST("/printer/name", s.handleSetPrinterName)
	s.router.POST("/printer/forget", s.handleForgetPrinter)
	s.router.GET("/models/:manufacturer", s.handleSupportedModels)
	s.router.POST("/print", s.handlePrint)
	s.router.POST("/testpage", s.handleTestPage)
	s.router.GET("/jobs", s.handleGetJobs)
	s.router.GET("/job/:id", s.handleGetJob)

	// Command endpoint
	s.router.POST("/command", s.handleCommand)

	// WebSocket
	s.router.GET("/ws", s.handleWebSocket)

	// Health check
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// printerRef names the printer of a request: a remembered id or a full
// descriptor as returned by discovery.
type printerRef struct {
	PrinterID string          `json:"printer_id"`
	Printer   json.RawMessage `json:"printer"`
}

func (s *Server) resolve(ref printerRef) (printer.Descriptor, error) {
	if len(ref.Printer) > 0 && string(ref.Printer) != "null" {
		return printer.DecodeDescriptor(ref.Printer)
	}
	if ref.PrinterID == "" {
		return nil, errors.New("printer_id or printer is required")
	}
	return s.service.PrinterByID(ref.PrinterID)
}

// handleGetPrinters returns every remembered printer
func (s *Server) handleGetPrinters(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"printers": s.service.Printers()})
}

// handleFindPrinters runs discovery. The result is also broadcast as a
// printers_found event.
func (s *Server) handleFindPrinters(c *gin.Context) {
	m, types, err := parseSearch(c.Query("manufacturer"), c.QueryArray("type"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	found := s.findPrinters(c.Request.Context(), m, types)
	if found == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no finder for manufacturer " + string(m)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"printers": found})
}

func parseSearch(manufacturer string, typeNames []string) (printer.Manufacturer, []printer.ConnectionType, error) {
	var m printer.Manufacturer
	if manufacturer != "" && manufacturer != "all" {
		var err error
		if m, err = printer.ParseManufacturer(manufacturer); err != nil {
			return "", nil, err
		}
	}
	types := make([]printer.ConnectionType, 0, len(typeNames))
	for _, name := range typeNames {
		t, err := printer.ParseConnectionType(name)
		if err != nil {
			return "", nil, err
		}
		types = append(types, t)
	}
	return m, types, nil
}

// findPrinters searches and broadcasts the result. It returns nil when the
// search could not run.
func (s *Server) findPrinters(ctx context.Context, m printer.Manufacturer, types []printer.ConnectionType) []printer.Descriptor {
	ctx, cancel := context.WithTimeout(ctx, s.findTimeout)
	defer cancel()

	found, err := s.service.FindPrinters(ctx, m, types...)
	if err != nil {
		s.log.Warn("Printer search failed", zap.Error(err))
		return nil
	}
	if found == nil {
		found = []printer.Descriptor{}
	}
	s.hub.broadcast(WSMessage{Event: EventPrintersFound, Data: map[string]any{
		"manufacturer": string(m),
		"printers":     found,
	}})
	return found
}

type manualRequest struct {
	Manufacturer   string `json:"manufacturer" binding:"required"`
	ConnectionType string `json:"connection_type" binding:"required"`
	printer.ManualInput
}

// handleConnectManually adds a printer from user input
func (s *Server) handleConnectManually(c *gin.Context) {
	var req manualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "manufacturer and connection_type are required"})
		return
	}

	m, err := printer.ParseManufacturer(req.Manufacturer)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t, err := printer.ParseConnectionType(req.ConnectionType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	d, err := s.service.ConnectManually(m, t, req.ManualInput)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"printer_id": d.ID(),
		"printer":    d,
	})
}

// handleSetPrinterName sets a custom name for a printer
func (s *Server) handleSetPrinterName(c *gin.Context) {
	var req struct {
		PrinterID string `json:"printer_id" binding:"required"`
		Name      string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "printer_id and name are required"})
		return
	}

	ok, err := s.service.SetPrinterName(req.PrinterID, req.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "printer not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleForgetPrinter removes a printer from the registry
func (s *Server) handleForgetPrinter(c *gin.Context) {
	var req struct {
		PrinterID string `json:"printer_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "printer_id is required"})
		return
	}

	ok, err := s.service.Forget(req.PrinterID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "printer not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleSupportedModels lists the models of one manufacturer
func (s *Server) handleSupportedModels(c *gin.Context) {
	m, err := printer.ParseManufacturer(c.Param("manufacturer"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	models, err := s.service.SupportedModels(m)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"manufacturer": m, "models": models})
}

type printRequest struct {
	printerRef
	Image string `json:"image" binding:"required"`
	Async bool   `json:"async"`
}

// handlePrint prints a base64 image. Synchronous prints answer with the
// result; asynchronous ones with a job id, the result following as a
// print_image event.
func (s *Server) handlePrint(c *gin.Context) {
	var req printRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image is required"})
		return
	}

	d, err := s.resolve(req.printerRef)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	if req.Async {
		jobID := s.service.PrintImageAsync(req.Image, d)
		c.JSON(http.StatusAccepted, gin.H{
			"success": true,
			"job_id":  jobID,
		})
		return
	}

	res, err := s.service.PrintImage(c.Request.Context(), req.Image, d)
	if err != nil {
		s.log.Warn("Print failed", zap.String("printer", d.ID()), zap.Stringer("result", res), zap.Error(err))
	}
	c.JSON(http.StatusOK, resultBody(res))
}

// handleTestPage prints a self-test page
func (s *Server) handleTestPage(c *gin.Context) {
	var ref printerRef
	if err := c.ShouldBindJSON(&ref); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := s.resolve(ref)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	res, _ := s.service.PrintTestPage(c.Request.Context(), d)
	c.JSON(http.StatusOK, resultBody(res))
}

func resultBody(res printer.Result) gin.H {
	body := gin.H{
		"success": res.OK(),
		"result":  res.Code(),
	}
	if !res.OK() {
		body["error"] = res.Message()
	}
	return body
}

// handleGetJobs returns all print jobs
func (s *Server) handleGetJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": s.service.Jobs()})
}

// handleGetJob returns a specific print job
func (s *Server) handleGetJob(c *gin.Context) {
	job, ok := s.service.Job(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// handleCommand handles command execution requests
func (s *Server) handleCommand(c *gin.Context) {
	var req struct {
		Command string `json:"command" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "command is required"})
		return
	}

	result := s.executor.Execute(c.Request.Context(), req.Command)

	if !result.Success {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   result.Error,
		})
		return
	}

	response := gin.H{"success": true}
	if result.Message != "" {
		response["message"] = result.Message
	}
	for k, v := range result.Data {
		response[k] = v
	}
	c.JSON(http.StatusOK, response)
}

// Run starts the API server
func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
