package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"llmchat-gateway/internal/config"
	"llmchat-gateway/internal/metrics"
	"llmchat-gateway/internal/models"
	"llmchat-gateway/internal/provider"
	"llmchat-gateway/internal/service"
	"llmchat-gateway/internal/translator"
)

const (
	maxBodyBytes        = 1 << 20 // 1 MiB
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	idleTimeout         = 120 * time.Second

	errChatUpstream   = "Failed to communicate with LLM server"
	errModelsUpstream = "Failed to list models"
	errInvalidRequest = "Invalid chat request"
	errInternal       = "Internal server error"
)

type Server struct {
	cfg     config.Config
	svc     *service.Service
	metrics *metrics.Metrics
	app     *echo.Echo
	address string
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg config.Config, svc *service.Service, m *metrics.Metrics) (*Server, error) {
	if svc == nil {
		return nil, errors.New("service must not be nil")
	}
	if m == nil {
		return nil, errors.New("metrics must not be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"id", v.RequestID,
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(m.Middleware())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.Server.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAccept},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
	}))

	srv := &Server{
		cfg:     cfg,
		svc:     svc,
		metrics: m,
		app:     e,
		address: fmt.Sprintf(":%d", cfg.Server.Port),
	}

	srv.registerRoutes()

	return srv, nil
}

// Handler exposes the routed echo instance.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	printStartupBanner(s.cfg)
	slog.Info("starting server", "addr", s.address, "llm_url", s.cfg.LLM.BaseURL, "model", s.cfg.LLM.Model)

	httpServer := &http.Server{
		Addr:        s.address,
		Handler:     s.app,
		ReadTimeout: readTimeout,
		// Completions may run up to the upstream request timeout.
		WriteTimeout: s.cfg.LLM.RequestTimeout + readTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerRoutes() {
	api := s.app.Group("/api")
	api.POST("/chat", s.handleChat)
	api.GET("/models", s.handleModels)
	api.GET("/health", s.handleHealth)
	api.GET("/diagnose", s.handleDiagnose)

	s.app.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
}

func (s *Server) handleChat(c echo.Context) error {
	var req models.ChatRequest
	if err := decodeRequestBody(c, &req); err != nil {
		return err
	}
	slog.Debug("received chat request", "messages", len(req.Messages))

	resp, err := s.svc.Chat(upstreamContext(c), req)
	if err != nil {
		return toHTTPError(err, errChatUpstream)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleModels(c echo.Context) error {
	list, err := s.svc.ListModels(upstreamContext(c))
	if err != nil {
		return toHTTPError(err, errModelsUpstream)
	}
	if list == nil {
		list = []models.Model{}
	}
	return c.JSON(http.StatusOK, models.ModelList{Data: list})
}

type healthBody struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	LLMURL  string `json:"llm_url"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthBody{
		Status:  "ok",
		Service: s.cfg.Service.Name,
		LLMURL:  s.cfg.LLM.BaseURL,
	})
}

func (s *Server) handleDiagnose(c echo.Context) error {
	return c.JSON(http.StatusOK, s.svc.Diagnose(upstreamContext(c)))
}

// upstreamContext keeps request values but drops cancellation, so a client
// disconnect does not abort an upstream call already in flight.
func upstreamContext(c echo.Context) context.Context {
	return context.WithoutCancel(c.Request().Context())
}

func decodeRequestBody[T any](c echo.Context, target *T) error {
	req := c.Request()
	defer req.Body.Close()

	req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBodyBytes)

	decoder := json.NewDecoder(req.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return requestError{
				Status:  http.StatusBadRequest,
				Message: errInvalidRequest,
				Details: "request body is required",
			}
		}
		return requestError{
			Status:  http.StatusBadRequest,
			Message: errInvalidRequest,
			Details: fmt.Sprintf("invalid JSON payload: %v", err),
		}
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: errInvalidRequest,
			Details: "request body must contain a single JSON object",
		}
	}
	return nil
}

type requestError struct {
	Status  int
	Message string
	Details string
}

func (e requestError) Error() string {
	if e.Details == "" {
		return e.Message
	}
	return e.Message + ": " + e.Details
}

// StatusCode lets middleware observe the status before the body is written.
func (e requestError) StatusCode() int {
	return e.Status
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = c.JSON(reqErr.Status, errorBody{Error: reqErr.Message, Details: reqErr.Details})
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		_ = c.JSON(he.Code, errorBody{Error: http.StatusText(he.Code), Details: fmt.Sprint(he.Message)})
		return
	}

	slog.Error("unhandled error", "err", err)
	_ = c.JSON(http.StatusInternalServerError, errorBody{Error: errInternal})
}

// toHTTPError maps the closed set of service errors onto status codes.
func toHTTPError(err error, upstreamMessage string) error {
	var inputErr *translator.InputError

	switch {
	case errors.As(err, &inputErr):
		return requestError{Status: http.StatusBadRequest, Message: errInvalidRequest, Details: inputErr.Error()}
	case provider.IsUpstreamError(err):
		return requestError{Status: http.StatusBadGateway, Message: upstreamMessage, Details: err.Error()}
	default:
		slog.Warn("unclassified service error", "err", err)
		return requestError{Status: http.StatusBadGateway, Message: upstreamMessage, Details: err.Error()}
	}
}

func printStartupBanner(cfg config.Config) {
	host := "127.0.0.1"
	port := cfg.Server.Port
	fmt.Println()
	fmt.Println("llmchat-gateway ready")
	fmt.Printf("Listening on http://%s:%d\n", host, port)
	fmt.Printf("Upstream LLM server: %s (default model %s)\n", cfg.LLM.BaseURL, cfg.LLM.Model)
	fmt.Println("Endpoints:")
	fmt.Println("  POST /api/chat")
	fmt.Println("  GET  /api/models")
	fmt.Println("  GET  /api/health")
	fmt.Println("  GET  /api/diagnose")
	fmt.Println("  GET  /metrics")
	fmt.Printf("Example:\n  curl http://%s:%d/api/chat -H 'Content-Type: application/json' -d '{\"messages\":[{\"role\":\"user\",\"content\":\"hello\"}]}'\n\n", host, port)
}
