package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"futures-signal-bot/internal/patterns"
	"futures-signal-bot/internal/regime"
	"futures-signal-bot/internal/risk"
	"futures-signal-bot/internal/scanner"
	"futures-signal-bot/internal/strategy"
)

// SignalReader serves recent persisted signals to the API
type SignalReader interface {
	Recent(n int) ([]strategy.Signal, error)
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	ProductionMode bool
	AllowOrigins   []string
}

// Server exposes the read-only status API plus the regime override endpoint
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	scanner    *scanner.Scanner
	classifier *regime.Classifier
	matcher    *patterns.Matcher
	history    regime.HistoryStore
	signals    SignalReader
	riskMgr    *risk.Manager
	config     ServerConfig
	logger     zerolog.Logger
	startedAt  time.Time
}

// NewServer creates the API server. signals may be nil when the database
// is disabled.
func NewServer(
	config ServerConfig,
	sc *scanner.Scanner,
	classifier *regime.Classifier,
	matcher *patterns.Matcher,
	history regime.HistoryStore,
	signals SignalReader,
	riskMgr *risk.Manager,
	logger zerolog.Logger,
) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = config.AllowOrigins
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = []string{"http://localhost:5173"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:     router,
		scanner:    sc,
		classifier: classifier,
		matcher:    matcher,
		history:    history,
		signals:    signals,
		riskMgr:    riskMgr,
		config:     config,
		logger:     logger,
		startedAt:  time.Now(),
	}
	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/regime", s.handleRegime)
		api.GET("/regime/history", s.handleRegimeHistory)
		api.GET("/forecast", s.handleForecast)
		api.GET("/patterns", s.handlePatterns)
		api.GET("/signals/recent", s.handleRecentSignals)
		api.GET("/profile", s.handleProfile)
		api.POST("/regime/override", s.handleSetOverride)
		api.DELETE("/regime/override", s.handleClearOverride)
	}
}

// Start begins serving in a background goroutine
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		s.logger.Info().Str("addr", addr).Msg("api server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("api server failed")
		}
	}()
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startedAt).String(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	snap := s.classifier.Snapshot()
	status := gin.H{
		"regime":          snap.Regime,
		"regime_conf":     snap.Confidence,
		"active_profile":  snap.Profile.Name,
		"manual_override": snap.ManualOverride,
		"account_balance": s.riskMgr.AccountBalance(),
		"daily_pnl":       s.riskMgr.DailyPnL(),
		"open_positions":  s.riskMgr.OpenPositionCount(),
	}
	if last := s.scanner.LastScan(); last != nil {
		status["last_scan"] = gin.H{
			"scan_id":         last.ScanID,
			"end_time":        last.EndTime,
			"symbols_scanned": last.SymbolsScanned,
			"raw_signals":     last.RawSignals,
			"accepted":        len(last.Accepted),
			"rejected":        len(last.Rejections),
		}
	}
	successResponse(c, status)
}

func (s *Server) handleRegime(c *gin.Context) {
	successResponse(c, s.classifier.Snapshot())
}

func (s *Server) handleRegimeHistory(c *gin.Context) {
	entries, err := s.history.ReadRecent(100)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to read regime history")
		return
	}
	successResponse(c, entries)
}

func (s *Server) handleForecast(c *gin.Context) {
	entries, err := s.history.ReadRecent(10)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to read regime history")
		return
	}

	snap := s.classifier.Snapshot()
	recent := make([]regime.Label, 0, len(entries))
	for _, e := range entries {
		recent = append(recent, e.Regime)
	}

	forecasts, err := s.matcher.Predict(snap.Regime, recent)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "forecast failed")
		return
	}
	successResponse(c, gin.H{
		"current":   snap.Regime,
		"forecasts": forecasts,
	})
}

func (s *Server) handlePatterns(c *gin.Context) {
	found, err := s.matcher.Analyze()
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "pattern analysis failed")
		return
	}
	successResponse(c, found)
}

func (s *Server) handleRecentSignals(c *gin.Context) {
	if s.signals == nil {
		errorResponse(c, http.StatusServiceUnavailable, "signal persistence is disabled")
		return
	}
	recent, err := s.signals.Recent(50)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to read signals")
		return
	}
	successResponse(c, recent)
}

func (s *Server) handleProfile(c *gin.Context) {
	snap := s.classifier.Snapshot()
	successResponse(c, gin.H{
		"profile":         snap.Profile,
		"manual_override": snap.ManualOverride,
	})
}

type overrideRequest struct {
	Profile string `json:"profile" binding:"required"`
}

func (s *Server) handleSetOverride(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "profile name is required")
		return
	}

	profile, err := s.classifier.SetOverride(req.Profile)
	if err != nil {
		errorResponse(c, http.StatusNotFound, err.Error())
		return
	}

	s.logger.Info().Str("profile", profile.Name).Msg("manual profile override set")
	successResponse(c, profile)
}

func (s *Server) handleClearOverride(c *gin.Context) {
	profile := s.classifier.ClearOverride()
	s.logger.Info().Str("profile", profile.Name).Msg("manual profile override cleared")
	successResponse(c, profile)
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
