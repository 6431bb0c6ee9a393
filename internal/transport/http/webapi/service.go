package webapi

import (
	"context"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"clinivoice-server-go/internal/app/services"
	"clinivoice-server-go/internal/domain/action"
	"clinivoice-server-go/internal/domain/audit"
	"clinivoice-server-go/internal/platform/config"
	"clinivoice-server-go/internal/platform/errors"
	"clinivoice-server-go/internal/platform/logging"
	"clinivoice-server-go/internal/platform/observability"
	"clinivoice-server-go/internal/platform/storage"
	httptransport "clinivoice-server-go/internal/transport/http"
)

// Service exposes the operator console API: session counts, safety
// telemetry, the append-only audit trail and the order log.
type Service struct {
	config   *config.Config
	logger   *logging.Logger
	db       *storage.Database
	sink     audit.Sink
	sessions *services.SessionService
	started  time.Time
}

// NewService builds the console API service.
func NewService(cfg *config.Config, db *storage.Database, sink audit.Sink, sessions *services.SessionService, logger *logging.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New(errors.KindConfig, "webapi.NewService", "config is required")
	}
	if logger == nil {
		return nil, errors.New(errors.KindConfig, "webapi.NewService", "logger is required")
	}

	return &Service{
		config:   cfg,
		logger:   logger,
		db:       db,
		sink:     sink,
		sessions: sessions,
		started:  time.Now(),
	}, nil
}

// Register wires the console routes. Secured may be nil when auth is
// disabled; routes then fall back to the open API group.
func (s *Service) Register(ctx context.Context, api, secured *gin.RouterGroup) error {
	api.GET("/health", s.handleHealth)
	api.POST("/auth/token", s.handleIssueToken)

	guarded := secured
	if guarded == nil {
		guarded = api
	}
	guarded.GET("/sessions", s.handleSessions)
	guarded.GET("/telemetry/counters", s.handleCounters)
	guarded.GET("/audit/events", s.handleAuditEvents)
	guarded.GET("/orders", s.handleOrders)
	guarded.GET("/system", s.handleSystem)
	guarded.GET("/policy", s.handlePolicy)

	s.logger.InfoTag("HTTP", "console API routes registered")
	return nil
}

func (s *Service) handleHealth(c *gin.Context) {
	data := gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}
	if s.sessions != nil {
		data["sessions"] = s.sessions.Count()
	}
	s.respondSuccess(c, http.StatusOK, data, "")
}

// handleIssueToken trades the static provisioning token for a JWT the
// console can use on secured routes.
func (s *Service) handleIssueToken(c *gin.Context) {
	var req struct {
		ClientID string `json:"client_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ClientID == "" {
		s.respondError(c, http.StatusBadRequest, "client_id is required")
		return
	}

	if c.GetHeader("AuthorToken") != s.config.Server.Token || s.config.Server.Token == "" {
		s.respondError(c, http.StatusUnauthorized, "invalid provisioning token")
		return
	}

	token, err := httptransport.IssueToken(s.config.Server.Auth.Secret, req.ClientID, s.config.Server.Auth.TokenTTL.Std())
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, "token issue failed")
		return
	}
	s.respondSuccess(c, http.StatusOK, gin.H{"token": token}, "")
}

// handleSessions lists live sessions with their duplex state and
// audience mode.
func (s *Service) handleSessions(c *gin.Context) {
	if s.sessions == nil {
		s.respondError(c, http.StatusNotImplemented, "session listing requires the session service")
		return
	}
	s.respondSuccess(c, http.StatusOK, s.sessions.Infos(), "")
}

// handleCounters reports the safety telemetry counters.
func (s *Service) handleCounters(c *gin.Context) {
	s.respondSuccess(c, http.StatusOK, observability.Snapshot(), "")
}

// handleAuditEvents queries the audit trail. Only the sqlite sink
// supports historical queries; other sinks return 501.
func (s *Service) handleAuditEvents(c *gin.Context) {
	sqlite, ok := s.sink.(*audit.SQLiteSink)
	if !ok {
		s.respondError(c, http.StatusNotImplemented, "audit queries require the sqlite sink")
		return
	}

	limit := parseLimit(c.Query("limit"), 100)
	records, err := sqlite.Query(c.Request.Context(), c.Query("session_id"), c.Query("type"), limit)
	if err != nil {
		s.logger.ErrorTag("HTTP", "audit query failed: %v", err)
		s.respondError(c, http.StatusInternalServerError, "audit query failed")
		return
	}
	s.respondSuccess(c, http.StatusOK, records, "")
}

func (s *Service) handleOrders(c *gin.Context) {
	if s.db == nil {
		s.respondError(c, http.StatusNotImplemented, "order log requires the database")
		return
	}

	limit := parseLimit(c.Query("limit"), 50)
	var records []action.OrderRecord
	query := s.db.DB().WithContext(c.Request.Context()).Order("id DESC").Limit(limit)
	if sessionID := c.Query("session_id"); sessionID != "" {
		query = query.Where("session_id = ?", sessionID)
	}
	if err := query.Find(&records).Error; err != nil {
		s.logger.ErrorTag("HTTP", "order query failed: %v", err)
		s.respondError(c, http.StatusInternalServerError, "order query failed")
		return
	}
	s.respondSuccess(c, http.StatusOK, records, "")
}

func (s *Service) handleSystem(c *gin.Context) {
	data := gin.H{
		"go_version": runtime.Version(),
		"goroutines": runtime.NumGoroutine(),
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		data["cpu_percent"] = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		data["mem_used_percent"] = vm.UsedPercent
	}
	if uptime, err := host.Uptime(); err == nil {
		data["host_uptime_sec"] = uptime
	}

	s.respondSuccess(c, http.StatusOK, data, "")
}

// handlePolicy exposes the active safety policy for the console.
func (s *Service) handlePolicy(c *gin.Context) {
	p := s.config.Policy
	s.respondSuccess(c, http.StatusOK, gin.H{
		"speaker_safe_default":          p.SpeakerSafeDefault,
		"barge_in_enabled":              p.BargeInEnabled,
		"confirmation_timeout":          p.ConfirmationTimeout.String(),
		"provider_mode_ttl":             p.ProviderModeTTL.String(),
		"phi_readback_requires_confirm": p.PHIReadbackRequiresConfirm,
		"phi_categories":                p.PHICategories,
	}, "")
}

func parseLimit(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > 1000 {
		return fallback
	}
	return limit
}

func (s *Service) respondSuccess(c *gin.Context, statusCode int, data interface{}, message string) {
	if message == "" {
		message = "ok"
	}
	c.JSON(statusCode, gin.H{
		"success": true,
		"data":    data,
		"message": message,
		"code":    statusCode,
	})
}

func (s *Service) respondError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"data":    gin.H{"error": message},
		"message": message,
		"code":    statusCode,
	})
}
