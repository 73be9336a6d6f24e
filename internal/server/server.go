package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ashirimi1019/market-ready/internal/config"
	"github.com/ashirimi1019/market-ready/internal/db"
	"github.com/ashirimi1019/market-ready/internal/evidence"
	"github.com/ashirimi1019/market-ready/internal/gitscan"
	"github.com/ashirimi1019/market-ready/internal/llm"
	"github.com/ashirimi1019/market-ready/internal/logger"
	"github.com/ashirimi1019/market-ready/internal/market"
	"github.com/ashirimi1019/market-ready/internal/mission"
	"github.com/ashirimi1019/market-ready/internal/server/middleware"
	"github.com/ashirimi1019/market-ready/internal/server/ratelimit"
	"github.com/ashirimi1019/market-ready/internal/storage"
	"github.com/ashirimi1019/market-ready/internal/verification"
)

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	cfg         *config.Config
	db          *db.DB
	log         *logger.Logger
	rateLimiter *ratelimit.Limiter
	jwtService  *JWTService
	passwords   *config.PasswordConfig
	validate    *validator.Validate
	uploads     storage.ObjectStore
	verifier    *verification.Verifier
	market      *market.Service
	mission     *mission.Orchestrator
	llmClient   llm.Client // nil when GEMINI_API_KEY is unset
}

// New creates a new server instance wired to the database and, when
// credentials allow, the AI and market providers.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Server, error) {
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.Migrate(ctx); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		db:       database,
		log:      log,
		validate: validator.New(),
	}

	s.rateLimiter = ratelimit.NewLimiter(ratelimit.LoadConfig())

	s.passwords, err = config.NewPasswordConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create password config: %w", err)
	}
	jwtConfig, err := config.NewJWTConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT config: %w", err)
	}
	s.jwtService = NewJWTService(jwtConfig)

	s.uploads, err = storage.NewLocalStore(cfg.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload store: %w", err)
	}

	// AI adjudication, copilot, and planning degrade to rules or report the
	// provider unavailable when no key is configured.
	var docs verification.DocumentVerifier
	var copilot market.ProposalCopilot
	if cfg.GeminiAPIKey != "" {
		client, cerr := llm.NewClient(ctx, llm.DefaultConfig(), cfg.GeminiAPIKey)
		if cerr != nil {
			return nil, fmt.Errorf("failed to create LLM client: %w", cerr)
		}
		s.llmClient = client
		fetcher := evidence.NewFetcher(&evidence.Options{
			Timeout:    cfg.ProviderTimeout,
			UseBrowser: true,
		})
		docs = verification.NewGeminiVerifier(client, fetcher)
		copilot = &market.GeminiCopilot{Client: client}
	} else {
		log.Warn("GEMINI_API_KEY not set, AI adjudication and planning disabled")
	}
	repos := gitscan.NewScanner(cfg.GitHubToken, cfg.ProviderTimeout)
	s.verifier = verification.New(database, docs, repos, s.uploads, log, cfg.ProviderTimeout)

	s.market = market.NewService(database, copilot, log)
	if cfg.AdzunaAppID != "" && cfg.AdzunaAppKey != "" {
		s.market.AddConnector(market.NewAdzunaConnector(cfg.AdzunaAppID, cfg.AdzunaAppKey, cfg.ProviderTimeout))
	}
	if cfg.CareerOneStopUserID != "" && cfg.CareerOneStopToken != "" {
		s.market.AddConnector(market.NewCareerOneStopConnector(cfg.CareerOneStopUserID, cfg.CareerOneStopToken, cfg.ProviderTimeout))
	}
	s.market.AddConnector(market.NewONetConnector(cfg.ProviderTimeout))

	s.mission = mission.New(database, s.llmClient, cfg.Scoring, log)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.withRateLimit(s.withLogging(s.withCORS(s.routes()))),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // AI adjudication and ingestion can run long
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// routes builds the router. Auth guards /user/* and /score/*; the admin
// role guards /admin/*.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/login", s.handleLogin)

	// Public catalog reads.
	mux.HandleFunc("GET /pathways", s.handleListPathways)
	mux.HandleFunc("GET /pathways/{id}", s.handleGetPathway)
	mux.HandleFunc("GET /pathways/{id}/checklist", s.handlePublishedChecklist)
	mux.HandleFunc("GET /pathways/{id}/versions", s.handleListVersions)
	mux.HandleFunc("GET /pathways/{id}/changes", s.handleListChanges)
	mux.HandleFunc("GET /checklists/versions/{version_id}", s.handleGetVersion)
	mux.HandleFunc("GET /market/signals/{pathway_id}", s.handleListSignals)

	// Authenticated user surface.
	user := http.NewServeMux()
	user.HandleFunc("PUT /user/pathway", s.handleSelectPathway)
	user.HandleFunc("GET /user/pathway", s.handleGetUserPathway)
	user.HandleFunc("POST /user/proofs", s.handleSubmitProof)
	user.HandleFunc("GET /user/proofs", s.handleListUserProofs)
	user.HandleFunc("POST /user/proofs/upload", s.handleUploadProof)
	user.HandleFunc("POST /user/proofs/{id}/resubmit", s.handleResubmitProof)
	user.HandleFunc("GET /user/readiness", s.handleLegacyReadiness)
	user.HandleFunc("POST /user/ai/orchestrator", s.handleMissionPlan)
	user.HandleFunc("POST /user/ai/proof-checker", s.handleProofChecker)
	user.HandleFunc("POST /user/ai/market-stress-test", s.handleStressTest)
	mux.Handle("/user/", middleware.Auth(s.jwtService.AsTokenValidator())(user))

	score := http.NewServeMux()
	score.HandleFunc("GET /score/mri", s.handleMRIScore)
	mux.Handle("/score/", middleware.Auth(s.jwtService.AsTokenValidator())(score))

	// Admin surface.
	admin := http.NewServeMux()
	admin.HandleFunc("POST /admin/pathways", s.handleUpsertPathway)
	admin.HandleFunc("POST /admin/skills", s.handleUpsertSkill)
	admin.HandleFunc("GET /admin/skills", s.handleListSkills)
	admin.HandleFunc("POST /admin/checklists/{pathway_id}/draft", s.handleCreateDraft)
	admin.HandleFunc("POST /admin/checklists/{pathway_id}/publish", s.handlePublish)
	admin.HandleFunc("POST /admin/checklists/{pathway_id}/rollback", s.handleRollback)
	admin.HandleFunc("GET /admin/checklists/versions/{version_id}/items", s.handleListVersionItems)
	admin.HandleFunc("PUT /admin/checklists/items/{item_id}", s.handleUpdateItem)
	admin.HandleFunc("DELETE /admin/checklists/items/{item_id}", s.handleDeleteItem)
	admin.HandleFunc("GET /admin/proofs", s.handleListProofsByStatus)
	admin.HandleFunc("POST /admin/proofs/{id}/adjudicate", s.handleAdjudicate)
	admin.HandleFunc("PUT /admin/proofs/{id}", s.handleOverrideProof)
	admin.HandleFunc("POST /admin/market/signals/{pathway_id}", s.handleRecordSignals)
	admin.HandleFunc("POST /admin/market/ingest/external", s.handleIngestExternal)
	admin.HandleFunc("GET /admin/market/ingestions", s.handleListIngestions)
	admin.HandleFunc("POST /admin/market/proposals", s.handleCreateProposal)
	admin.HandleFunc("POST /admin/market/proposals/copilot", s.handleCopilotProposal)
	admin.HandleFunc("GET /admin/market/proposals", s.handleListProposals)
	admin.HandleFunc("POST /admin/market/proposals/{id}/approve", s.handleApproveProposal)
	admin.HandleFunc("POST /admin/market/proposals/{id}/reject", s.handleRejectProposal)
	admin.HandleFunc("POST /admin/market/proposals/{id}/publish", s.handlePublishProposal)
	admin.HandleFunc("POST /admin/market/automation/run", s.handleAutomationRun)
	admin.HandleFunc("GET /admin/market/automation/status", s.handleAutomationStatus)
	admin.HandleFunc("GET /admin/audit-logs", s.handleListAuditLogs)
	adminChain := middleware.Auth(s.jwtService.AsTokenValidator())(middleware.RequireRole(db.RoleAdmin)(admin))
	mux.Handle("/admin/", adminChain)

	return mux
}

// Start begins listening for requests and blocks until shutdown.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		s.log.Info("server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Fatal("server error", "error", err)
		}
	}()

	<-stop
	s.log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.llmClient != nil {
		if err := s.llmClient.Close(); err != nil {
			s.log.Warn("failed to close LLM client", "error", err)
		}
	}

	s.db.Close()
	s.log.Info("server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := s.extractClientID(r)

		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)
		if !allowed {
			s.setRateLimitHeaders(w, info)
			s.rateLimitResponse(w, info)
			return
		}

		s.setRateLimitHeaders(w, info)
		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"duration", time.Since(start).String())
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("failed to encode JSON response", "error", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// extractClientID extracts the client identifier from the request.
// Uses the IP from RemoteAddr; X-Forwarded-For is ignored because the
// server may not sit behind a trusted proxy.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]interface{}{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		response["retry_after"] = int(info.RetryAfter.Seconds())
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(info.RetryAfter.Seconds())))
	}

	s.log.Warn("rate limit exceeded",
		"limit", info.Limit,
		"remaining", info.Remaining,
		"reset", info.ResetTime.Format(time.RFC3339))

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
