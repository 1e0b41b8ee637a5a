package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/temirov/clawaudit/internal/attestation"
	"github.com/temirov/clawaudit/internal/notify"
	"github.com/temirov/clawaudit/internal/remediation"
	"github.com/temirov/clawaudit/internal/scan"
	"github.com/temirov/clawaudit/internal/webhook"
)

const (
	healthPathConstant      = "/healthz"
	scanPathConstant        = "/scan"
	proofPathConstant       = "/proof"
	trailPathConstant       = "/trail"
	remediationPathConstant = "/remediation"
	devUpdatePathConstant   = "/dev-update"
	webhookPathConstant     = "/webhooks/github"

	scannerRequiredMessageConstant  = "server requires a scanner"
	registryRequiredMessageConstant = "server requires an attestation registry"

	requestHandledMessageConstant = "HTTP request handled"
	logFieldMethodConstant        = "method"
	logFieldPathConstant          = "path"
	logFieldStatusConstant        = "status"
	logFieldDurationConstant      = "duration"
	logFieldClientIPConstant      = "client_ip"
)

var (
	// ErrScannerRequired indicates a missing scan orchestrator.
	ErrScannerRequired = errors.New(scannerRequiredMessageConstant)
	// ErrRegistryRequired indicates a missing attestation registry.
	ErrRegistryRequired = errors.New(registryRequiredMessageConstant)
)

// Scanner runs audits.
type Scanner interface {
	Scan(scanContext context.Context, request scan.Request) (scan.Result, error)
}

// ProofRegistry answers proof lookups and trail listings.
type ProofRegistry interface {
	Lookup(lookupContext context.Context, codeHash string, address string) (attestation.Proof, bool, error)
	List(listContext context.Context, limit int) ([]attestation.Proof, error)
}

// RemediationPublisher opens remediation pull requests.
type RemediationPublisher interface {
	CreatePullRequest(publishContext context.Context, request remediation.Request) (remediation.PullRequest, error)
}

// WebhookHandler processes repository deliveries.
type WebhookHandler interface {
	Handle(handleContext context.Context, eventType string, payload []byte) (webhook.Result, error)
}

// Dependencies wire a Server. Publisher, DeveloperSender and Webhook are optional; their routes
// answer with a configuration error when absent.
type Dependencies struct {
	Scanner         Scanner
	Registry        ProofRegistry
	Publisher       RemediationPublisher
	DeveloperSender notify.Sender
	Webhook         WebhookHandler
	WebhookSecret   string
	Logger          *zap.Logger
}

// Server exposes the audit operations over HTTP.
type Server struct {
	engine          *gin.Engine
	scanner         Scanner
	registry        ProofRegistry
	publisher       RemediationPublisher
	developerSender notify.Sender
	webhookHandler  WebhookHandler
	webhookSecret   string
	logger          *zap.Logger
}

// NewServer constructs a Server with its routes registered.
func NewServer(dependencies Dependencies) (*Server, error) {
	if dependencies.Scanner == nil {
		return nil, ErrScannerRequired
	}
	if dependencies.Registry == nil {
		return nil, ErrRegistryRequired
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))

	server := &Server{
		engine:          engine,
		scanner:         dependencies.Scanner,
		registry:        dependencies.Registry,
		publisher:       dependencies.Publisher,
		developerSender: dependencies.DeveloperSender,
		webhookHandler:  dependencies.Webhook,
		webhookSecret:   dependencies.WebhookSecret,
		logger:          logger,
	}
	server.routes()
	return server, nil
}

// Handler returns the HTTP handler serving every route.
func (server *Server) Handler() http.Handler {
	return server.engine
}

func (server *Server) routes() {
	server.engine.GET(healthPathConstant, server.handleHealth)
	server.engine.POST(scanPathConstant, server.handleScan)
	server.engine.GET(proofPathConstant, server.handleProof)
	server.engine.GET(trailPathConstant, server.handleTrail)
	server.engine.POST(remediationPathConstant, server.handleRemediation)
	server.engine.POST(devUpdatePathConstant, server.handleDevUpdate)
	server.engine.POST(webhookPathConstant, server.handleWebhook)
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(ginContext *gin.Context) {
		startedAt := time.Now()
		ginContext.Next()
		logger.Info(
			requestHandledMessageConstant,
			zap.String(logFieldMethodConstant, ginContext.Request.Method),
			zap.String(logFieldPathConstant, ginContext.Request.URL.Path),
			zap.Int(logFieldStatusConstant, ginContext.Writer.Status()),
			zap.Duration(logFieldDurationConstant, time.Since(startedAt)),
			zap.String(logFieldClientIPConstant, ginContext.ClientIP()),
		)
	}
}
