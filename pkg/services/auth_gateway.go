package services

import (
	"context"
	"net/url"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-flux/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-flux/pkg/models"
)

const DefaultMinTokenLength = 10

// Connect validation messages, returned verbatim to clients.
const (
	MsgMissingFields  = "Missing required fields: url, token, and org are required"
	MsgInvalidURL     = "Invalid URL format"
	MsgTokenTooShort  = "API token appears to be too short"
	MsgConnectFailure = "Authentication failed due to server error"
)

// SessionStore is the subset of *session.Store the gateway depends on.
type SessionStore interface {
	Create(creds models.Credentials) string
	Get(token string) (*models.SessionRecord, bool)
	Delete(token string) bool
	ActiveCount() int
}

// ConnectRequest carries the credentials a caller submits to open a session.
type ConnectRequest struct {
	URL          string
	Token        string
	Organization string
}

// ConnectResult is returned on a successful connect.
type ConnectResult struct {
	SessionToken string
	User         models.UserInfo
}

// AuthGateway validates credentials against InfluxDB and manages the
// resulting sessions.
type AuthGateway interface {
	// Connect validates the request shape, probes InfluxDB and mints a session.
	// Shape failures are *apperrors.ValidationError and happen before any
	// upstream call; probe failures are *apperrors.UpstreamError.
	Connect(ctx context.Context, req ConnectRequest) (*ConnectResult, error)

	// Authenticate resolves a bearer token to its session, sliding its expiry.
	// Unknown, empty and expired tokens return apperrors.ErrInvalidSession.
	Authenticate(token string) (*models.SessionRecord, error)

	// Logout deletes the session, reporting whether it existed.
	Logout(token string) bool
}

// AuthGatewayConfig holds connect validation settings.
type AuthGatewayConfig struct {
	MinTokenLength int
}

type authGateway struct {
	proxy          QueryProxy
	sessions       SessionStore
	minTokenLength int
	logger         *zap.Logger
}

var _ AuthGateway = (*authGateway)(nil)

// NewAuthGateway creates an AuthGateway probing through proxy and storing sessions in sessions.
func NewAuthGateway(proxy QueryProxy, sessions SessionStore, cfg AuthGatewayConfig, logger *zap.Logger) AuthGateway {
	if cfg.MinTokenLength <= 0 {
		cfg.MinTokenLength = DefaultMinTokenLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &authGateway{
		proxy:          proxy,
		sessions:       sessions,
		minTokenLength: cfg.MinTokenLength,
		logger:         logger.Named("auth-gateway"),
	}
}

func (g *authGateway) Connect(ctx context.Context, req ConnectRequest) (*ConnectResult, error) {
	if req.URL == "" || req.Token == "" || req.Organization == "" {
		return nil, apperrors.NewValidationError(MsgMissingFields)
	}
	if !isValidEndpointURL(req.URL) {
		return nil, apperrors.NewValidationError(MsgInvalidURL)
	}
	if utf8.RuneCountInString(req.Token) < g.minTokenLength {
		return nil, apperrors.NewValidationError(MsgTokenTooShort)
	}

	creds := models.Credentials{
		URL:          req.URL,
		Token:        req.Token,
		Organization: req.Organization,
	}

	if err := g.proxy.TestConnection(ctx, creds); err != nil {
		g.logger.Info("connect rejected", zap.Object("credentials", creds))
		return nil, err
	}

	token := g.sessions.Create(creds)
	g.logger.Info("successful authentication", zap.Object("credentials", creds))

	return &ConnectResult{
		SessionToken: token,
		User: models.UserInfo{
			Org:         creds.Organization,
			URL:         creds.URL,
			Permissions: append([]string(nil), models.DefaultPermissions...),
		},
	}, nil
}

func (g *authGateway) Authenticate(token string) (*models.SessionRecord, error) {
	if token == "" {
		return nil, apperrors.ErrInvalidSession
	}
	rec, ok := g.sessions.Get(token)
	if !ok {
		return nil, apperrors.ErrInvalidSession
	}
	return rec, nil
}

func (g *authGateway) Logout(token string) bool {
	return g.sessions.Delete(token)
}

// isValidEndpointURL accepts absolute http and https URLs with a host.
func isValidEndpointURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}
	return u.Host != ""
}
