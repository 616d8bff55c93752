package auth

import (
	"context"

	"github.com/ekaya-inc/ekaya-flux/pkg/models"
)

type contextKey string

// SessionKey holds the *models.SessionRecord resolved by RequireSession.
const SessionKey contextKey = "session"

// WithSession returns a copy of ctx carrying rec.
func WithSession(ctx context.Context, rec *models.SessionRecord) context.Context {
	return context.WithValue(ctx, SessionKey, rec)
}

// GetSession extracts the authenticated session from the context.
func GetSession(ctx context.Context) (*models.SessionRecord, bool) {
	rec, ok := ctx.Value(SessionKey).(*models.SessionRecord)
	return rec, ok && rec != nil
}

// GetCredentials returns the InfluxDB credentials of the authenticated session.
func GetCredentials(ctx context.Context) (models.Credentials, bool) {
	rec, ok := GetSession(ctx)
	if !ok {
		return models.Credentials{}, false
	}
	return rec.Credentials, true
}
