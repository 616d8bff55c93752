package models

import (
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/ekaya-inc/ekaya-flux/pkg/logging"
)

// Credentials identify a caller against an InfluxDB instance.
// They are held in memory only. The token must never reach a log line, so
// Credentials marshal into zap fields without it.
type Credentials struct {
	URL          string
	Token        string
	Organization string
}

// MarshalLogObject implements zapcore.ObjectMarshaler. The API token is omitted
// and the URL is sanitized.
func (c Credentials) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("url", logging.SanitizeURL(c.URL))
	enc.AddString("org", c.Organization)
	return nil
}

// SessionRecord is a live authenticated session.
// LastAccessedAt drives the sliding-window expiry.
type SessionRecord struct {
	ID             string
	Credentials    Credentials
	CreatedAt      time.Time
	LastAccessedAt time.Time
}
