package models

// Permission constants reported to clients on connect.
const (
	PermissionRead  = "read"
	PermissionWrite = "write"
)

// DefaultPermissions is reported for every session regardless of the token's
// real scope. Nothing fetches the token's authorizations from InfluxDB.
var DefaultPermissions = []string{PermissionRead, PermissionWrite}

// UserInfo describes the connected identity returned by the connect endpoint.
type UserInfo struct {
	Org         string   `json:"org"`
	URL         string   `json:"url"`
	Permissions []string `json:"permissions"`
}
