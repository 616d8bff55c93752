package models

// Bucket is a top-level InfluxDB container of time-series data.
type Bucket struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
