package models

// QueryResult is a Flux result normalized into a columns/rows table.
// Columns are fixed by the first row received; every row carries the same keys.
type QueryResult struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	TotalRows int              `json:"totalRows"`
	// Query is the text actually sent upstream, including any appended limit.
	Query string `json:"query"`
	// ExecutionTime is the Unix millisecond marker captured when execution started.
	ExecutionTime int64 `json:"executionTime"`
}

// QueryValidation is the outcome of the superficial Flux checks.
type QueryValidation struct {
	Valid       bool     `json:"valid"`
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`
}

// QueryTemplate is an example query offered to clients.
type QueryTemplate struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Query       string `json:"query" yaml:"query"`
	Category    string `json:"category" yaml:"category"`
}
