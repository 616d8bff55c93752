package services

import (
	"strings"

	"github.com/ekaya-inc/ekaya-flux/pkg/models"
)

const (
	issueMissingFrom  = "Query should start with from() function"
	issueMissingRange = "Query should include range() or start parameter"

	suggestionBasicQuery = `Try: from(bucket: "your-bucket") |> range(start: -1h)`
)

// ValidateQuery runs a superficial check of a Flux query: it must read from a
// bucket and bound its time range. It does not parse Flux.
func ValidateQuery(query string) models.QueryValidation {
	issues := []string{}

	if !strings.Contains(query, "from(") {
		issues = append(issues, issueMissingFrom)
	}
	if !strings.Contains(query, "range(") && !strings.Contains(query, "start:") {
		issues = append(issues, issueMissingRange)
	}

	suggestions := []string{}
	if len(issues) > 0 {
		suggestions = append(suggestions, suggestionBasicQuery)
	}

	return models.QueryValidation{
		Valid:       len(issues) == 0,
		Issues:      issues,
		Suggestions: suggestions,
	}
}
