package services

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	ihttp "github.com/influxdata/influxdb-client-go/v2/api/http"

	"github.com/ekaya-inc/ekaya-flux/pkg/apperrors"
)

// ErrorCategory is the coarse cause assigned to an upstream failure.
type ErrorCategory string

const (
	CategoryConnectionRefused    ErrorCategory = "connection-refused"
	CategoryUnauthorized         ErrorCategory = "unauthorized"
	CategoryOrganizationNotFound ErrorCategory = "organization-not-found"
	CategoryTimeout              ErrorCategory = "timeout"
	CategoryBadRequest           ErrorCategory = "bad-request"
	CategoryForbidden            ErrorCategory = "forbidden"
	CategoryUnknown              ErrorCategory = "unknown"
)

// Classification is the user-facing outcome of classifying an upstream error.
type Classification struct {
	Category ErrorCategory
	Message  string
}

type classificationRule struct {
	patterns []string // lower case substrings
	result   Classification
}

// classificationRules is evaluated in order; the first rule with a matching
// pattern wins. Matching is a case-insensitive substring test.
var classificationRules = []classificationRule{
	{
		patterns: []string{"econnrefused", "connection refused", "no such host", "network is unreachable", "fetch"},
		result: Classification{CategoryConnectionRefused,
			"Cannot connect to InfluxDB server. Please check the URL and ensure InfluxDB is running."},
	},
	{
		patterns: []string{"unauthorized", "401"},
		result: Classification{CategoryUnauthorized,
			"Invalid API token. Please check your token and try again."},
	},
	{
		patterns: []string{"organization", "org"},
		result: Classification{CategoryOrganizationNotFound,
			"Organization not found. Please check the organization name."},
	},
	{
		patterns: []string{"timeout", "deadline exceeded"},
		result: Classification{CategoryTimeout,
			"Connection timeout. Please check your network and try again."},
	},
	{
		patterns: []string{"400", "bad request"},
		result: Classification{CategoryBadRequest,
			"Bad request. Please check your connection parameters."},
	},
	{
		patterns: []string{"403", "forbidden"},
		result: Classification{CategoryForbidden,
			"Access forbidden. Please check your API token permissions."},
	},
}

var unknownClassification = Classification{CategoryUnknown,
	"Connection failed. Please check your InfluxDB configuration."}

// ClassifyMessage maps a free-text error description to a category and a
// fixed message. It is pure: equal inputs always give equal outputs, and
// anything unrecognised falls back to CategoryUnknown.
func ClassifyMessage(description string) Classification {
	lower := strings.ToLower(description)
	for _, rule := range classificationRules {
		for _, p := range rule.patterns {
			if strings.Contains(lower, p) {
				return rule.result
			}
		}
	}
	return unknownClassification
}

// ClassifyError classifies err using DescribeError.
func ClassifyError(err error) Classification {
	if err == nil {
		return unknownClassification
	}
	return ClassifyMessage(DescribeError(err))
}

// DescribeError renders err as text for classification. InfluxDB HTTP errors
// get their status code prefixed. Transport errors drop the request URL,
// whose ?org= query parameter would otherwise look like an organization error.
func DescribeError(err error) string {
	var herr *ihttp.Error
	if errors.As(err, &herr) {
		if herr.Err != nil {
			return DescribeError(herr.Err)
		}
		desc := herr.Error()
		if herr.StatusCode != 0 {
			desc = strconv.Itoa(herr.StatusCode) + " " + desc
		}
		return desc
	}

	var uerr *url.Error
	if errors.As(err, &uerr) {
		desc := uerr.Op + ": " + uerr.Err.Error()
		if uerr.Timeout() && !strings.Contains(strings.ToLower(desc), "timeout") {
			desc += " (timeout)"
		}
		return desc
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "deadline exceeded: " + err.Error()
	}
	return err.Error()
}

// upstreamError wraps err as an UpstreamError carrying the classified message.
func upstreamError(err error) *apperrors.UpstreamError {
	c := ClassifyError(err)
	return &apperrors.UpstreamError{
		Category: string(c.Category),
		Message:  c.Message,
		Err:      err,
	}
}
