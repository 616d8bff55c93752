package services

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-flux/pkg/models"
)

//go:embed query_templates.yaml
var queryTemplatesYAML []byte

var (
	templatesOnce sync.Once
	templates     []models.QueryTemplate
	templatesErr  error
)

// QueryTemplates returns the built-in example queries. Callers get their own copy.
func QueryTemplates() ([]models.QueryTemplate, error) {
	templatesOnce.Do(func() {
		templates, templatesErr = parseTemplates(queryTemplatesYAML)
	})
	if templatesErr != nil {
		return nil, templatesErr
	}
	return append([]models.QueryTemplate(nil), templates...), nil
}

func parseTemplates(data []byte) ([]models.QueryTemplate, error) {
	var out []models.QueryTemplate
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse query templates: %w", err)
	}
	for i, t := range out {
		if t.Name == "" || t.Query == "" {
			return nil, fmt.Errorf("query template %d is missing a name or query", i)
		}
	}
	return out, nil
}
