package utils

import (
	"regexp"

	"raiseflow/models"
)

var templateToken = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// TemplateVars maps token names to their substitution values.
type TemplateVars map[string]string

// InvestorVars builds the fixed variable set available to step templates.
func InvestorVars(investor *models.Investor) TemplateVars {
	return TemplateVars{
		"investor_name":       investor.Name,
		"investor_first_name": investor.FirstName(),
		"investor_firm":       investor.Firm,
		"investor_title":      investor.Title,
	}
}

// RenderTemplate replaces every {{name}} token with its value. Tokens with no
// value are removed from the output.
func RenderTemplate(text string, vars TemplateVars) string {
	if text == "" {
		return ""
	}
	return templateToken.ReplaceAllStringFunc(text, func(token string) string {
		name := templateToken.FindStringSubmatch(token)[1]
		return vars[name]
	})
}
