// internal/service/template_service.go
package service

import (
	"regexp"
	"strings"

	"github.com/unclebandit/outreach-engine/internal/model"
)

var placeholderRe = regexp.MustCompile(`\{([^{}]+)\}`)

// RenderTemplate replaces every {key} token found in data. Tokens without a
// value in data stay as they are; substituted values are never re-scanned.
func RenderTemplate(template string, data map[string]string) string {
	if template == "" || len(data) == 0 {
		return template
	}
	return placeholderRe.ReplaceAllStringFunc(template, func(token string) string {
		key := token[1 : len(token)-1]
		if value, ok := data[key]; ok {
			return value
		}
		return token
	})
}

// TemplateContext builds the placeholder values for one contact.
func TemplateContext(sender *model.Sender, row model.ContactRow) map[string]string {
	name := strings.TrimSpace(row.Name)
	if name == "" {
		name = "Hiring Manager"
	}
	myName := sender.DisplayName()

	return map[string]string{
		"Name":       name,
		"Company":    row.Company,
		"MyName":     myName,
		"ResumeLink": sender.ResumeLink,
		// spellings older templates use
		"My Name":     myName,
		"company":     row.Company,
		"Resume Link": sender.ResumeLink,
	}
}
