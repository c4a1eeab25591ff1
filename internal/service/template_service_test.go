package service_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/service"
)

func TestRenderTemplate(t *testing.T) {
	out := service.RenderTemplate("Hi {Name} from {Company}", map[string]string{"Name": "Ada", "Company": "Acme"})
	assert.Equal(t, "Hi Ada from Acme", out)
}

func TestRenderTemplateLeavesUnknownTokens(t *testing.T) {
	out := service.RenderTemplate("Hi {Name}, see {Portfolio}", map[string]string{"Name": "Ada"})
	assert.Equal(t, "Hi Ada, see {Portfolio}", out)
}

func TestRenderTemplateRepeatedAndEmpty(t *testing.T) {
	out := service.RenderTemplate("{Name}{Name} {Company}.", map[string]string{"Name": "A", "Company": ""})
	assert.Equal(t, "AA .", out)

	assert.Equal(t, "", service.RenderTemplate("", map[string]string{"Name": "A"}))
	assert.Equal(t, "Hi {Name}", service.RenderTemplate("Hi {Name}", nil))
}

func TestRenderTemplateDoesNotExpandValues(t *testing.T) {
	out := service.RenderTemplate("{Name} at {Company}", map[string]string{"Name": "{Company}", "Company": "Acme"})
	assert.Equal(t, "{Company} at Acme", out)
}

func TestTemplateContext(t *testing.T) {
	sender := &model.Sender{Email: "me@x.com", ResumeLink: "https://cv"}
	ctx := service.TemplateContext(sender, model.ContactRow{Company: "Acme"})

	assert.Equal(t, "Hiring Manager", ctx["Name"])
	assert.Equal(t, "me@x.com", ctx["MyName"])
	assert.Equal(t, "me@x.com", ctx["My Name"])
	assert.Equal(t, "Acme", ctx["company"])
	assert.Equal(t, "https://cv", ctx["Resume Link"])

	body := service.RenderTemplate("Dear {Name},\n{My Name}", ctx)
	assert.Equal(t, "Dear Hiring Manager,\nme@x.com", body)
}
