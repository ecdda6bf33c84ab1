// Package mail renders the HTML bodies of outbound notification mail.
// Templates are deliberately small; the consumer in internal/queue decides
// where rendered mail goes (an SMTP relay in production, logs/outbox.log in
// development).
package mail

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/iliyamo/event-registration/internal/queue"
)

var templates = map[string]*template.Template{
	queue.EmailVerification: template.Must(template.New(queue.EmailVerification).Parse(
		`<p>Hi {{.Name}},</p>
<p>Welcome aboard. Confirm your email address to activate your {{.Role}} account:</p>
<p><a href="{{.BaseURL}}/v1/{{.RolePath}}/verify-email/{{.Token}}">Verify email</a></p>`)),

	queue.EmailPasswordReset: template.Must(template.New(queue.EmailPasswordReset).Parse(
		`<p>Hi {{.Name}},</p>
<p>We received a request to reset your password. The link below is valid for one hour:</p>
<p><a href="{{.BaseURL}}/reset-password/{{.Token}}">Reset password</a></p>
<p>If you did not request this, you can ignore this mail.</p>`)),

	queue.EmailEventDecision: template.Must(template.New(queue.EmailEventDecision).Parse(
		`<p>Hi {{.Name}},</p>
<p>Your event <strong>{{.EventTitle}}</strong> has been <strong>{{.Decision}}</strong>.</p>
{{if .Note}}<p>Reviewer note: {{.Note}}</p>{{end}}`)),
}

var subjects = map[string]string{
	queue.EmailVerification:  "Confirm your email address",
	queue.EmailPasswordReset: "Password reset requested",
	queue.EmailEventDecision: "Your event has been reviewed",
}

// templateData is the flattened view handed to every template.
type templateData struct {
	Name       string
	Role       string
	RolePath   string
	Token      string
	EventTitle string
	Decision   string
	Note       string
	BaseURL    string
}

// Render produces (subject, html) for an email event. Unknown kinds are an
// error so a malformed message is rejected instead of delivered empty.
func Render(ev queue.EmailEvent, baseURL string) (string, string, error) {
	tpl, ok := templates[ev.Kind]
	if !ok {
		return "", "", fmt.Errorf("unknown email kind %q", ev.Kind)
	}
	rolePath := ev.Role
	if rolePath == "administrator" {
		rolePath = "admin"
	}
	var buf bytes.Buffer
	err := tpl.Execute(&buf, templateData{
		Name:       ev.Name,
		Role:       ev.Role,
		RolePath:   rolePath,
		Token:      ev.Token,
		EventTitle: ev.EventTitle,
		Decision:   ev.Decision,
		Note:       ev.Note,
		BaseURL:    baseURL,
	})
	if err != nil {
		return "", "", err
	}
	return subjects[ev.Kind], buf.String(), nil
}
