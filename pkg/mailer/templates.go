package mailer

import (
	"bytes"
	"fmt"
	"html/template"
)

// Template names understood by Renderer.
const (
	TemplateVerifyEmail        = "verify_email"
	TemplateWelcome            = "welcome"
	TemplatePasswordReset      = "password_reset"
	TemplateVideoUploaded      = "video_uploaded"
	TemplateAdminPasswordReset = "admin_password_reset"
)

// Data carries the values interpolated into templates. Unused fields are ignored.
type Data struct {
	Name         string
	Link         string
	VideoTitle   string
	UploaderName string
	TempPassword string
}

type entry struct {
	subject string
	body    *template.Template
}

const layout = `<!DOCTYPE html>
<html><body style="font-family: Arial, sans-serif; color: #333;">
<h2 style="color: #2c7be5;">DentVid</h2>
{{template "content" .}}
<p style="font-size: 12px; color: #888;">This is an automated message, please do not reply.</p>
</body></html>`

var definitions = map[string]struct {
	subject string
	content string
}{
	TemplateVerifyEmail: {
		subject: "Verify your email address",
		content: `<p>Hello {{.Name}},</p>
<p>Thanks for registering. Please confirm your email address to start watching videos.</p>
<p><a href="{{.Link}}">Verify email</a></p>`,
	},
	TemplateWelcome: {
		subject: "Welcome to DentVid!",
		content: `<p>Hello {{.Name}},</p>
<p>Your email address is verified and your account is ready. You can now sign in and browse the video library.</p>
<p><a href="{{.Link}}">Sign in</a></p>`,
	},
	TemplatePasswordReset: {
		subject: "Password reset request",
		content: `<p>Hello {{.Name}},</p>
<p>We received a request to reset your password. The link below is valid for one hour.</p>
<p><a href="{{.Link}}">Reset password</a></p>
<p>If you did not request this, you can ignore this email.</p>`,
	},
	TemplateVideoUploaded: {
		subject: "New Video Uploaded",
		content: `<p>Hello {{.Name}},</p>
<p>{{.UploaderName}} uploaded a new video: <strong>{{.VideoTitle}}</strong>.</p>
<p><a href="{{.Link}}">Open the video</a></p>`,
	},
	TemplateAdminPasswordReset: {
		subject: "Your password has been reset",
		content: `<p>Hello {{.Name}},</p>
<p>An administrator reset your password. Your temporary password is:</p>
<p><code>{{.TempPassword}}</code></p>
<p>Please sign in and change it immediately.</p>`,
	},
}

// Renderer turns template names and data into messages.
type Renderer struct {
	entries map[string]entry
}

// NewRenderer parses every built-in template.
func NewRenderer() (*Renderer, error) {
	entries := make(map[string]entry, len(definitions))
	for name, def := range definitions {
		tmpl, err := template.New(name).Parse(layout)
		if err != nil {
			return nil, fmt.Errorf("parse layout for %s: %w", name, err)
		}
		if _, err := tmpl.New("content").Parse(def.content); err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		entries[name] = entry{subject: def.subject, body: tmpl}
	}
	return &Renderer{entries: entries}, nil
}

// Render builds the message for the named template addressed to to.
func (r *Renderer) Render(name, to string, data Data) (Message, error) {
	e, ok := r.entries[name]
	if !ok {
		return Message{}, fmt.Errorf("unknown email template %q", name)
	}
	var buf bytes.Buffer
	if err := e.body.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", name, err)
	}
	return Message{To: to, Subject: e.subject, HTML: buf.String()}, nil
}
