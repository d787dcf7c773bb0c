package invite

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/osteele/liquid"

	"github.com/ignite/referral-tracker/internal/domain"
)

// Default invitation templates. Bindings: first_name, last_name, full_name,
// email, referred_date, signup_url.
const (
	DefaultSubject = `{{ first_name | titlecase }}, you're invited to join us`
	DefaultBody    = `<p>Hi {{ first_name | titlecase | default: "there" }},</p>
<p>You were referred on {{ referred_date }}. We'd love to have you on board.</p>
{% if signup_url != "" %}<p><a href="{{ signup_url }}">Accept your invitation</a></p>{% endif %}`
)

// Message is a rendered invitation.
type Message struct {
	Subject string
	HTML    string
}

// Renderer personalises invitation templates with Liquid.
type Renderer struct {
	subject   *liquid.Template
	body      *liquid.Template
	signupURL string
}

// NewRenderer parses the subject and body templates once. Empty templates
// fall back to the defaults.
func NewRenderer(subject, body, signupURL string) (*Renderer, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	if body == "" {
		body = DefaultBody
	}

	engine := liquid.NewEngine()
	engine.RegisterFilter("titlecase", func(s string) string {
		words := strings.Fields(strings.ToLower(s))
		for i, w := range words {
			first, size := utf8.DecodeRuneInString(w)
			words[i] = string(unicode.ToUpper(first)) + w[size:]
		}
		return strings.Join(words, " ")
	})

	subjTpl, err := engine.ParseString(subject)
	if err != nil {
		return nil, fmt.Errorf("parse subject template: %w", err)
	}
	bodyTpl, err := engine.ParseString(body)
	if err != nil {
		return nil, fmt.Errorf("parse body template: %w", err)
	}
	return &Renderer{subject: subjTpl, body: bodyTpl, signupURL: signupURL}, nil
}

// Render builds the invitation for r.
func (rd *Renderer) Render(r *domain.Referral) (*Message, error) {
	bindings := liquid.Bindings{
		"first_name":    r.FirstName,
		"last_name":     r.LastName,
		"full_name":     r.FullName(),
		"email":         r.Email,
		"referred_date": r.ReferredDate.Format("January 2, 2006"),
		"signup_url":    rd.signupURL,
	}

	subject, err := rd.subject.RenderString(bindings)
	if err != nil {
		return nil, fmt.Errorf("render subject: %w", err)
	}
	body, err := rd.body.RenderString(bindings)
	if err != nil {
		return nil, fmt.Errorf("render body: %w", err)
	}
	return &Message{Subject: strings.TrimSpace(subject), HTML: body}, nil
}
