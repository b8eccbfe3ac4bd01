package mail

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"github.com/aura-platform/sponsorships/internal/models"
)

// Template data keys.
const (
	KeySponsorName = "sponsor_name"
	KeyOfferLink   = "offer_link"
	KeyOrgName     = "org_name"
)

// Message is a rendered email.
type Message struct {
	Subject string
	Text    string
	HTML    string
}

type emailTemplate struct {
	subject string
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

var templates = map[string]emailTemplate{
	models.EmailTypeSponsorshipOffer: {
		subject: "Accept your free Families organization",
		text: texttemplate.Must(texttemplate.New("offer.txt").Parse(
			`{{.sponsor_name}} is sponsoring a free Families organization for you.

Accept the offer here:
{{.offer_link}}
`)),
		html: htmltemplate.Must(htmltemplate.New("offer.html").Parse(
			`<p><strong>{{.sponsor_name}}</strong> is sponsoring a free Families organization for you.</p>
<p><a href="{{.offer_link}}">Accept the offer</a></p>
`)),
	},
	models.EmailTypeSponsorshipReverted: {
		subject: "Your Families sponsorship has ended",
		text: texttemplate.Must(texttemplate.New("reverted.txt").Parse(
			`The sponsorship of {{.org_name}} has ended. The organization keeps its data but is no longer on a sponsored plan.
`)),
		html: htmltemplate.Must(htmltemplate.New("reverted.html").Parse(
			`<p>The sponsorship of <strong>{{.org_name}}</strong> has ended.</p>
<p>The organization keeps its data but is no longer on a sponsored plan.</p>
`)),
	},
}

// Subject returns the subject line of emailType.
func Subject(emailType string) (string, error) {
	tpl, ok := templates[emailType]
	if !ok {
		return "", fmt.Errorf("unknown email type %q", emailType)
	}
	return tpl.subject, nil
}

// Render fills the template of emailType with data.
func Render(emailType string, data map[string]string) (Message, error) {
	tpl, ok := templates[emailType]
	if !ok {
		return Message{}, fmt.Errorf("unknown email type %q", emailType)
	}
	var text, html bytes.Buffer
	if err := tpl.text.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("render %s text: %w", emailType, err)
	}
	if err := tpl.html.Execute(&html, data); err != nil {
		return Message{}, fmt.Errorf("render %s html: %w", emailType, err)
	}
	return Message{Subject: tpl.subject, Text: text.String(), HTML: html.String()}, nil
}
