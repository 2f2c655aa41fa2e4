package notify

import (
	"bytes"
	"fmt"
	"html/template"
	texttemplate "text/template"

	"github.com/admbtski/miglee-sub005/internal/domain"
)

// emailTemplate holds the subject and body templates for one notification
// kind. Bodies are rendered twice: as html/template for the HTML part and as
// text/template for the plain-text part.
type emailTemplate struct {
	subject string
	body    string
}

var emailTemplates = map[domain.NotificationKind]emailTemplate{
	domain.NotifyWaitlistPromoted: {
		subject: "A spot opened up: you're in",
		body:    "Good news: a spot opened up and you have been moved off the waitlist. You are now a confirmed participant.",
	},
	domain.NotifyInvited: {
		subject: "You've been invited to an event",
		body:    "You have been invited to join an event. Open the event page to accept the invitation.",
	},
	domain.NotifyApproved: {
		subject: "Your join request was approved",
		body:    "Your request to join the event was approved. See you there!",
	},
	domain.NotifyWaitlisted: {
		subject: "You're on the waitlist",
		body:    "The event is currently full, so your approved request was placed on the waitlist. We'll let you know as soon as a spot opens up.",
	},
	domain.NotifyRejected: {
		subject: "Your join request was declined",
		body:    "Your request to join the event was declined by a moderator.",
	},
	domain.NotifyJoinRequest: {
		subject: "New join request",
		body:    "A user requested to join your event. Review the request on the event's member page.",
	},
}

// RenderEmail renders the subject, HTML and text bodies for a notification.
// Kinds without a template return ok=false; the dispatcher skips email for
// those and relies on the pub/sub channel alone.
func RenderEmail(n *domain.Notification) (subject, htmlBody, textBody string, ok bool, err error) {
	tmpl, found := emailTemplates[n.Kind]
	if !found {
		return "", "", "", false, nil
	}

	ht, err := template.New(string(n.Kind)).Parse(tmpl.body)
	if err != nil {
		return "", "", "", false, fmt.Errorf("parse html template: %w", err)
	}
	var htmlBuf bytes.Buffer
	if err := ht.Execute(&htmlBuf, n.Data); err != nil {
		return "", "", "", false, fmt.Errorf("render html: %w", err)
	}

	tt, err := texttemplate.New(string(n.Kind)).Parse(tmpl.body)
	if err != nil {
		return "", "", "", false, fmt.Errorf("parse text template: %w", err)
	}
	var textBuf bytes.Buffer
	if err := tt.Execute(&textBuf, n.Data); err != nil {
		return "", "", "", false, fmt.Errorf("render text: %w", err)
	}

	return tmpl.subject, htmlBuf.String(), textBuf.String(), true, nil
}
