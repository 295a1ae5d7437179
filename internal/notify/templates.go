package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

// Message is a rendered email.
type Message struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

var (
	invitationHTML = template.Must(template.New("invitation").Parse(invitationHTMLTemplate))
	welcomeHTML    = template.Must(template.New("welcome").Parse(welcomeHTMLTemplate))
)

func BuildInvitation(msg InvitationEmail) (Message, error) {
	var html bytes.Buffer
	if err := invitationHTML.Execute(&html, msg); err != nil {
		return Message{}, fmt.Errorf("render invitation: %w", err)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "%s has invited you to join %s as a %s.\n\n", msg.InviterName, msg.OrganizationName, msg.Role)
	text.WriteString("Accept the invitation:\n")
	text.WriteString(msg.AcceptURL + "\n\n")
	text.WriteString(footer + "\n")

	return Message{
		To:       msg.To,
		Subject:  fmt.Sprintf("You've been invited to join %s", msg.OrganizationName),
		TextBody: text.String(),
		HTMLBody: html.String(),
	}, nil
}

func BuildWelcome(msg WelcomeEmail) (Message, error) {
	var html bytes.Buffer
	if err := welcomeHTML.Execute(&html, msg); err != nil {
		return Message{}, fmt.Errorf("render welcome: %w", err)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "You've successfully joined %s.\n\n", msg.OrganizationName)
	text.WriteString("You can now view your organization's branches, manage inventory and invite team members.\n\n")
	text.WriteString("Go to your dashboard:\n")
	text.WriteString(msg.DashboardURL + "\n\n")
	text.WriteString(footer + "\n")

	return Message{
		To:       msg.To,
		Subject:  fmt.Sprintf("Welcome to %s!", msg.OrganizationName),
		TextBody: text.String(),
		HTMLBody: html.String(),
	}, nil
}

const footer = "TooLate - Reducing food waste, one meal at a time."

const invitationHTMLTemplate = `<div style="font-family: sans-serif; max-width: 600px; margin: 0 auto;">
  <h1>You're invited!</h1>
  <p>Hi,</p>
  <p><strong>{{.InviterName}}</strong> has invited you to join <strong>{{.OrganizationName}}</strong> as a <strong>{{.Role}}</strong>.</p>

  <div style="margin: 30px 0;">
    <a href="{{.AcceptURL}}" style="background: #000; color: #fff; padding: 12px 24px; text-decoration: none; border-radius: 6px; display: inline-block;">
      Accept Invitation
    </a>
  </div>

  <p style="color: #666; font-size: 14px;">
    Or copy this link: {{.AcceptURL}}
  </p>

  <hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">

  <p style="color: #999; font-size: 12px;">
    TooLate - Reducing food waste, one meal at a time.
  </p>
</div>`

const welcomeHTMLTemplate = `<div style="font-family: sans-serif; max-width: 600px; margin: 0 auto;">
  <h1>Welcome to TooLate!</h1>
  <p>Hi,</p>
  <p>You've successfully joined <strong>{{.OrganizationName}}</strong>.</p>

  <p>You can now:</p>
  <ul>
    <li>View your organization's branches</li>
    <li>Manage inventory</li>
    <li>Invite team members</li>
  </ul>

  <div style="margin: 30px 0;">
    <a href="{{.DashboardURL}}" style="background: #000; color: #fff; padding: 12px 24px; text-decoration: none; border-radius: 6px; display: inline-block;">
      Go to Dashboard
    </a>
  </div>

  <hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">

  <p style="color: #999; font-size: 12px;">
    TooLate - Reducing food waste, one meal at a time.
  </p>
</div>`
