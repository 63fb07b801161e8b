package notifications

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/azure/linkedin-content-bot/internal/config"
	"github.com/azure/linkedin-content-bot/internal/models"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// ApprovalFooter closes every draft message
const ApprovalFooter = "Reply with `post`, `yes`, `go`, or `ship` to publish.\nOr /generate for a new version, /discard to drop it, /why for the reasoning."

const separator = "━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// Draft is a generated post waiting for approval
type Draft struct {
	ChatID   int64
	RepoName string
	Post     *models.PostRecord
	Trigger  string // "scheduled" or "manual"
}

// Service handles sending notifications via various channels
type Service struct {
	config    *config.Config
	messenger Messenger
	sendMail  func(*gomail.Message) error
}

// Ensure Service implements NotificationInterface
var _ NotificationInterface = (*Service)(nil)

// NewService creates a new notification service
func NewService(cfg *config.Config, messenger Messenger) *Service {
	s := &Service{config: cfg, messenger: messenger}
	s.sendMail = func(m *gomail.Message) error {
		d := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
		return d.DialAndSend(m)
	}
	return s
}

// SendDraft sends a draft to the chat and, when configured, a copy by email
func (s *Service) SendDraft(ctx context.Context, draft *Draft) error {
	var errors []string

	if err := s.messenger.SendMessage(ctx, draft.ChatID, FormatDraft(draft)); err != nil {
		logrus.WithField("chat_id", draft.ChatID).Errorf("Failed to send draft to chat: %v", err)
		errors = append(errors, fmt.Sprintf("Chat: %v", err))
	}

	if s.config.DraftEmail != "" {
		if err := s.sendEmail(draft); err != nil {
			logrus.WithField("chat_id", draft.ChatID).Errorf("Failed to send draft email: %v", err)
			errors = append(errors, fmt.Sprintf("Email: %v", err))
		} else {
			logrus.WithField("chat_id", draft.ChatID).Info("Sent draft copy via email")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errors, "; "))
	}
	return nil
}

// SendNotice sends a short status message to the chat
func (s *Service) SendNotice(ctx context.Context, chatID int64, text string) error {
	if err := s.messenger.SendMessage(ctx, chatID, text); err != nil {
		return fmt.Errorf("failed to send notice: %w", err)
	}
	return nil
}

// FormatDraft renders the chat message for a draft
func FormatDraft(d *Draft) string {
	var b strings.Builder
	title := "Your LinkedIn post draft"
	if d.Trigger == "scheduled" {
		title = "Your daily LinkedIn post draft"
	}
	b.WriteString(title)
	if d.RepoName != "" {
		fmt.Fprintf(&b, " (%s)", d.RepoName)
	}
	b.WriteString(":\n")
	b.WriteString(separator + "\n\n")
	b.WriteString(d.Post.Content)
	b.WriteString("\n\n" + separator + "\n")
	if d.Post.TrendMatched != nil {
		fmt.Fprintf(&b, "Trend: %s | ", *d.Post.TrendMatched)
	}
	fmt.Fprintf(&b, "Style: %s | Mode: %s\n\n", d.Post.Style.Tag(), d.Post.Mode)
	b.WriteString(ApprovalFooter)
	return b.String()
}

func (s *Service) sendEmail(draft *Draft) error {
	subject := fmt.Sprintf("LinkedIn draft - %s", draft.RepoName)

	htmlBody, err := buildEmailHTML(draft)
	if err != nil {
		return fmt.Errorf("failed to build email HTML: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.DraftEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", buildEmailText(draft))
	m.AddAlternative("text/html", htmlBody)

	if err := s.sendMail(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

var emailTemplate = template.Must(template.New("email").Parse(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>LinkedIn post draft</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #0a66c2; color: white; padding: 20px; border-radius: 5px; }
        .post { border-left: 4px solid #0a66c2; padding: 10px; margin: 20px 0; background-color: #fafafa; white-space: pre-wrap; }
        .meta { color: #666; font-size: 0.9em; }
    </style>
</head>
<body>
    <div class="header">
        <h1>LinkedIn post draft</h1>
        <p>{{.RepoName}} - generated {{.Post.CreatedAt.Format "January 2, 2006 at 3:04 PM UTC"}}</p>
    </div>
    <div class="post">{{.Post.Content}}</div>
    <p class="meta">Style: {{.Post.Style.Tag}} | Mode: {{.Post.Mode}}{{if .Post.TrendMatched}} | Trend: {{.Post.TrendMatched}}{{end}}</p>
    <p class="meta">{{.Post.Reasoning}}</p>
    <p>Approve it from the chat to publish.</p>
</body>
</html>
`))

func buildEmailHTML(draft *Draft) (string, error) {
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, draft); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func buildEmailText(draft *Draft) string {
	var text strings.Builder
	text.WriteString(fmt.Sprintf("LinkedIn post draft - %s\n", draft.RepoName))
	text.WriteString(fmt.Sprintf("Generated: %s\n\n", draft.Post.CreatedAt.Format("2006-01-02 15:04:05 UTC")))
	text.WriteString(draft.Post.Content)
	text.WriteString("\n\n---\n")
	text.WriteString(draft.Post.Reasoning)
	text.WriteString("\n\nApprove it from the chat to publish.\n")
	return text.String()
}
