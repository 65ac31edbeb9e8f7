package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"

	"github.com/hrstream/employee-import/internal/domain"
)

type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogSender logs emails instead of sending them — used in ENV=local.
type LogSender struct {
	logger *slog.Logger
}

func (s *LogSender) Send(_ context.Context, to, subject, body string) error {
	s.logger.Info("import notification email (local dev)", "to", to, "subject", subject, "body", body)
	return nil
}

// ResendSender sends emails via the Resend API — used in staging/production.
type ResendSender struct {
	client *resend.Client
	from   string
}

func (s *ResendSender) Send(ctx context.Context, to, subject, body string) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    body,
	}
	_, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// NewSender returns a LogSender for ENV=local, ResendSender otherwise.
func NewSender(env, apiKey, from string, logger *slog.Logger) Sender {
	if env == "local" {
		return &LogSender{logger: logger}
	}
	return &ResendSender{
		client: resend.NewClient(apiKey),
		from:   from,
	}
}

// Notifier emails a summary when an import reaches a terminal state.
// Best-effort: failures are logged, never retried, and never affect
// the job outcome.
type Notifier struct {
	sender Sender
	to     string
	logger *slog.Logger
}

func NewNotifier(sender Sender, to string, logger *slog.Logger) *Notifier {
	return &Notifier{sender: sender, to: to, logger: logger.With("component", "notify")}
}

func (n *Notifier) JobFinished(ctx context.Context, job *domain.ImportJob) {
	if n.to == "" {
		return
	}

	subject := fmt.Sprintf("Import %s: %s", job.Status, job.Filename)
	body := fmt.Sprintf(
		"<p>Import <strong>%s</strong> finished with status <strong>%s</strong>.</p>"+
			"<p>Rows: %d total, %d processed, %d successful, %d failed.</p>",
		job.Filename, job.Status, job.TotalRows, job.ProcessedRows, job.SuccessfulRows, job.ErrorRows)
	if job.LastError != nil {
		body += fmt.Sprintf("<p>Last error: %s</p>", *job.LastError)
	}

	if err := n.sender.Send(ctx, n.to, subject, body); err != nil {
		n.logger.Warn("import notification failed", "job_id", job.ID, "error", err)
	}
}
