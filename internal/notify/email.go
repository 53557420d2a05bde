package notify

import (
	"context"
	"fmt"
	"html"
	"os/exec"
	"strings"

	"github.com/snapguard-project/snapguard/internal/report"
	"github.com/snapguard-project/snapguard/pkg/config"
	"github.com/snapguard-project/snapguard/pkg/errclass"
	"github.com/snapguard-project/snapguard/pkg/model"
)

// EmailChannel delivers reports by piping a message to a sendmail-compatible
// binary. No SMTP state is kept in this process.
type EmailChannel struct {
	binary string
	from   string
	to     string
}

// NewEmailChannel builds the mail channel from configuration.
func NewEmailChannel(cfg config.EmailConfig) *EmailChannel {
	return &EmailChannel{binary: cfg.Binary, from: cfg.From, to: cfg.To}
}

func (e *EmailChannel) Name() string { return "email" }

// Send renders the report as a monospace HTML body and hands it to the
// sendmail binary. The binary reads recipients from the headers (-t).
func (e *EmailChannel) Send(ctx context.Context, r *model.Report) error {
	msg := e.compose(r)
	cmd := exec.CommandContext(ctx, e.binary, "-t", "-oi")
	cmd.Stdin = strings.NewReader(msg)
	if out, err := cmd.CombinedOutput(); err != nil {
		detail := strings.TrimSpace(string(out))
		if detail == "" {
			detail = err.Error()
		}
		return errclass.ErrNotifyDelivery.WithMessagef("sendmail: %s", detail)
	}
	return nil
}

func (e *EmailChannel) compose(r *model.Report) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s\r\n", e.from)
	fmt.Fprintf(&sb, "To: %s\r\n", e.to)
	fmt.Fprintf(&sb, "Subject: %s\r\n", report.Subject(r))
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	sb.WriteString("\r\n")
	sb.WriteString("<html><body><pre style=\"font-family: monospace\">\n")
	sb.WriteString(html.EscapeString(report.Summary(r)))
	sb.WriteString("</pre></body></html>\n")
	return sb.String()
}
