package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/snapguard-project/snapguard/internal/report"
	"github.com/snapguard-project/snapguard/pkg/config"
	"github.com/snapguard-project/snapguard/pkg/errclass"
	"github.com/snapguard-project/snapguard/pkg/model"
	"github.com/snapguard-project/snapguard/pkg/progress"
)

const discordAPIBase = "https://discord.com/api/webhooks"

// Embed accent colors, green when a sync or scrub actually ran and grey
// when the run had nothing to do.
const (
	colorDidRun    = 1737287
	colorDidNotRun = 8539930
)

// DiscordChannel posts run reports as webhook embeds.
type DiscordChannel struct {
	baseURL string
	id      string
	token   string
	client  *http.Client
}

// NewDiscordChannel builds the chat-webhook channel from configuration.
func NewDiscordChannel(cfg config.DiscordConfig) *DiscordChannel {
	return &DiscordChannel{
		baseURL: discordAPIBase,
		id:      cfg.WebhookID,
		token:   cfg.WebhookToken,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (d *DiscordChannel) Name() string { return "discord" }

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
}

type discordPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

// Send posts the report summary as a single embed.
func (d *DiscordChannel) Send(ctx context.Context, r *model.Report) error {
	color := colorDidNotRun
	if r.SyncRan || r.ScrubRan {
		color = colorDidRun
	}
	summary := report.Summary(r)
	// Embed descriptions cap out at 4096 characters.
	if len(summary) > 3900 {
		summary = summary[:3900] + "\n[truncated]"
	}
	payload := discordPayload{
		Embeds: []discordEmbed{{
			Title:       report.Subject(r),
			Description: "```\n" + summary + "\n```",
			Color:       color,
		}},
	}
	return d.post(ctx, payload)
}

// SendProgress posts a short plain message for a throttled progress update.
func (d *DiscordChannel) SendProgress(ctx context.Context, phase string, u progress.Update) error {
	msg := fmt.Sprintf("%s: %d%%, %d MB processed", phase, u.Percent, u.ProcessedMB)
	if u.ETA != "" {
		msg += fmt.Sprintf(" (ETA %s)", u.ETA)
	}
	return d.post(ctx, discordPayload{Content: msg})
}

func (d *DiscordChannel) post(ctx context.Context, payload discordPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errclass.ErrNotifyDelivery.WithMessagef("encode webhook payload: %v", err)
	}

	url := fmt.Sprintf("%s/%s/%s", d.baseURL, d.id, d.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errclass.ErrNotifyDelivery.WithMessagef("build webhook request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return errclass.ErrNotifyDelivery.WithMessagef("post webhook: %v", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errclass.ErrNotifyDelivery.WithMessagef("webhook returned %d", resp.StatusCode)
	}
	return nil
}
