// Package slack posts deployment-status notifications to a Slack channel
// (SPEC_FULL.md §4 "Deployment notifications (enrichment)"). It is adapted
// from the teacher's general-purpose Slack notifier down to the one event
// WhaleRay's pipeline produces: a deployment reaching a terminal status.
package slack

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"

	"github.com/DuckOriDuck/whaleray/internal/telemetry"
)

// DeploymentEvent is the subset of a deployment the notifier needs to
// render a message — deliberately not pkg/deployment.Deployment, to avoid
// pkg/deployment depending on pkg/slack for a notification that is purely
// an enrichment on top of the core pipeline.
type DeploymentEvent struct {
	DeploymentID string
	ServiceName  string
	Status       string
	ErrorMessage string
}

// Notifier posts deployment-status messages to a Slack channel. It is a
// noop when botToken is empty (SPEC_FULL.md §4: "disabled when
// SLACK_BOT_TOKEN is unset, exactly like the teacher's existing gating").
type Notifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. If botToken is empty, the notifier is a
// noop.
func NewNotifier(botToken, channel string, logger *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{client: client, channel: channel, logger: logger}
}

// IsEnabled reports whether the notifier has a usable Slack client.
func (n *Notifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

// NotifyDeploymentStatus posts a message when a deployment reaches RUNNING
// or any *_FAIL/*_TIMEOUT status.
func (n *Notifier) NotifyDeploymentStatus(ctx context.Context, event DeploymentEvent) {
	if !n.IsEnabled() {
		return
	}

	text := fmt.Sprintf("%s deployment `%s` for `%s` is now *%s*",
		emojiFor(event.Status), event.DeploymentID, event.ServiceName, event.Status)
	if event.ErrorMessage != "" {
		text += fmt.Sprintf("\n> %s", event.ErrorMessage)
	}

	_, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false))
	if err != nil {
		n.logger.Error("posting deployment notification to slack", "deployment_id", event.DeploymentID, "error", err)
		return
	}
	telemetry.SlackNotificationsTotal.WithLabelValues("deployment_status").Inc()
}

func emojiFor(status string) string {
	switch {
	case status == "RUNNING":
		return ":white_check_mark:"
	case len(status) > 5 && status[len(status)-5:] == "_FAIL":
		return ":x:"
	case len(status) > 8 && status[len(status)-8:] == "_TIMEOUT":
		return ":hourglass:"
	default:
		return ":information_source:"
	}
}
