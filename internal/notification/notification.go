package notification

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/payq/config"
	"github.com/blnkfinance/payq/internal/request"
)

// WebhookSender forwards an operator event to the configured webhook endpoint.
type WebhookSender func(event string, payload interface{}) error

var (
	webhookSender WebhookSender
	senderMu      sync.RWMutex
)

// RegisterWebhookSender installs the function used to forward system errors as webhook events.
func RegisterWebhookSender(sender WebhookSender) {
	senderMu.Lock()
	defer senderMu.Unlock()
	webhookSender = sender
}

func registeredSender() WebhookSender {
	senderMu.RLock()
	defer senderMu.RUnlock()
	return webhookSender
}

type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

func slackMessage(err error, at time.Time) map[string]interface{} {
	return map[string]interface{}{
		"blocks": []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: "Error From Payq 🐞", Emoji: true}},
			{Type: "section", Fields: []slackText{{Type: "mrkdwn", Text: fmt.Sprintf("*Error:*\n%v", err)}}},
			{Type: "section", Fields: []slackText{{Type: "mrkdwn", Text: fmt.Sprintf("*Time:*\n%v", at.Format(time.RFC822))}}},
		},
	}
}

// SlackNotification posts err to the Slack incoming webhook at webhookURL.
func SlackNotification(webhookURL string, err error) error {
	payload, reqErr := request.ToJsonReq(slackMessage(err, time.Now()))
	if reqErr != nil {
		return reqErr
	}

	req, reqErr := http.NewRequest(http.MethodPost, webhookURL, payload)
	if reqErr != nil {
		return reqErr
	}

	_, reqErr = request.CallWithClient(&http.Client{Timeout: 10 * time.Second}, req, nil)
	return reqErr
}

// NotifyError reports a system error to operators without blocking the caller.
// The error is always logged; Slack and the webhook sender are used when configured.
func NotifyError(systemError error) {
	go func(systemError error) {
		logrus.Error(systemError)

		conf, err := config.Fetch()
		if err != nil {
			logrus.Error(err)
			return
		}

		if conf.Notification.Slack.WebhookUrl != "" {
			if err := SlackNotification(conf.Notification.Slack.WebhookUrl, systemError); err != nil {
				logrus.WithError(err).Warn("slack notification failed")
			}
		}

		if sender := registeredSender(); sender != nil {
			payload := map[string]interface{}{
				"error": systemError.Error(),
				"time":  time.Now().UTC(),
			}
			if err := sender("system.error", payload); err != nil {
				logrus.WithError(err).Warn("system error webhook failed")
			}
		}
	}(systemError)
}
