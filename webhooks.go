/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package payq

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/payq/config"
	"github.com/blnkfinance/payq/internal/notification"
	"github.com/blnkfinance/payq/internal/request"
)

// NewWebhook is an operator notification delivered to the configured webhook URL.
type NewWebhook struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"data"`
}

const webhookTimeout = 10 * time.Second

// SendWebhook queues an operator notification. It is a no-op when no webhook URL is configured.
func (q *Queue) SendWebhook(ctx context.Context, newWebhook NewWebhook) error {
	if q.conf.Notification.Webhook.Url == "" {
		return nil
	}

	payload, err := json.Marshal(newWebhook)
	if err != nil {
		return err
	}

	task := asynq.NewTask(q.conf.Queue.WebhookQueue, payload, asynq.Queue(q.conf.Queue.WebhookQueue))
	_, err = q.Client.EnqueueContext(ctx, task)
	return err
}

// registerWebhookSender routes internal error notifications through the webhook queue.
func (q *Queue) registerWebhookSender() {
	notification.RegisterWebhookSender(func(event string, payload interface{}) error {
		return q.SendWebhook(context.Background(), NewWebhook{Event: event, Payload: payload})
	})
}

// processHTTP posts a webhook to the configured URL with the configured headers.
func processHTTP(ctx context.Context, conf *config.Configuration, data NewWebhook) error {
	body, err := request.ToJsonReq(data)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, conf.Notification.Webhook.Url, body)
	if err != nil {
		return err
	}
	for key, value := range conf.Notification.Webhook.Headers {
		req.Header.Set(key, value)
	}

	_, err = request.CallWithClient(&http.Client{Timeout: webhookTimeout}, req, nil)
	return err
}

// ProcessWebhook delivers a queued webhook. A failed delivery is returned so asynq retries it.
func ProcessWebhook(ctx context.Context, task *asynq.Task) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if conf.Notification.Webhook.Url == "" {
		return nil
	}

	var payload NewWebhook
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logrus.WithError(err).Error("invalid webhook task payload")
		return err
	}

	if err := processHTTP(ctx, conf, payload); err != nil {
		logrus.WithError(err).WithField("event", payload.Event).Error("webhook delivery failed")
		return err
	}

	logrus.WithField("event", payload.Event).Info("webhook delivered")
	return nil
}
