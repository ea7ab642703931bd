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

package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/payq"
	"github.com/blnkfinance/payq/internal/notification"
	"github.com/blnkfinance/payq/internal/processor"
)

// readSignedWebhook returns the raw body and signature header of a processor webhook. It writes a
// 401 and returns false when either is missing.
func readSignedWebhook(c *gin.Context) ([]byte, string, bool) {
	signature := c.GetHeader(processor.SignatureHeader)
	payload, err := c.GetRawData()
	if signature == "" || err != nil || len(payload) == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing signature or body"})
		return nil, "", false
	}
	return payload, signature, true
}

// ProcessorWebhook verifies and records a processor event without acting on it.
func (a Api) ProcessorWebhook(c *gin.Context) {
	payload, signature, ok := readSignedWebhook(c)
	if !ok {
		return
	}

	event, err := a.payq.AuditProcessorEvent(payload, signature)
	if err != nil {
		if errors.Is(err, payq.ErrInvalidSignature) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logrus.WithError(err).Warn("unreadable processor event")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "id": event.ID})
}

// OutboundTransferEvents reconciles Transactions from processor payment events. Any event with a
// valid signature is acknowledged; failures to apply it are logged and reported to operators.
//
// Responses:
// - 200 OK: When the signature is valid.
// - 400 Bad Request: When the signature does not verify.
// - 401 Unauthorized: When the signature header or body is missing.
func (a Api) OutboundTransferEvents(c *gin.Context) {
	payload, signature, ok := readSignedWebhook(c)
	if !ok {
		return
	}

	err := a.payq.HandleProcessorEvent(c.Request.Context(), payload, signature)
	if err != nil {
		if errors.Is(err, payq.ErrInvalidSignature) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logrus.WithError(err).Error("processor event not applied")
		notification.NotifyError(err)
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
