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
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/payq/api/middleware"
	model2 "github.com/blnkfinance/payq/api/model"
	"github.com/blnkfinance/payq/internal/apierror"
)

// EnqueuePayment queues an outbound payment for the next batch cycle.
//
// Responses:
// - 201 Created: With the queue id of the new item.
// - 400 Bad Request: If the body is invalid.
// - 404 Not Found: If transaction_id does not name a Transaction.
func (a Api) EnqueuePayment(c *gin.Context) {
	var req model2.EnqueuePayment
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	if err := req.ValidateEnqueuePayment(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	item, err := a.payq.EnqueuePayment(c.Request.Context(), req.ToPaymentDetails(), req.TransactionID, middleware.UserID(c))
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"queue_id": item.QueueID})
}

func (a Api) GetPayment(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed || id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	item, err := a.payq.GetQueueItem(c.Request.Context(), id)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, item)
}

// DequeuePayments runs one batch cycle and reports its outcome.
//
// Responses:
// - 200 OK: With the number of payments sent and failed.
// - 500 Internal Server Error: If the queue could not be claimed.
func (a Api) DequeuePayments(c *gin.Context) {
	result, err := a.payq.ProcessBatch(c.Request.Context())
	if err != nil {
		logrus.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"successes": result.Successes,
		"failures":  result.Failures,
		"message":   result.Summary(),
	})
}

// CleanupPayments deletes settled payments whose retention window has passed.
func (a Api) CleanupPayments(c *gin.Context) {
	result, err := a.payq.PurgeSettled(c.Request.Context())
	if err != nil {
		logrus.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// RequeueStalePayments returns stuck processing payments to the queue.
func (a Api) RequeueStalePayments(c *gin.Context) {
	requeued, err := a.payq.RequeueStale(c.Request.Context())
	if err != nil {
		logrus.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"requeued": requeued})
}
