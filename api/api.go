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
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/blnkfinance/payq"
	"github.com/blnkfinance/payq/api/middleware"
	"github.com/blnkfinance/payq/config"
)

type Api struct {
	payq   *payq.Payq
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router

	user := router.Group("/", middleware.JWTAuthMiddleware())
	user.POST("/payments/enqueue", a.EnqueuePayment)
	user.GET("/payments/:id", a.GetPayment)
	user.POST("/transactions", a.CreateTransaction)
	user.GET("/transactions/:id", a.GetTransaction)

	internal := router.Group("/payments/dequeue", middleware.SecretKeyAuthMiddleware())
	internal.POST("", a.DequeuePayments)
	internal.DELETE("/cleanups", a.CleanupPayments)
	internal.POST("/maintenance", a.RequeueStalePayments)

	// webhooks authenticate with the processor signature
	router.POST("/webhooks/processor", a.ProcessorWebhook)
	router.POST("/webhooks/processor/outbound-transfer-events", a.OutboundTransferEvents)

	return a.router
}

func NewAPI(p *payq.Payq) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	// processor webhook deliveries are not rate limited
	r.Use(otelgin.Middleware(conf.ProjectName), middleware.RateLimitMiddleware(conf, "/webhooks/"))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})

	return &Api{payq: p, router: r}
}
