/*
Copyright 2025 Pledger Authors.

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
	"github.com/gin-gonic/gin"

	"github.com/pledgerhq/pledger"
	"github.com/pledgerhq/pledger/api/middleware"
	"github.com/pledgerhq/pledger/config"
	"github.com/pledgerhq/pledger/internal/apierror"
)

type Api struct {
	pledger *pledger.Pledger
	router  *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/accounts", a.CreateAccount)
	router.GET("/accounts/:id", a.GetAccount)
	router.GET("/accounts/:id/balance", a.GetBalance)
	router.GET("/accounts/:id/host-balance", a.GetHostManagedBalance)
	router.POST("/accounts/:id/add-funds", a.AddFunds)

	router.POST("/organizations", a.CreateOrganization)

	router.POST("/orders", a.CreateOrder)
	router.GET("/orders/:id", a.GetOrder)
	router.POST("/orders/:id/complete", a.CompletePledge)
	router.PUT("/orders/:id/message", a.UpdateOrderMessage)

	router.GET("/subscriptions/:id", a.GetSubscription)
	router.PUT("/subscriptions/:id", a.UpdateSubscription)
	router.DELETE("/subscriptions/:id", a.CancelSubscription)

	router.POST("/expenses", a.CreateExpense)
	router.GET("/expenses/:id", a.GetExpense)
	router.PUT("/expenses/:id", a.UpdateExpense)
	router.DELETE("/expenses/:id", a.DeleteExpense)
	router.POST("/expenses/:id/approve", a.ApproveExpense)
	router.POST("/expenses/:id/reject", a.RejectExpense)
	router.POST("/expenses/:id/pay", a.PayExpense)

	router.POST("/payment-methods", a.CreatePaymentMethod)
	router.GET("/payment-methods/:id", a.GetPaymentMethod)
	router.PUT("/payment-methods/:id", a.UpdatePaymentMethod)
	router.DELETE("/payment-methods/:id", a.RemovePaymentMethod)

	router.POST("/credit-cards", a.CreateCreditCard)
	router.POST("/virtual-cards", a.CreateVirtualCards)
	router.POST("/virtual-cards/claim", a.ClaimVirtualCard)

	router.GET("/transactions/:id", a.GetTransaction)
	router.POST("/refund-transaction/:id", a.RefundTransaction)

	return a.router
}

func NewAPI(p *pledger.Pledger) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{pledger: p, router: r}
}

// principal returns the account id of the caller, set by the gateway in
// the X-Pledger-Account header. Empty when the request is anonymous.
func principal(c *gin.Context) string {
	return c.GetHeader(middleware.AccountHeader)
}

// serviceError writes a service error with its mapped HTTP status. The
// machine-readable code is included when the error carries one.
func serviceError(c *gin.Context, err error) {
	if apiErr, ok := err.(apierror.APIError); ok {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": apiErr.Message, "code": apiErr.Code})
		return
	}
	c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
}
