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
	"net/http"

	"github.com/gin-gonic/gin"

	model2 "github.com/pledgerhq/pledger/api/model"
)

// CreatePaymentMethod registers a payment instrument for an account.
func (a Api) CreatePaymentMethod(c *gin.Context) {
	var newMethod model2.CreatePaymentMethod
	if err := c.ShouldBindJSON(&newMethod); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := newMethod.ValidateCreatePaymentMethod(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.pledger.CreatePaymentMethod(c.Request.Context(), principal(c), newMethod.ToPaymentMethod())
	if err != nil {
		serviceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// CreateCreditCard registers a tokenized card from the payment processor.
func (a Api) CreateCreditCard(c *gin.Context) {
	var newCard model2.CreateCreditCard
	if err := c.ShouldBindJSON(&newCard); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := newCard.ValidateCreateCreditCard(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.pledger.CreateCreditCard(c.Request.Context(), principal(c), newCard.ToPaymentMethod())
	if err != nil {
		serviceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// CreateVirtualCards mints a batch of virtual cards funded by an account.
// The whole batch is persisted atomically; invitations go out after the
// commit.
func (a Api) CreateVirtualCards(c *gin.Context) {
	var newBatch model2.CreateVirtualCards
	if err := c.ShouldBindJSON(&newBatch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := newBatch.ValidateCreateVirtualCards(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.pledger.CreateVirtualCards(c.Request.Context(), principal(c), newBatch.ToBatch())
	if err != nil {
		serviceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// ClaimVirtualCard binds an unclaimed virtual card to the calling account.
func (a Api) ClaimVirtualCard(c *gin.Context) {
	var claim model2.ClaimVirtualCard
	if err := c.ShouldBindJSON(&claim); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := claim.ValidateClaimVirtualCard(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.pledger.ClaimPaymentMethod(c.Request.Context(), principal(c), claim.ClaimCode)
	if err != nil {
		serviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetPaymentMethod retrieves a payment method by its ID.
func (a Api) GetPaymentMethod(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.pledger.GetPaymentMethod(c.Request.Context(), id)
	if err != nil {
		serviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// UpdatePaymentMethod renames an instrument or adjusts its member limit.
func (a Api) UpdatePaymentMethod(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	var body model2.UpdatePaymentMethod
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := body.ValidateUpdatePaymentMethod(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.pledger.UpdatePaymentMethod(c.Request.Context(), principal(c), id, body.Name, body.MinorLimit())
	if err != nil {
		serviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// RemovePaymentMethod deletes a payment method that no open order uses.
func (a Api) RemovePaymentMethod(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	if err := a.pledger.RemovePaymentMethod(c.Request.Context(), principal(c), id); err != nil {
		serviceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "payment method deleted"})
}
