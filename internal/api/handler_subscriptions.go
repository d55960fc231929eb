package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"employee-chat-backend/internal/model"
	"employee-chat-backend/internal/mw"
)

type putSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
	P256DH   string `json:"p256dh" binding:"required"`
	Auth     string `json:"auth" binding:"required"`
}

// PutSubscription registers or refreshes a push subscription for the
// authenticated employee. Re-subscribing with a known endpoint replaces the
// keys in place.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	sub := model.PushSubscription{
		EmployeeID: mw.EmployeeID(c),
		Endpoint:   req.Endpoint,
		P256DH:     req.P256DH,
		Auth:       req.Auth,
	}

	if err := h.store.UpsertSubscription(c.Request.Context(), &sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusCreated)
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription removes one of the employee's subscriptions.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.store.DeleteSubscription(c.Request.Context(), mw.EmployeeID(c), req.Endpoint); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}

type subscriptionResponse struct {
	Endpoint  string `json:"endpoint"`
	CreatedAt int64  `json:"createdAt"`
}

// GetSubscriptions lists the endpoints the employee has registered. Keys are
// never returned.
func (h *Handler) GetSubscriptions(c *gin.Context) {
	subs, err := h.store.SubscriptionsForEmployee(c.Request.Context(), mw.EmployeeID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]subscriptionResponse, len(subs))
	for i, sub := range subs {
		resp[i] = subscriptionResponse{
			Endpoint:  sub.Endpoint,
			CreatedAt: sub.CreatedAt.UnixMilli(),
		}
	}

	c.JSON(http.StatusOK, gin.H{"subscriptions": resp})
}
