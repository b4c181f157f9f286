// README: Payment handlers for the per-ride settlement status.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"waykel/internal/http/middleware"
	"waykel/internal/modules/payment"
	"waykel/internal/types"
)

type PaymentService interface {
	Get(ctx context.Context, q payment.GetQuery) (*payment.Payment, error)
	Events(ctx context.Context, q payment.GetQuery) ([]payment.Event, error)
	Transition(ctx context.Context, cmd payment.TransitionCommand) (*payment.Payment, error)
}

type PaymentHandler struct {
	payments PaymentService
}

func NewPaymentHandler(svc PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: svc}
}

type paymentResponse struct {
	RideID    types.ID         `json:"ride_id"`
	Status    payment.Status   `json:"status"`
	Label     string           `json:"label"`
	Version   int              `json:"version"`
	Next      []payment.Status `json:"next"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func toPaymentResponse(p *payment.Payment) paymentResponse {
	return paymentResponse{
		RideID:    p.RideID,
		Status:    p.Status,
		Label:     payment.Label(p.Status),
		Version:   p.Version,
		Next:      payment.NextStatuses(string(p.Status)),
		UpdatedAt: p.UpdatedAt,
	}
}

func (h *PaymentHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	p, err := h.payments.Get(c.Request.Context(), payment.GetQuery{RideID: id, Actor: middleware.Caller(c)})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toPaymentResponse(p))
}

func (h *PaymentHandler) Events(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	events, err := h.payments.Events(c.Request.Context(), payment.GetQuery{RideID: id, Actor: middleware.Caller(c)})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	out := make([]gin.H, 0, len(events))
	for _, e := range events {
		out = append(out, gin.H{
			"from":     e.FromStatus,
			"to":       e.ToStatus,
			"actor_id": e.ActorID,
			"note":     e.Note,
			"at":       e.CreatedAt,
		})
	}
	writeJSON(c, http.StatusOK, gin.H{"events": out})
}

type paymentTransitionReq struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

func (h *PaymentHandler) Transition(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req paymentTransitionReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		writeError(c, http.StatusBadRequest, "status is required")
		return
	}
	p, err := h.payments.Transition(c.Request.Context(), payment.TransitionCommand{
		RideID: id,
		To:     req.Status,
		Note:   req.Note,
		Actor:  middleware.Caller(c),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toPaymentResponse(p))
}
