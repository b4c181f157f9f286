// README: Ride handlers for create/get, status transitions, bids, driver assignment and dry-run authorization.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"waykel/internal/http/middleware"
	"waykel/internal/modules/permission"
	"waykel/internal/modules/ride"
	"waykel/internal/types"
)

type RideService interface {
	Create(ctx context.Context, cmd ride.CreateCommand) (*ride.Ride, error)
	Get(ctx context.Context, q ride.GetQuery) (*ride.Ride, error)
	Authorize(ctx context.Context, q ride.AuthorizeQuery) error
	Transition(ctx context.Context, cmd ride.TransitionCommand) (*ride.Ride, error)
	PlaceBid(ctx context.Context, cmd ride.PlaceBidCommand) (*ride.Bid, error)
	ListBids(ctx context.Context, q ride.GetQuery) ([]ride.Bid, error)
	AcceptBid(ctx context.Context, cmd ride.AcceptBidCommand) (*ride.Ride, error)
	AssignDriver(ctx context.Context, cmd ride.AssignDriverCommand) (*ride.Ride, error)
	NextStatuses(ctx context.Context, q ride.GetQuery) ([]ride.Status, error)
	Events(ctx context.Context, q ride.GetQuery) ([]ride.Event, error)
}

type RideHandler struct {
	rides RideService
}

func NewRideHandler(svc RideService) *RideHandler {
	return &RideHandler{rides: svc}
}

type rideResponse struct {
	ID               types.ID           `json:"id"`
	Status           ride.Status        `json:"status"`
	StatusLabel      string             `json:"status_label"`
	StatusVersion    int                `json:"status_version"`
	BiddingStatus    ride.BiddingStatus `json:"bidding_status"`
	PaymentStatus    string             `json:"payment_status"`
	CreatedByID      types.ID           `json:"created_by_id"`
	TransporterID    types.ID           `json:"transporter_id,omitempty"`
	AssignedDriverID types.ID           `json:"assigned_driver_id,omitempty"`
	AcceptedByUserID types.ID           `json:"accepted_by_user_id,omitempty"`
	PickupAddress    string             `json:"pickup_address"`
	DropAddress      string             `json:"drop_address"`
	LoadDescription  string             `json:"load_description,omitempty"`
	ScheduledAt      *time.Time         `json:"scheduled_at,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

func toRideResponse(r *ride.Ride) rideResponse {
	return rideResponse{
		ID:               r.ID,
		Status:           r.Status,
		StatusLabel:      ride.Label(r.Status),
		StatusVersion:    r.StatusVersion,
		BiddingStatus:    r.BiddingStatus,
		PaymentStatus:    r.PaymentStatus,
		CreatedByID:      r.CreatedByID,
		TransporterID:    r.TransporterID,
		AssignedDriverID: r.AssignedDriverID,
		AcceptedByUserID: r.AcceptedByUserID,
		PickupAddress:    r.PickupAddress,
		DropAddress:      r.DropAddress,
		LoadDescription:  r.LoadDescription,
		ScheduledAt:      r.ScheduledAt,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

type bidResponse struct {
	ID            types.ID        `json:"id"`
	RideID        types.ID        `json:"ride_id"`
	BidderID      types.ID        `json:"bidder_id"`
	BidderRole    permission.Role `json:"bidder_role"`
	TransporterID types.ID        `json:"transporter_id,omitempty"`
	Amount        types.Money     `json:"amount"`
	CreatedAt     time.Time       `json:"created_at"`
}

func toBidResponse(b ride.Bid) bidResponse {
	return bidResponse{
		ID:            b.ID,
		RideID:        b.RideID,
		BidderID:      b.BidderID,
		BidderRole:    b.BidderRole,
		TransporterID: b.TransporterID,
		Amount:        b.Amount,
		CreatedAt:     b.CreatedAt,
	}
}

type eventResponse struct {
	From      ride.Status       `json:"from,omitempty"`
	To        ride.Status       `json:"to"`
	Action    permission.Action `json:"action,omitempty"`
	ActorID   types.ID          `json:"actor_id,omitempty"`
	ActorRole permission.Role   `json:"actor_role,omitempty"`
	At        time.Time         `json:"at"`
}

type createRideReq struct {
	PickupAddress   string     `json:"pickup_address"`
	DropAddress     string     `json:"drop_address"`
	LoadDescription string     `json:"load_description"`
	ScheduledAt     *time.Time `json:"scheduled_at"`
}

func (h *RideHandler) Create(c *gin.Context) {
	var req createRideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	r, err := h.rides.Create(c.Request.Context(), ride.CreateCommand{
		Actor:           middleware.Caller(c),
		PickupAddress:   req.PickupAddress,
		DropAddress:     req.DropAddress,
		LoadDescription: req.LoadDescription,
		ScheduledAt:     req.ScheduledAt,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, toRideResponse(r))
}

func (h *RideHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	r, err := h.rides.Get(c.Request.Context(), ride.GetQuery{RideID: id, Actor: middleware.Caller(c)})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toRideResponse(r))
}

func (h *RideHandler) Next(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	next, err := h.rides.NextStatuses(c.Request.Context(), ride.GetQuery{RideID: id, Actor: middleware.Caller(c)})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	out := make([]gin.H, 0, len(next))
	for _, s := range next {
		out = append(out, gin.H{"status": s, "label": ride.Label(s)})
	}
	writeJSON(c, http.StatusOK, gin.H{"next": out})
}

func (h *RideHandler) Events(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	events, err := h.rides.Events(c.Request.Context(), ride.GetQuery{RideID: id, Actor: middleware.Caller(c)})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, eventResponse{
			From:      e.FromStatus,
			To:        e.ToStatus,
			Action:    e.Action,
			ActorID:   e.ActorID,
			ActorRole: e.ActorRole,
			At:        e.CreatedAt,
		})
	}
	writeJSON(c, http.StatusOK, gin.H{"events": out})
}

type transitionReq struct {
	Status string `json:"status"`
	Action string `json:"action"`
}

func (h *RideHandler) Transition(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req transitionReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		writeError(c, http.StatusBadRequest, "status is required")
		return
	}
	var action permission.Action
	if req.Action != "" {
		a, ok := permission.ParseAction(req.Action)
		if !ok {
			writeError(c, http.StatusBadRequest, "unknown action")
			return
		}
		action = a
	}
	r, err := h.rides.Transition(c.Request.Context(), ride.TransitionCommand{
		RideID: id,
		To:     req.Status,
		Action: action,
		Actor:  middleware.Caller(c),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toRideResponse(r))
}

type placeBidReq struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (h *RideHandler) PlaceBid(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req placeBidReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	b, err := h.rides.PlaceBid(c.Request.Context(), ride.PlaceBidCommand{
		RideID: id,
		Actor:  middleware.Caller(c),
		Amount: types.NewMoney(req.Amount, req.Currency),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, toBidResponse(*b))
}

func (h *RideHandler) ListBids(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	bids, err := h.rides.ListBids(c.Request.Context(), ride.GetQuery{RideID: id, Actor: middleware.Caller(c)})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	out := make([]bidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, toBidResponse(b))
	}
	writeJSON(c, http.StatusOK, gin.H{"bids": out})
}

func (h *RideHandler) AcceptBid(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	bidID, ok := pathID(c, "bidId")
	if !ok {
		return
	}
	r, err := h.rides.AcceptBid(c.Request.Context(), ride.AcceptBidCommand{
		RideID: id,
		BidID:  bidID,
		Actor:  middleware.Caller(c),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toRideResponse(r))
}

type assignDriverReq struct {
	DriverID string `json:"driver_id"`
}

func (h *RideHandler) AssignDriver(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req assignDriverReq
	if err := c.ShouldBindJSON(&req); err != nil || req.DriverID == "" {
		writeError(c, http.StatusBadRequest, "driver_id is required")
		return
	}
	r, err := h.rides.AssignDriver(c.Request.Context(), ride.AssignDriverCommand{
		RideID:   id,
		DriverID: types.ID(req.DriverID),
		Actor:    middleware.Caller(c),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toRideResponse(r))
}

type authorizeReq struct {
	Action string `json:"action"`
}

// Authorize answers whether the caller could perform an action right now. A
// denial is a 200 with allowed=false; only lookup failures are errors.
func (h *RideHandler) Authorize(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req authorizeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	action, ok := permission.ParseAction(req.Action)
	if !ok {
		writeError(c, http.StatusBadRequest, "unknown action")
		return
	}
	err := h.rides.Authorize(c.Request.Context(), ride.AuthorizeQuery{RideID: id, Action: action, Actor: middleware.Caller(c)})
	var violation *permission.ActorViolationError
	switch {
	case err == nil:
		writeJSON(c, http.StatusOK, gin.H{"allowed": true, "action": action})
	case errors.As(err, &violation):
		writeJSON(c, http.StatusOK, gin.H{"allowed": false, "action": action, "reason": violation.Reason})
	default:
		writeServiceError(c, err)
	}
}
