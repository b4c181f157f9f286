// README: Handler tests for ride routes: auth, request decoding and error-to-status mapping.
package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"waykel/internal/http/handlers"
	httpmiddleware "waykel/internal/http/middleware"
	"waykel/internal/infra"
	"waykel/internal/lifecycle"
	"waykel/internal/modules/permission"
	"waykel/internal/modules/ride"
	"waykel/internal/types"
)

const (
	rideID = "6f1c2a8e-2d44-4f0e-9a51-0b6a7c3d9e10"
	bidID  = "0e4b7d52-91aa-4c1d-8f3b-5a6e2c1d7f20"
)

// stubTokenVerifier is a test double for infra.TokenVerifier.
type stubTokenVerifier struct {
	token *infra.FirebaseToken
	err   error
}

func (s *stubTokenVerifier) VerifyIDToken(_ context.Context, _ string) (*infra.FirebaseToken, error) {
	return s.token, s.err
}

func makeVerifier(uid, role string) *stubTokenVerifier {
	claims := map[string]interface{}{}
	if role != "" {
		claims["role"] = role
	}
	return &stubTokenVerifier{token: &infra.FirebaseToken{UID: uid, Claims: claims}}
}

// fakeRides records the last call and returns err for every method.
type fakeRides struct {
	err        error
	lastActor  permission.User
	lastTo     string
	lastAction permission.Action
	lastAmount types.Money
	lastDriver types.ID
	lastCreate ride.CreateCommand
}

func (f *fakeRides) ride(id types.ID, status ride.Status) *ride.Ride {
	return &ride.Ride{ID: id, Status: status, CreatedByID: "cust-1", PickupAddress: "A", DropAddress: "B"}
}

func (f *fakeRides) Create(_ context.Context, cmd ride.CreateCommand) (*ride.Ride, error) {
	f.lastActor, f.lastCreate = cmd.Actor, cmd
	if f.err != nil {
		return nil, f.err
	}
	return f.ride(rideID, ride.StatusPending), nil
}

func (f *fakeRides) Get(_ context.Context, q ride.GetQuery) (*ride.Ride, error) {
	f.lastActor = q.Actor
	if f.err != nil {
		return nil, f.err
	}
	return f.ride(q.RideID, ride.StatusPending), nil
}

func (f *fakeRides) Authorize(_ context.Context, q ride.AuthorizeQuery) error {
	f.lastActor, f.lastAction = q.Actor, q.Action
	return f.err
}

func (f *fakeRides) Transition(_ context.Context, cmd ride.TransitionCommand) (*ride.Ride, error) {
	f.lastActor, f.lastTo, f.lastAction = cmd.Actor, cmd.To, cmd.Action
	if f.err != nil {
		return nil, f.err
	}
	return f.ride(cmd.RideID, ride.Status(cmd.To)), nil
}

func (f *fakeRides) PlaceBid(_ context.Context, cmd ride.PlaceBidCommand) (*ride.Bid, error) {
	f.lastActor, f.lastAmount = cmd.Actor, cmd.Amount
	if f.err != nil {
		return nil, f.err
	}
	return &ride.Bid{ID: bidID, RideID: cmd.RideID, BidderID: cmd.Actor.ID, BidderRole: cmd.Actor.Role, Amount: cmd.Amount}, nil
}

func (f *fakeRides) ListBids(_ context.Context, q ride.GetQuery) ([]ride.Bid, error) {
	f.lastActor = q.Actor
	if f.err != nil {
		return nil, f.err
	}
	return []ride.Bid{{ID: bidID, RideID: q.RideID, Amount: types.NewMoney(1200, "")}}, nil
}

func (f *fakeRides) AcceptBid(_ context.Context, cmd ride.AcceptBidCommand) (*ride.Ride, error) {
	f.lastActor = cmd.Actor
	if f.err != nil {
		return nil, f.err
	}
	return f.ride(cmd.RideID, ride.StatusAccepted), nil
}

func (f *fakeRides) AssignDriver(_ context.Context, cmd ride.AssignDriverCommand) (*ride.Ride, error) {
	f.lastActor, f.lastDriver = cmd.Actor, cmd.DriverID
	if f.err != nil {
		return nil, f.err
	}
	return f.ride(cmd.RideID, ride.StatusAssigned), nil
}

func (f *fakeRides) NextStatuses(_ context.Context, q ride.GetQuery) ([]ride.Status, error) {
	f.lastActor = q.Actor
	if f.err != nil {
		return nil, f.err
	}
	return []ride.Status{ride.StatusBidding, ride.StatusCancelled}, nil
}

func (f *fakeRides) Events(_ context.Context, q ride.GetQuery) ([]ride.Event, error) {
	f.lastActor = q.Actor
	if f.err != nil {
		return nil, f.err
	}
	return []ride.Event{{RideID: q.RideID, ToStatus: ride.StatusPending}}, nil
}

// buildTestRouter wires a minimal Gin engine with the auth middleware and the ride handler.
func buildTestRouter(verifier infra.TokenVerifier, svc handlers.RideService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(httpmiddleware.Auth(verifier))
	h := handlers.NewRideHandler(svc)
	r.POST("/api/rides", h.Create)
	r.GET("/api/rides/:id", h.Get)
	r.GET("/api/rides/:id/next", h.Next)
	r.GET("/api/rides/:id/events", h.Events)
	r.POST("/api/rides/:id/status", h.Transition)
	r.POST("/api/rides/:id/authorize", h.Authorize)
	r.GET("/api/rides/:id/bids", h.ListBids)
	r.POST("/api/rides/:id/bids", h.PlaceBid)
	r.POST("/api/rides/:id/bids/:bidId/accept", h.AcceptBid)
	r.POST("/api/rides/:id/assign", h.AssignDriver)
	r.GET("/api/lifecycle/rides", handlers.RideLifecycle)
	r.GET("/api/lifecycle/payments", handlers.PaymentLifecycle)
	return r
}

func doRequest(r *gin.Engine, method, path string, body interface{}, authHeader string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

func TestRide_Unauthenticated(t *testing.T) {
	r := buildTestRouter(&stubTokenVerifier{err: errors.New("no token")}, &fakeRides{})
	w := doRequest(r, http.MethodGet, "/api/rides/"+rideID, nil, "Bearer badtoken")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestRide_InvalidID(t *testing.T) {
	r := buildTestRouter(makeVerifier("cust-1", "customer"), &fakeRides{})
	w := doRequest(r, http.MethodGet, "/api/rides/not-a-uuid", nil, "Bearer t")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestRide_CallerPassedToService(t *testing.T) {
	svc := &fakeRides{}
	v := &stubTokenVerifier{token: &infra.FirebaseToken{UID: "tu-1", Claims: map[string]interface{}{
		"role": "transporter", "is_self_driver": true, "transporter_id": "tr-1",
	}}}
	r := buildTestRouter(v, svc)
	w := doRequest(r, http.MethodGet, "/api/rides/"+rideID, nil, "Bearer t")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	want := permission.User{ID: "tu-1", Role: permission.RoleTransporter, IsSelfDriver: true, TransporterID: "tr-1"}
	if svc.lastActor != want {
		t.Fatalf("actor = %+v, want %+v", svc.lastActor, want)
	}
	body := decode(t, w)
	if body["status"] != "pending" || body["status_label"] == "" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestRide_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"unknown status", &lifecycle.TransitionError{Machine: "ride", From: "pending", To: "x", Err: lifecycle.ErrUnknownStatus}, http.StatusBadRequest},
		{"bad request", ride.ErrBadRequest, http.StatusBadRequest},
		{"actor violation", &permission.ActorViolationError{Action: permission.ActionStartTrip, Reason: "not the assigned driver"}, http.StatusForbidden},
		{"forbidden", ride.ErrForbidden, http.StatusForbidden},
		{"not found", ride.ErrNotFound, http.StatusNotFound},
		{"bid not found", ride.ErrBidNotFound, http.StatusNotFound},
		{"illegal", &lifecycle.TransitionError{Machine: "ride", From: "completed", To: "pending", Err: lifecycle.ErrIllegalTransition}, http.StatusConflict},
		{"conflict", ride.ErrConflict, http.StatusConflict},
		{"mismatch", fmt.Errorf("%w: nope", ride.ErrActionMismatch), http.StatusConflict},
		{"other", errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := buildTestRouter(makeVerifier("adm-1", "admin"), &fakeRides{err: tc.err})
			w := doRequest(r, http.MethodPost, "/api/rides/"+rideID+"/status", map[string]any{"status": "active"}, "Bearer t")
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, w.Code)
			}
			if tc.want == http.StatusInternalServerError && decode(t, w)["error"] != "internal error" {
				t.Fatalf("internal errors must not leak: %s", w.Body.String())
			}
		})
	}
}

func TestRide_TransitionRequest(t *testing.T) {
	svc := &fakeRides{}
	r := buildTestRouter(makeVerifier("drv-1", "driver"), svc)

	w := doRequest(r, http.MethodPost, "/api/rides/"+rideID+"/status", map[string]any{}, "Bearer t")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing status: expected 400, got %d", w.Code)
	}
	w = doRequest(r, http.MethodPost, "/api/rides/"+rideID+"/status", map[string]any{"status": "active", "action": "FLY"}, "Bearer t")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown action: expected 400, got %d", w.Code)
	}
	w = doRequest(r, http.MethodPost, "/api/rides/"+rideID+"/status", map[string]any{"status": "active", "action": "ACCEPT_TRIP"}, "Bearer t")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if svc.lastTo != "active" || svc.lastAction != permission.ActionAcceptTrip {
		t.Fatalf("unexpected command to=%s action=%s", svc.lastTo, svc.lastAction)
	}
}

func TestRide_PlaceBidNormalizesMoney(t *testing.T) {
	svc := &fakeRides{}
	r := buildTestRouter(makeVerifier("tu-1", "transporter"), svc)
	w := doRequest(r, http.MethodPost, "/api/rides/"+rideID+"/bids", map[string]any{"amount": 4500, "currency": " usd "}, "Bearer t")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if svc.lastAmount != (types.Money{Amount: 4500, Currency: "USD"}) {
		t.Fatalf("amount = %+v", svc.lastAmount)
	}
}

func TestRide_AcceptBidAndAssign(t *testing.T) {
	svc := &fakeRides{}
	r := buildTestRouter(makeVerifier("cust-1", "customer"), svc)

	w := doRequest(r, http.MethodPost, "/api/rides/"+rideID+"/bids/"+bidID+"/accept", nil, "Bearer t")
	if w.Code != http.StatusOK || decode(t, w)["status"] != "accepted" {
		t.Fatalf("accept: %d %s", w.Code, w.Body.String())
	}
	w = doRequest(r, http.MethodPost, "/api/rides/"+rideID+"/bids/xyz/accept", nil, "Bearer t")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad bid id: expected 400, got %d", w.Code)
	}
	w = doRequest(r, http.MethodPost, "/api/rides/"+rideID+"/assign", map[string]any{}, "Bearer t")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing driver: expected 400, got %d", w.Code)
	}
	w = doRequest(r, http.MethodPost, "/api/rides/"+rideID+"/assign", map[string]any{"driver_id": "drv-1"}, "Bearer t")
	if w.Code != http.StatusOK || svc.lastDriver != "drv-1" {
		t.Fatalf("assign: %d driver=%s", w.Code, svc.lastDriver)
	}
}

func TestRide_AuthorizeDryRun(t *testing.T) {
	svc := &fakeRides{}
	r := buildTestRouter(makeVerifier("drv-2", "driver"), svc)

	w := doRequest(r, http.MethodPost, "/api/rides/"+rideID+"/authorize", map[string]any{"action": "START_TRIP"}, "Bearer t")
	if w.Code != http.StatusOK || decode(t, w)["allowed"] != true {
		t.Fatalf("allowed: %d %s", w.Code, w.Body.String())
	}

	svc.err = &permission.ActorViolationError{Action: permission.ActionStartTrip, Reason: "caller is not the assigned driver"}
	w = doRequest(r, http.MethodPost, "/api/rides/"+rideID+"/authorize", map[string]any{"action": "START_TRIP"}, "Bearer t")
	body := decode(t, w)
	if w.Code != http.StatusOK || body["allowed"] != false || body["reason"] != "caller is not the assigned driver" {
		t.Fatalf("denied: %d %v", w.Code, body)
	}

	w = doRequest(r, http.MethodPost, "/api/rides/"+rideID+"/authorize", map[string]any{"action": "start_trip"}, "Bearer t")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("lowercase action: expected 400, got %d", w.Code)
	}

	svc.err = ride.ErrNotFound
	w = doRequest(r, http.MethodPost, "/api/rides/"+rideID+"/authorize", map[string]any{"action": "VIEW_TRIP"}, "Bearer t")
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing ride: expected 404, got %d", w.Code)
	}
}

func TestRide_ListingsAndHistory(t *testing.T) {
	r := buildTestRouter(makeVerifier("cust-1", "customer"), &fakeRides{})

	w := doRequest(r, http.MethodGet, "/api/rides/"+rideID+"/next", nil, "Bearer t")
	next, _ := decode(t, w)["next"].([]any)
	if w.Code != http.StatusOK || len(next) != 2 {
		t.Fatalf("next: %d %s", w.Code, w.Body.String())
	}
	w = doRequest(r, http.MethodGet, "/api/rides/"+rideID+"/events", nil, "Bearer t")
	events, _ := decode(t, w)["events"].([]any)
	if w.Code != http.StatusOK || len(events) != 1 {
		t.Fatalf("events: %d %s", w.Code, w.Body.String())
	}
	w = doRequest(r, http.MethodGet, "/api/rides/"+rideID+"/bids", nil, "Bearer t")
	bids, _ := decode(t, w)["bids"].([]any)
	if w.Code != http.StatusOK || len(bids) != 1 {
		t.Fatalf("bids: %d %s", w.Code, w.Body.String())
	}
}

func TestRide_Create(t *testing.T) {
	svc := &fakeRides{}
	r := buildTestRouter(makeVerifier("cust-1", ""), svc)
	w := doRequest(r, http.MethodPost, "/api/rides", map[string]any{
		"pickup_address": "Depot 4",
		"drop_address":   "Port gate 2",
		"scheduled_at":   "2030-01-01T09:00:00Z",
	}, "Bearer t")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	if svc.lastActor.Role != permission.RoleCustomer || svc.lastCreate.ScheduledAt == nil {
		t.Fatalf("unexpected command %+v", svc.lastCreate)
	}

	w = doRequest(r, http.MethodPost, "/api/rides", map[string]any{"scheduled_at": "tomorrow"}, "Bearer t")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad time: expected 400, got %d", w.Code)
	}
}

func TestLifecycleTables(t *testing.T) {
	r := buildTestRouter(makeVerifier("u", ""), &fakeRides{})
	for path, n := range map[string]int{"/api/lifecycle/rides": 10, "/api/lifecycle/payments": 6} {
		w := doRequest(r, http.MethodGet, path, nil, "Bearer t")
		rows, _ := decode(t, w)["statuses"].([]any)
		if w.Code != http.StatusOK || len(rows) != n {
			t.Fatalf("%s: %d rows=%d", path, w.Code, len(rows))
		}
		first, _ := rows[0].(map[string]any)
		if first["status"] != "pending" || first["terminal"] != false {
			t.Fatalf("%s: unexpected first row %v", path, first)
		}
	}
}
