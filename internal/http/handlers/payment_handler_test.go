// README: Handler tests for payment routes.
package handlers_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"waykel/internal/http/handlers"
	httpmiddleware "waykel/internal/http/middleware"
	"waykel/internal/modules/payment"
)

type fakePayments struct {
	err  error
	last payment.TransitionCommand
}

func (f *fakePayments) Get(_ context.Context, q payment.GetQuery) (*payment.Payment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &payment.Payment{RideID: q.RideID, Status: payment.StatusInvoiced, Version: 1}, nil
}

func (f *fakePayments) Events(_ context.Context, q payment.GetQuery) ([]payment.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []payment.Event{{RideID: q.RideID, FromStatus: payment.StatusPending, ToStatus: payment.StatusInvoiced}}, nil
}

func (f *fakePayments) Transition(_ context.Context, cmd payment.TransitionCommand) (*payment.Payment, error) {
	f.last = cmd
	if f.err != nil {
		return nil, f.err
	}
	return &payment.Payment{RideID: cmd.RideID, Status: payment.Status(cmd.To), Version: 2}, nil
}

func buildPaymentRouter(svc handlers.PaymentService, uid, role string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(httpmiddleware.Auth(makeVerifier(uid, role)))
	h := handlers.NewPaymentHandler(svc)
	r.GET("/api/rides/:id/payment", h.Get)
	r.GET("/api/rides/:id/payment/events", h.Events)
	r.POST("/api/rides/:id/payment/status", h.Transition)
	return r
}

func TestPayment_Get(t *testing.T) {
	r := buildPaymentRouter(&fakePayments{}, "cust-1", "customer")
	w := doRequest(r, http.MethodGet, "/api/rides/"+rideID+"/payment", nil, "Bearer t")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decode(t, w)
	next, _ := body["next"].([]any)
	if body["status"] != "invoiced" || body["label"] != "Invoiced" || len(next) != 3 {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestPayment_Transition(t *testing.T) {
	svc := &fakePayments{}
	r := buildPaymentRouter(svc, "adm-1", "admin")

	w := doRequest(r, http.MethodPost, "/api/rides/"+rideID+"/payment/status", map[string]any{}, "Bearer t")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing status: expected 400, got %d", w.Code)
	}
	w = doRequest(r, http.MethodPost, "/api/rides/"+rideID+"/payment/status", map[string]any{"status": "disputed", "note": "damaged load"}, "Bearer t")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if svc.last.To != "disputed" || svc.last.Note != "damaged load" || !svc.last.Actor.IsAdmin() {
		t.Fatalf("unexpected command %+v", svc.last)
	}
}

func TestPayment_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{payment.ErrForbidden, http.StatusForbidden},
		{payment.ErrNotFound, http.StatusNotFound},
		{payment.ErrConflict, http.StatusConflict},
		{payment.AssertTransition("refunded", "paid", rideID), http.StatusConflict},
		{payment.AssertTransition("pending", "lost", rideID), http.StatusBadRequest},
	}
	for _, tc := range cases {
		r := buildPaymentRouter(&fakePayments{err: tc.err}, "cust-1", "customer")
		w := doRequest(r, http.MethodPost, "/api/rides/"+rideID+"/payment/status", map[string]any{"status": "paid"}, "Bearer t")
		if w.Code != tc.want {
			t.Errorf("%v: expected %d, got %d", tc.err, tc.want, w.Code)
		}
	}
}

func TestPayment_Events(t *testing.T) {
	r := buildPaymentRouter(&fakePayments{}, "cust-1", "customer")
	w := doRequest(r, http.MethodGet, "/api/rides/"+rideID+"/payment/events", nil, "Bearer t")
	events, _ := decode(t, w)["events"].([]any)
	if w.Code != http.StatusOK || len(events) != 1 {
		t.Fatalf("events: %d %s", w.Code, w.Body.String())
	}
}
