// README: Read-only lifecycle handlers; expose the ride and payment transition tables to clients.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"waykel/internal/modules/payment"
	"waykel/internal/modules/ride"
)

type statusRow[S ~string] struct {
	Status   S      `json:"status"`
	Label    string `json:"label"`
	Terminal bool   `json:"terminal"`
	Next     []S    `json:"next"`
}

func describe[S ~string](statuses []S, label func(S) string, next func(string) []S, terminal func(S) bool) []statusRow[S] {
	out := make([]statusRow[S], 0, len(statuses))
	for _, s := range statuses {
		out = append(out, statusRow[S]{Status: s, Label: label(s), Terminal: terminal(s), Next: next(string(s))})
	}
	return out
}

func RideLifecycle(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{
		"machine":  "ride",
		"statuses": describe(ride.Statuses(), ride.Label, ride.NextStatuses, ride.IsTerminal),
	})
}

func PaymentLifecycle(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{
		"machine":  "payment",
		"statuses": describe(payment.Statuses(), payment.Label, payment.NextStatuses, payment.IsTerminal),
	})
}
