package api

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

func RegisterRoutes(h *Handler) http.Handler {
	router := mux.NewRouter()

	// Trip endpoints
	router.HandleFunc("/trips", h.CreateTrip).Methods("POST")
	router.HandleFunc("/trips/{ref}", h.InspectTrip).Methods("GET")
	router.HandleFunc("/trips/{ref}/transition", h.TransitionTrip).Methods("POST")
	router.HandleFunc("/trips/{ref}/fulfillment", h.TransitionFulfillment).Methods("POST")
	router.HandleFunc("/trips/{ref}/assign", h.AssignTrip).Methods("POST")
	router.HandleFunc("/trips/{ref}/assignments", h.TripAssignments).Methods("GET")

	// Dispatch endpoints
	router.HandleFunc("/dispatch/nearest", h.NearestDriver).Methods("GET")
	router.HandleFunc("/drivers/{driver_id}/location", h.ReportLocation).Methods("PUT")

	// Wallet endpoints
	router.HandleFunc("/wallets/{owner_type}/{owner_id}", h.GetWallet).Methods("GET")
	router.HandleFunc("/wallets/{owner_type}/{owner_id}/adjust", h.AdjustWallet).Methods("POST")
	router.HandleFunc("/wallets/{owner_type}/{owner_id}/settle", h.SettleWallet).Methods("POST")
	router.HandleFunc("/payout-requests", h.CreatePayoutRequest).Methods("POST")
	router.HandleFunc("/payout-requests/{id}/{decision:approve|reject}", h.ReviewPayoutRequest).Methods("POST")

	// Ops endpoints
	router.HandleFunc("/reports/stuck", h.StuckReport).Methods("GET")

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	return cors(router)
}
