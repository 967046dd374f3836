package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"trip-dispatch-system/dispatch"
	"trip-dispatch-system/fault"
	"trip-dispatch-system/lifecycle"
	"trip-dispatch-system/locations"
	"trip-dispatch-system/models"
	"trip-dispatch-system/monitor"
	"trip-dispatch-system/wallet"
)

// Handler owns the HTTP surface. Inbound payloads — including legacy
// field aliases — are normalized into canonical requests here; the core
// packages never see raw JSON.
type Handler struct {
	Trips     *lifecycle.Service
	TripStore lifecycle.TripStore
	Dispatch  *dispatch.Engine
	Wallet    *wallet.Ledger
	Locations *locations.Store

	DefaultRadiusKm  float64
	DefaultFreshness time.Duration
	Thresholds       monitor.Thresholds
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeFault(w http.ResponseWriter, err error) {
	var fe *fault.Error
	if !errors.As(err, &fe) {
		fe = fault.Upstream(err)
	}
	status := http.StatusInternalServerError
	switch fe.Code {
	case fault.CodeValidation:
		status = http.StatusBadRequest
	case fault.CodeNotFound:
		status = http.StatusNotFound
	case fault.CodeInvalidTransition, fault.CodeConflict,
		fault.CodeOrdinance, fault.CodeNegativeBalance, fault.CodeNoBalance:
		status = http.StatusConflict
	case fault.CodeUpstream:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, fe)
}

// actorPayload is embedded in every mutating request body.
type actorPayload struct {
	ActorID   string `json:"actor_id"`
	ActorRole string `json:"actor_role"`
}

func (a actorPayload) actor() models.Actor {
	role := models.Role(a.ActorRole)
	if role == "" {
		role = models.RoleDispatcher
	}
	return models.Actor{ID: a.ActorID, Role: role}
}

// CreateTrip handles POST /trips. Older clients still send aliased
// coordinate fields, which are folded into the canonical shape here.
func (h *Handler) CreateTrip(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TripType     string  `json:"trip_type"`
		PickupLat    float64 `json:"pickup_latitude"`
		PickupLng    float64 `json:"pickup_longitude"`
		PickupLabel  string  `json:"pickup_label"`
		DropoffLat   float64 `json:"dropoff_latitude"`
		DropoffLng   float64 `json:"dropoff_longitude"`
		DropoffLabel string  `json:"dropoff_label"`
		Town         string  `json:"town"`
		PassengerID  int64   `json:"passenger_id"`
		VendorID     *int64  `json:"vendor_id"`
		DriverID     *int64  `json:"driver_id"`

		Fare models.FareBreakdown `json:"fare_breakdown"`

		// Legacy aliases.
		StartLat float64 `json:"start_latitude"`
		StartLon float64 `json:"start_longitude"`
		EndLat   float64 `json:"end_latitude"`
		EndLon   float64 `json:"end_longitude"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeFault(w, fault.New(fault.CodeValidation, "invalid request payload"))
		return
	}
	if body.PickupLat == 0 && body.PickupLng == 0 {
		body.PickupLat, body.PickupLng = body.StartLat, body.StartLon
	}
	if body.DropoffLat == 0 && body.DropoffLng == 0 {
		body.DropoffLat, body.DropoffLng = body.EndLat, body.EndLon
	}
	if body.TripType == "" {
		body.TripType = string(models.TripRide)
	}

	trip, err := h.Trips.Create(r.Context(), lifecycle.CreateRequest{
		Type:         models.TripType(body.TripType),
		PickupLat:    body.PickupLat,
		PickupLng:    body.PickupLng,
		PickupLabel:  body.PickupLabel,
		DropoffLat:   body.DropoffLat,
		DropoffLng:   body.DropoffLng,
		DropoffLabel: body.DropoffLabel,
		Town:         body.Town,
		PassengerID:  body.PassengerID,
		VendorID:     body.VendorID,
		DriverID:     body.DriverID,
		Fare:         body.Fare,
	})
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, trip)
}

// InspectTrip handles GET /trips/{ref}.
func (h *Handler) InspectTrip(w http.ResponseWriter, r *http.Request) {
	res, err := h.Trips.Inspect(r.Context(), mux.Vars(r)["ref"])
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"current_status": res.Status,
		"allowed_next":   res.AllowedNext,
		"trip":           res.Trip,
	})
}

// TransitionTrip handles POST /trips/{ref}/transition.
func (h *Handler) TransitionTrip(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
		actorPayload
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Status == "" {
		writeFault(w, fault.New(fault.CodeValidation, "status is required"))
		return
	}
	res, err := h.Trips.Transition(r.Context(), mux.Vars(r)["ref"], models.TripStatus(body.Status), body.actor())
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// TransitionFulfillment handles POST /trips/{ref}/fulfillment.
func (h *Handler) TransitionFulfillment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"status"`
		actorPayload
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Status == "" {
		writeFault(w, fault.New(fault.CodeValidation, "status is required"))
		return
	}
	res, err := h.Trips.TransitionFulfillment(r.Context(), mux.Vars(r)["ref"], models.TripStatus(body.Status), body.actor())
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// AssignTrip handles POST /trips/{ref}/assign.
func (h *Handler) AssignTrip(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DriverID       int64  `json:"driver_id"`
		OverrideReason string `json:"override_reason"`
		actorPayload
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.DriverID == 0 {
		writeFault(w, fault.New(fault.CodeValidation, "driver_id is required"))
		return
	}
	trip, err := h.Dispatch.Assign(r.Context(), mux.Vars(r)["ref"], body.DriverID, body.actor(), body.OverrideReason)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "trip": trip})
}

// TripAssignments handles GET /trips/{ref}/assignments (audit history).
func (h *Handler) TripAssignments(w http.ResponseWriter, r *http.Request) {
	trip, err := h.TripStore.GetByRef(r.Context(), mux.Vars(r)["ref"])
	if err != nil {
		writeFault(w, err)
		return
	}
	history, err := h.TripStore.Assignments(r.Context(), trip.ID)
	if err != nil {
		writeFault(w, fault.Upstream(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trip_code": trip.Code, "assignments": history})
}

// NearestDriver handles GET /dispatch/nearest.
func (h *Handler) NearestDriver(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
	if errLat != nil || errLng != nil {
		writeFault(w, fault.New(fault.CodeValidation, "lat and lng are required"))
		return
	}
	radiusKm := h.DefaultRadiusKm
	if v := q.Get("radius_km"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed > 0 {
			radiusKm = parsed
		}
	}
	freshness := h.DefaultFreshness
	if v := q.Get("freshness_min"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			freshness = time.Duration(parsed) * time.Minute
		}
	}

	driver, err := h.Dispatch.FindNearestDriver(r.Context(), lat, lng, q.Get("town"), radiusKm, freshness)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"driver": driver})
}

// ReportLocation handles PUT /drivers/{driver_id}/location, the direct
// HTTP variant of the AMQP feed.
func (h *Handler) ReportLocation(w http.ResponseWriter, r *http.Request) {
	driverID, err := strconv.ParseInt(mux.Vars(r)["driver_id"], 10, 64)
	if err != nil {
		writeFault(w, fault.New(fault.CodeValidation, "invalid driver id"))
		return
	}
	var report locations.Report
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		writeFault(w, fault.New(fault.CodeValidation, "invalid request payload"))
		return
	}
	report.DriverID = driverID
	loc, err := locations.FromReport(report)
	if err != nil {
		writeFault(w, fault.New(fault.CodeValidation, "%s", err.Error()))
		return
	}
	if err := h.Locations.Upsert(r.Context(), loc); err != nil {
		writeFault(w, fault.Upstream(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Driver location updated"})
}

func ownerFromVars(r *http.Request) (models.OwnerType, int64, error) {
	vars := mux.Vars(r)
	owner := models.OwnerType(vars["owner_type"])
	switch owner {
	case models.OwnerDriver, models.OwnerVendor, models.OwnerPlatform:
	default:
		return "", 0, fault.New(fault.CodeValidation, "unknown owner_type %q", vars["owner_type"])
	}
	id, err := strconv.ParseInt(vars["owner_id"], 10, 64)
	if err != nil {
		return "", 0, fault.New(fault.CodeValidation, "invalid owner id")
	}
	return owner, id, nil
}

// GetWallet handles GET /wallets/{owner_type}/{owner_id}.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	owner, id, err := ownerFromVars(r)
	if err != nil {
		writeFault(w, err)
		return
	}
	balance, err := h.Wallet.Balance(r.Context(), owner, id)
	if err != nil {
		writeFault(w, err)
		return
	}
	txns, err := h.Wallet.Transactions(r.Context(), owner, id)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"balance": balance, "transactions": txns})
}

// AdjustWallet handles POST /wallets/{owner_type}/{owner_id}/adjust.
func (h *Handler) AdjustWallet(w http.ResponseWriter, r *http.Request) {
	owner, id, err := ownerFromVars(r)
	if err != nil {
		writeFault(w, err)
		return
	}
	var body struct {
		Amount int64  `json:"amount"`
		Reason string `json:"reason"`
		actorPayload
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeFault(w, fault.New(fault.CodeValidation, "invalid request payload"))
		return
	}
	newBalance, err := h.Wallet.Adjust(r.Context(), owner, id, body.Amount, body.Reason, body.actor())
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "new_balance": newBalance})
}

// SettleWallet handles POST /wallets/{owner_type}/{owner_id}/settle.
// An empty wallet is a declined no-op, not an error.
func (h *Handler) SettleWallet(w http.ResponseWriter, r *http.Request) {
	owner, id, err := ownerFromVars(r)
	if err != nil {
		writeFault(w, err)
		return
	}
	var body actorPayload
	_ = json.NewDecoder(r.Body).Decode(&body)

	paid, err := h.Wallet.Settle(r.Context(), owner, id, body.actor())
	if err != nil {
		if fault.Is(err, fault.CodeNoBalance) {
			writeJSON(w, http.StatusOK, map[string]interface{}{"ok": false, "reason": "no_balance"})
			return
		}
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "amount_paid": paid})
}

// CreatePayoutRequest handles POST /payout-requests.
func (h *Handler) CreatePayoutRequest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OwnerID int64 `json:"owner_id"`
		Amount  int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeFault(w, fault.New(fault.CodeValidation, "invalid request payload"))
		return
	}
	req, err := h.Wallet.RequestPayout(r.Context(), body.OwnerID, body.Amount)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// ReviewPayoutRequest handles POST /payout-requests/{id}/approve|reject.
func (h *Handler) ReviewPayoutRequest(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		writeFault(w, fault.New(fault.CodeValidation, "invalid request id"))
		return
	}
	var body struct {
		ReviewedBy string `json:"reviewed_by"`
		Note       string `json:"note"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	if vars["decision"] == "approve" {
		err = h.Wallet.Approve(r.Context(), id, body.ReviewedBy, body.Note)
	} else {
		err = h.Wallet.Reject(r.Context(), id, body.ReviewedBy, body.Note)
	}
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

// StuckReport handles GET /reports/stuck.
func (h *Handler) StuckReport(w http.ResponseWriter, r *http.Request) {
	trips, err := h.TripStore.ActiveTrips(r.Context(), h.Thresholds.CancelledRecent)
	if err != nil {
		writeFault(w, fault.Upstream(err))
		return
	}
	report := monitor.Build(trips, h.Thresholds, time.Now().UTC())
	writeJSON(w, http.StatusOK, report)
}
