package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"lens_gateway/internal/billing"
	"lens_gateway/internal/gateway"
	"lens_gateway/internal/middleware"
	"lens_gateway/internal/storage"
	"lens_gateway/internal/utils"
)

const maxBodyBytes = 1 << 20

type executeRequest struct {
	ProviderID string `json:"providerId"`
	gateway.ExecuteInput
}

type evaluateRequest struct {
	ProviderID string `json:"providerId"`
	gateway.EvaluateInput
}

type testConnectionRequest struct {
	ProviderID string `json:"providerId"`
}

type catalogResponse struct {
	Success      bool                       `json:"success"`
	Metrics      []gateway.MetricDescriptor `json:"metrics"`
	TotalMetrics int                        `json:"totalMetrics"`
}

type spendResponse struct {
	Success    bool    `json:"success"`
	ProviderID string  `json:"providerId"`
	Month      string  `json:"month"`
	CostUSD    float64 `json:"costUsd"`
}

// handleExecute runs a prompt against a provider.
//
// Flow:
//  1. Decode JSON body
//  2. Check required fields
//  3. Resolve provider (404 unknown, 400 inactive, 500 bad settings)
//  4. Dispatch and return the envelope with 200, even on vendor failure
func (d *Dependencies) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := gateway.ValidateExecute(req.ProviderID, req.ExecuteInput); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	target, ok := d.resolve(w, r, req.ProviderID)
	if !ok {
		return
	}

	req.RequestID = middleware.GetRequestID(r.Context())
	env := d.Runner.Dispatcher.Execute(r.Context(), target, req.ExecuteInput)
	utils.RespondWithJSON(w, http.StatusOK, env)
}

// handleEvaluate scores an output with one of the catalog metrics
func (d *Dependencies) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := gateway.ValidateEvaluate(req.ProviderID, &req.EvaluateInput); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	target, ok := d.resolve(w, r, req.ProviderID)
	if !ok {
		return
	}

	env := d.Runner.Dispatcher.Evaluate(r.Context(), target, &req.EvaluateInput, middleware.GetRequestID(r.Context()))
	utils.RespondWithJSON(w, http.StatusOK, env)
}

func (d *Dependencies) handleEvaluateCatalog(w http.ResponseWriter, r *http.Request) {
	catalog := gateway.Catalog()
	utils.RespondWithJSON(w, http.StatusOK, catalogResponse{
		Success:      true,
		Metrics:      catalog,
		TotalMetrics: len(catalog),
	})
}

// handleTestConnection performs a minimal vendor round-trip. Outside
// production the response carries a debug block describing the provider.
func (d *Dependencies) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	var req testConnectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := gateway.ValidateTestConnection(req.ProviderID); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	target, ok := d.resolve(w, r, req.ProviderID)
	if !ok {
		return
	}

	env := d.Runner.Dispatcher.TestConnection(r.Context(), target, middleware.GetRequestID(r.Context()))
	if !d.Production {
		env.Debug = map[string]any{
			"providerId":   target.Provider.ID,
			"providerType": string(target.Provider.Type),
			"configKeys":   target.ConfigKeys(),
			"hasApiKey":    target.Settings.APIKey != "",
		}
	}
	utils.RespondWithJSON(w, http.StatusOK, env)
}

// handleSpend reports a provider's accumulated cost for a month
func (d *Dependencies) handleSpend(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "providerId")

	month, err := billing.ParseMonth(r.URL.Query().Get("month"), time.Now())
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := d.Runner.Store.GetByID(r.Context(), providerID); err != nil && !errors.Is(err, storage.ErrInvalidCredentials) {
		if errors.Is(err, storage.ErrProviderNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, gateway.ErrProviderNotFound.Error())
			return
		}
		log.Error().Err(err).Str("provider_id", providerID).Msg("provider lookup failed")
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to process request")
		return
	}

	spend, err := d.Billing.MonthlySpend(r.Context(), providerID, month)
	if err != nil {
		log.Error().Err(err).Str("provider_id", providerID).Msg("failed to read provider spend")
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to read provider spend")
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, spendResponse{
		Success:    true,
		ProviderID: providerID,
		Month:      month.Format("2006-01"),
		CostUSD:    spend,
	})
}

func (d *Dependencies) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := d.checkHealth(r.Context())

	code := http.StatusOK
	for _, status := range checks {
		if status != "ok" {
			code = http.StatusServiceUnavailable
		}
	}
	utils.RespondWithJSON(w, code, map[string]any{
		"success": code == http.StatusOK,
		"checks":  checks,
	})
}

// resolve maps registry and Prepare failures to their HTTP status.
func (d *Dependencies) resolve(w http.ResponseWriter, r *http.Request, providerID string) (*gateway.Target, bool) {
	target, err := d.Runner.Resolve(r.Context(), providerID)
	if err == nil {
		return target, true
	}

	switch {
	case errors.Is(err, gateway.ErrProviderNotFound):
		utils.RespondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, gateway.ErrProviderInactive):
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, gateway.ErrInvalidConfiguration):
		utils.RespondWithError(w, http.StatusInternalServerError, err.Error())
	default:
		log.Error().Err(err).Str("provider_id", providerID).Msg("provider lookup failed")
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to process request")
	}
	return nil, false
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}
