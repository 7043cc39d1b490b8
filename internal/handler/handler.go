package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"wallet-points-api/internal/ledger"
	"wallet-points-api/internal/models"
	"wallet-points-api/internal/validation"
)

// Handler provides HTTP handlers for the API.
type Handler struct {
	ledger      *ledger.Ledger
	maxBodySize int64
}

// NewHandlerOptions holds options for creating a handler.
type NewHandlerOptions struct {
	MaxBodySize int64
}

// DefaultHandlerOptions returns default handler options.
func DefaultHandlerOptions() NewHandlerOptions {
	return NewHandlerOptions{
		MaxBodySize: 1 << 20, // 1MB default
	}
}

// NewHandler creates a new handler instance.
func NewHandler(l *ledger.Ledger) *Handler {
	return NewHandlerWithOptions(l, DefaultHandlerOptions())
}

// NewHandlerWithOptions creates a new handler instance with custom options.
func NewHandlerWithOptions(l *ledger.Ledger, opts NewHandlerOptions) *Handler {
	return &Handler{
		ledger:      l,
		maxBodySize: opts.MaxBodySize,
	}
}

// Routes mounts every ledger route on the given router.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/points", func(r chi.Router) {
		r.Get("/{wallet}", h.GetUserPoints)
		r.Post("/{wallet}/award", h.AwardPoints)
	})

	r.Get("/leaderboard", h.GetLeaderboard)

	r.Route("/referrals", func(r chi.Router) {
		r.Post("/{wallet}", h.CreateReferralLink)
		r.Post("/clicks/{code}", h.TrackReferralClick)
		r.Post("/conversions", h.ProcessReferralConversion)
	})

	r.Route("/claims", func(r chi.Router) {
		r.Get("/{wallet}", h.GetClaimablePoints)
		r.Post("/{wallet}", h.CreateClaim)
		r.Post("/{wallet}/redeem", h.RedeemClaim)
	})
}

// AwardPoints handles POST /points/{wallet}/award
func (h *Handler) AwardPoints(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	wallet := validation.SanitizeString(chi.URLParam(r, "wallet"))

	var req models.AwardPointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	if err := h.ledger.AwardPoints(r.Context(), wallet, req.Action, req.Metadata); err != nil {
		h.respondServiceError(w, err)
		return
	}

	record, err := h.ledger.GetUserPoints(r.Context(), wallet)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, record)
}

// GetUserPoints handles GET /points/{wallet}
func (h *Handler) GetUserPoints(w http.ResponseWriter, r *http.Request) {
	wallet := validation.SanitizeString(chi.URLParam(r, "wallet"))

	record, err := h.ledger.GetUserPoints(r.Context(), wallet)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, record)
}

// GetLeaderboard handles GET /leaderboard?limit=
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		parsed, err := strconv.Atoi(limitParam)
		if err != nil || parsed < 0 {
			h.respondError(w, http.StatusBadRequest, "invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	entries, err := h.ledger.GetLeaderboard(r.Context(), limit)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}

	h.respondJSON(w, http.StatusOK, entries)
}

// CreateReferralLink handles POST /referrals/{wallet}
func (h *Handler) CreateReferralLink(w http.ResponseWriter, r *http.Request) {
	wallet := validation.SanitizeString(chi.URLParam(r, "wallet"))

	link, err := h.ledger.GenerateReferralLink(r.Context(), wallet)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, link)
}

// TrackReferralClick handles POST /referrals/clicks/{code}
func (h *Handler) TrackReferralClick(w http.ResponseWriter, r *http.Request) {
	code := validation.SanitizeString(chi.URLParam(r, "code"))

	if err := h.ledger.TrackReferralClick(r.Context(), code); err != nil {
		h.respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ProcessReferralConversion handles POST /referrals/conversions
func (h *Handler) ProcessReferralConversion(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var req models.ReferralConversionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	req.ReferralCode = validation.SanitizeString(req.ReferralCode)
	req.WalletAddress = validation.SanitizeString(req.WalletAddress)

	if err := h.ledger.ProcessReferralConversion(r.Context(), req.ReferralCode, req.WalletAddress); err != nil {
		h.respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CreateClaim handles POST /claims/{wallet}
func (h *Handler) CreateClaim(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	wallet := validation.SanitizeString(chi.URLParam(r, "wallet"))

	var req models.CreateClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	grant, err := h.ledger.GenerateClaimablePoints(r.Context(), wallet, req.Points, req.ExpirationHours)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, grant)
}

// RedeemClaim handles POST /claims/{wallet}/redeem
func (h *Handler) RedeemClaim(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	wallet := validation.SanitizeString(chi.URLParam(r, "wallet"))

	var req models.RedeemClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	req.ClaimCode = validation.SanitizeString(req.ClaimCode)

	result, err := h.ledger.ClaimPoints(r.Context(), wallet, req.ClaimCode)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	// Claim failure is a normal outcome: still a 200, callers branch on
	// the result's reason.
	h.respondJSON(w, http.StatusOK, result)
}

// GetClaimablePoints handles GET /claims/{wallet}
func (h *Handler) GetClaimablePoints(w http.ResponseWriter, r *http.Request) {
	wallet := validation.SanitizeString(chi.URLParam(r, "wallet"))

	grants, err := h.ledger.GetClaimablePoints(r.Context(), wallet)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	if grants == nil {
		grants = []models.ClaimablePoints{}
	}

	h.respondJSON(w, http.StatusOK, grants)
}

// respondServiceError maps ledger errors to HTTP status codes.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	var verr *validation.ValidationError
	switch {
	case errors.As(err, &verr):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrReferralNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	default:
		h.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// respondJSON sends a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response with the given status code and message.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Error: message})
}
