package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	apperrors "github.com/the-medo/swu-collection-sub005/internal/errors"
	"github.com/the-medo/swu-collection-sub005/internal/models"
	"github.com/the-medo/swu-collection-sub005/internal/services"
)

// PriceHandler exposes the card price endpoints.
type PriceHandler struct {
	service   services.CardPriceService
	ingestion services.IngestionService
	logger    *zap.Logger
}

func NewPriceHandler(service services.CardPriceService, ingestion services.IngestionService, logger *zap.Logger) *PriceHandler {
	return &PriceHandler{service: service, ingestion: ingestion, logger: logger}
}

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

// writeError maps service errors onto the API's error taxonomy. An
// unsupported-source failure is deliberately a success-shaped payload so
// clients neither retry nor alarm.
func (h *PriceHandler) writeError(w http.ResponseWriter, err error) {
	var validation *apperrors.ErrValidation
	var notFound *apperrors.ErrNotFound
	var unsupported *apperrors.ErrUnsupportedSource

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: validation.Error()})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, envelope{Success: false, Message: notFound.Error()})
	case errors.As(err, &unsupported):
		writeJSON(w, http.StatusOK, envelope{Success: false, Message: unsupported.Error()})
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, envelope{Success: false, Message: "internal error"})
	}
}

type bulkLoadRequest struct {
	SourceType string   `json:"sourceType"`
	VariantIDs []string `json:"variantIds"`
}

// POST /card-prices/bulk-load
// Body {sourceType, variantIds[]}; missing ids are simply absent from data.
func (h *PriceHandler) HandleBulkLoad(w http.ResponseWriter, r *http.Request) {
	var req bulkLoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, &apperrors.ErrValidation{Field: "body", Message: "malformed JSON"})
		return
	}
	source, err := models.ParseSourceType(req.SourceType)
	if err != nil {
		h.writeError(w, &apperrors.ErrValidation{Field: "sourceType", Message: err.Error()})
		return
	}

	rows, err := h.service.BulkLoad(r.Context(), source, req.VariantIDs)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeData(w, rows)
}

type createSourceRequest struct {
	CardID          string  `json:"cardId"`
	VariantID       string  `json:"variantId"`
	SourceType      string  `json:"sourceType"`
	SourceLink      string  `json:"sourceLink"`
	SourceProductID *string `json:"sourceProductId,omitempty"`
}

// POST /card-prices/create-source (admin)
func (h *PriceHandler) HandleCreateSource(w http.ResponseWriter, r *http.Request) {
	var req createSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, &apperrors.ErrValidation{Field: "body", Message: "malformed JSON"})
		return
	}
	source, err := models.ParseSourceType(req.SourceType)
	if err != nil {
		h.writeError(w, &apperrors.ErrValidation{Field: "sourceType", Message: err.Error()})
		return
	}

	row, err := h.service.CreateSource(r.Context(), &models.CardPrice{
		CardID:          req.CardID,
		VariantID:       req.VariantID,
		SourceType:      source,
		SourceLink:      req.SourceLink,
		SourceProductID: req.SourceProductID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeData(w, row)
}

// identityParams reads the full identity triple from the query string.
func (h *PriceHandler) identityParams(r *http.Request) (cardID, variantID string, source models.SourceType, err error) {
	q := r.URL.Query()
	cardID = q.Get("cardId")
	variantID = q.Get("variantId")
	if cardID == "" || variantID == "" {
		return "", "", "", &apperrors.ErrValidation{Field: "identity", Message: "cardId and variantId are required"}
	}
	source, perr := models.ParseSourceType(q.Get("sourceType"))
	if perr != nil {
		return "", "", "", &apperrors.ErrValidation{Field: "sourceType", Message: perr.Error()}
	}
	return cardID, variantID, source, nil
}

// GET /card-prices and DELETE /card-prices, by full identity.
func (h *PriceHandler) HandleCardPrice(w http.ResponseWriter, r *http.Request) {
	cardID, variantID, source, err := h.identityParams(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		row, err := h.service.Get(r.Context(), cardID, variantID, source)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeData(w, row)
	case http.MethodDelete:
		if err := h.service.Delete(r.Context(), cardID, variantID, source); err != nil {
			h.writeError(w, err)
			return
		}
		writeData(w, nil)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// GET /card-prices/history?cardId=&variantId=&sourceType=&days=
func (h *PriceHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := &models.CardPriceHistoryFilter{
		CardID:    q.Get("cardId"),
		VariantID: q.Get("variantId"),
	}
	if st := q.Get("sourceType"); st != "" {
		source, err := models.ParseSourceType(st)
		if err != nil {
			h.writeError(w, &apperrors.ErrValidation{Field: "sourceType", Message: err.Error()})
			return
		}
		filter.SourceType = &source
	}
	if daysStr := q.Get("days"); daysStr != "" {
		days, err := strconv.Atoi(daysStr)
		if err != nil {
			h.writeError(w, &apperrors.ErrValidation{Field: "days", Message: "must be an integer"})
			return
		}
		filter.Days = days
	}

	rows, err := h.service.History(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeData(w, rows)
}

type fetchPriceRequest struct {
	CardID     string `json:"cardId"`
	VariantID  string `json:"variantId"`
	SourceType string `json:"sourceType"`
}

// POST /card-prices/fetch-price for an immediate single-item refresh. Sources
// without on-demand refresh reply {success:false} with HTTP 200.
func (h *PriceHandler) HandleFetchPrice(w http.ResponseWriter, r *http.Request) {
	var req fetchPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, &apperrors.ErrValidation{Field: "body", Message: "malformed JSON"})
		return
	}
	source, err := models.ParseSourceType(req.SourceType)
	if err != nil {
		h.writeError(w, &apperrors.ErrValidation{Field: "sourceType", Message: err.Error()})
		return
	}

	row, err := h.service.FetchPriceNow(r.Context(), req.CardID, req.VariantID, source)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeData(w, row)
}

type recomputeRequest struct {
	SourceType string `json:"sourceType"`
	Force      bool   `json:"force"`
}

// POST /card-prices/recompute (admin) runs a full ingestion pass for one
// source and returns the refreshed rows.
func (h *PriceHandler) HandleRecompute(w http.ResponseWriter, r *http.Request) {
	var req recomputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, &apperrors.ErrValidation{Field: "body", Message: "malformed JSON"})
		return
	}
	source, err := models.ParseSourceType(req.SourceType)
	if err != nil {
		h.writeError(w, &apperrors.ErrValidation{Field: "sourceType", Message: err.Error()})
		return
	}

	result, err := h.ingestion.RunIngestion(r.Context(), source, req.Force)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeData(w, result)
}
