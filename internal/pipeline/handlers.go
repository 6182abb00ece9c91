package pipeline

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mwilder/fraudscore/internal/ledger"
	"github.com/mwilder/fraudscore/internal/metrics"
	"github.com/mwilder/fraudscore/internal/model"
	"github.com/mwilder/fraudscore/internal/validation"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// Handler provides the HTTP endpoints of the scoring service.
type Handler struct {
	service *Service
}

// NewHandler creates a new pipeline handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up the scoring routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/transactions", h.IngestTransaction)
	r.GET("/latest-raw", h.LatestRaw)
	r.POST("/predict-latest", h.PredictLatest)
	r.GET("/latest-prediction", h.LatestPrediction)
	r.GET("/history", h.History)
}

// IngestTransactionRequest mirrors the raw transaction schema. Timestamps
// use RFC 3339; trans_date_trans_time and dob may be omitted, which makes
// the row unprocessable but still ingestible.
type IngestTransactionRequest struct {
	TransDateTransTime *time.Time `json:"trans_date_trans_time"`
	CCNum              int64      `json:"cc_num" binding:"required"`
	Merchant           string     `json:"merchant" binding:"required"`
	Category           string     `json:"category" binding:"required"`
	Amt                float64    `json:"amt"`
	First              string     `json:"first"`
	Last               string     `json:"last"`
	Gender             string     `json:"gender"`
	Street             string     `json:"street"`
	City               string     `json:"city"`
	State              string     `json:"state"`
	Zip                int        `json:"zip"`
	Lat                float64    `json:"lat"`
	Long               float64    `json:"long"`
	CityPop            int64      `json:"city_pop"`
	Job                string     `json:"job"`
	DOB                *time.Time `json:"dob"`
	TransNum           string     `json:"trans_num" binding:"required"`
	UnixTime           int64      `json:"unix_time"`
	MerchLat           float64    `json:"merch_lat"`
	MerchLong          float64    `json:"merch_long"`
}

// IngestTransaction handles POST /transactions
func (h *Handler) IngestTransaction(c *gin.Context) {
	var req IngestTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	tx := &ledger.RawTransaction{
		CCNum:     req.CCNum,
		Merchant:  validation.SanitizeString(req.Merchant, validation.MaxStringLength),
		Category:  validation.SanitizeString(req.Category, validation.MaxStringLength),
		Amt:       req.Amt,
		First:     validation.SanitizeString(req.First, validation.MaxStringLength),
		Last:      validation.SanitizeString(req.Last, validation.MaxStringLength),
		Gender:    req.Gender,
		Street:    validation.SanitizeString(req.Street, validation.MaxStringLength),
		City:      validation.SanitizeString(req.City, validation.MaxStringLength),
		State:     req.State,
		Zip:       req.Zip,
		Lat:       req.Lat,
		Long:      req.Long,
		CityPop:   req.CityPop,
		Job:       validation.SanitizeString(req.Job, validation.MaxStringLength),
		TransNum:  req.TransNum,
		UnixTime:  req.UnixTime,
		MerchLat:  req.MerchLat,
		MerchLong: req.MerchLong,
	}
	if req.TransDateTransTime != nil {
		tx.TransDateTransTime = *req.TransDateTransTime
	}
	if req.DOB != nil {
		tx.DOB = *req.DOB
	}

	if errs := validation.CheckRawTransaction(tx); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"details": errs,
		})
		return
	}

	if err := h.service.Store().InsertRaw(c.Request.Context(), tx); err != nil {
		if errors.Is(err, ledger.ErrDuplicateTransaction) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "duplicate_transaction",
				"message": "A transaction with this trans_num was already ingested",
			})
			return
		}
		storageUnavailable(c, err)
		return
	}

	metrics.IngestedTransactionsTotal.Inc()
	c.JSON(http.StatusCreated, gin.H{
		"id":        tx.ID,
		"trans_num": tx.TransNum,
	})
}

// LatestRaw handles GET /latest-raw. Mirrors the original behavior of
// returning an empty object when nothing has been ingested yet.
func (h *Handler) LatestRaw(c *gin.Context) {
	raw, err := h.service.Store().LatestRaw(c.Request.Context())
	if errors.Is(err, ledger.ErrNotFound) {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	if err != nil {
		storageUnavailable(c, err)
		return
	}
	c.JSON(http.StatusOK, raw)
}

// PredictLatest handles POST /predict-latest
func (h *Handler) PredictLatest(c *gin.Context) {
	pred, err := h.service.RunOnce(c.Request.Context())
	if err != nil {
		var malformed *MalformedError
		switch {
		case errors.Is(err, ErrNoNewTransaction):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "no_new_transaction",
				"message": "There is no new transaction.",
			})
		case errors.Is(err, model.ErrModelUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "model_unavailable",
				"message": "Model can't be loaded. Make sure the model artifact exists.",
			})
		case errors.As(err, &malformed):
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":     "malformed_transaction",
				"trans_num": malformed.TransNum,
				"message":   malformed.Error(),
			})
		case errors.Is(err, ledger.ErrAlreadyScored):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "already_scored",
				"message": "A concurrent request scored this transaction first",
			})
		default:
			storageUnavailable(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"prediction":    pred.Prediction,
		"prediction_id": pred.ID,
		"trans_num":     pred.TransNum,
	})
}

// LatestPrediction handles GET /latest-prediction
func (h *Handler) LatestPrediction(c *gin.Context) {
	pred, err := h.service.Store().LatestPrediction(c.Request.Context())
	if errors.Is(err, ledger.ErrNotFound) {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	if err != nil {
		storageUnavailable(c, err)
		return
	}
	c.JSON(http.StatusOK, pred)
}

// History handles GET /history?limit=N
func (h *Handler) History(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_limit",
				"message": "limit must be a positive integer",
			})
			return
		}
		limit = min(parsed, maxHistoryLimit)
	}

	preds, err := h.service.Store().ListPredictions(c.Request.Context(), limit)
	if err != nil {
		storageUnavailable(c, err)
		return
	}
	if preds == nil {
		preds = []*ledger.Prediction{}
	}
	c.JSON(http.StatusOK, gin.H{
		"count":       len(preds),
		"predictions": preds,
	})
}

func storageUnavailable(c *gin.Context, err error) {
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"error":   "storage_unavailable",
		"message": "Storage error: " + err.Error(),
	})
}
