package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/fitaria/scale-api/internal/ingestion"
	"github.com/fitaria/scale-api/internal/userdirectory"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func (h *httpHandler) handleHealth(c *gin.Context) {
	dbStatus := "ok"
	if sqlDB, err := h.db.DB(); err != nil || sqlDB.Ping() != nil {
		dbStatus = "error"
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "db": dbStatus})
}

func (h *httpHandler) handleListScales(c *gin.Context) {
	scales, err := h.registry.List(c.Request.Context())
	if err != nil {
		h.respondError(c, http.StatusServiceUnavailable, "store_unavailable", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scales": scales})
}

// measurementView adds read-time derived fields (weight units,
// body-fat percent) on top of the stored measurement row; these are
// never persisted, per §3's "grams is canonical" invariant.
type measurementView struct {
	ID              int64    `json:"id"`
	ScaleMAC        string   `json:"scale_mac"`
	MeasurementID   uint32   `json:"measurement_id"`
	WeightGrams     uint32   `json:"weight_grams"`
	WeightKilograms float64  `json:"weight_kilograms"`
	WeightPounds    float64  `json:"weight_pounds"`
	Impedance       uint16   `json:"impedance"`
	BodyFatPercent  *float32 `json:"body_fat_percent"`
	UserSlot        uint8    `json:"user_slot"`
	IsGuest         bool     `json:"is_guest"`
	Timestamp       uint32   `json:"timestamp"`
	ReceivedAt      string   `json:"received_at"`
}

func toMeasurementView(m ingestion.Measurement) measurementView {
	view := measurementView{
		ID:              m.ID,
		ScaleMAC:        m.ScaleMAC,
		MeasurementID:   m.MeasurementID,
		WeightGrams:     m.WeightGrams,
		WeightKilograms: float64(m.WeightGrams) / 1000,
		WeightPounds:    float64(m.WeightGrams) / 1000 * 2.20462,
		Impedance:       m.Impedance,
		UserSlot:        m.UserSlot,
		IsGuest:         m.IsGuest,
		Timestamp:       m.Timestamp,
		ReceivedAt:      m.ReceivedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if percent, ok := bodyFatPercent(m); ok {
		view.BodyFatPercent = &percent
	}
	return view
}

func bodyFatPercent(m ingestion.Measurement) (float32, bool) {
	if (m.FatRaw1 == 0 && m.FatRaw2 == 0) || m.Impedance == 0 {
		return 0, false
	}
	return (float32(m.FatRaw1) + float32(m.FatRaw2)) / 2 / 10, true
}

func (h *httpHandler) handleListMeasurements(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context()).Model(&ingestion.Measurement{}).Order("timestamp DESC")
	if scaleMAC := c.Query("scale_mac"); scaleMAC != "" {
		query = query.Where("scale_mac = ?", scaleMAC)
	}
	if userSlot := c.Query("user_id"); userSlot != "" {
		slot, err := strconv.ParseUint(userSlot, 10, 8)
		if err != nil {
			h.respondError(c, http.StatusBadRequest, "bad_request", errors.New("user_id must be a small integer slot index"))
			return
		}
		query = query.Where("user_slot = ?", slot)
	}

	limit := parsePositiveIntOrDefault(c.Query("limit"), 50)
	offset := parsePositiveIntOrDefault(c.Query("offset"), 0)

	var measurements []ingestion.Measurement
	if err := query.Limit(limit).Offset(offset).Find(&measurements).Error; err != nil {
		h.respondError(c, http.StatusServiceUnavailable, "store_unavailable", err)
		return
	}

	views := make([]measurementView, 0, len(measurements))
	for _, m := range measurements {
		views = append(views, toMeasurementView(m))
	}
	c.JSON(http.StatusOK, gin.H{"measurements": views})
}

func (h *httpHandler) handleLatestMeasurement(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context()).Model(&ingestion.Measurement{}).Order("timestamp DESC")
	if userSlot := c.Query("user_id"); userSlot != "" {
		slot, err := strconv.ParseUint(userSlot, 10, 8)
		if err != nil {
			h.respondError(c, http.StatusBadRequest, "bad_request", errors.New("user_id must be a small integer slot index"))
			return
		}
		query = query.Where("user_slot = ?", slot)
	}

	var measurement ingestion.Measurement
	err := query.Take(&measurement).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		h.respondError(c, http.StatusNotFound, "not_found", errors.New("no measurements recorded"))
		return
	}
	if err != nil {
		h.respondError(c, http.StatusServiceUnavailable, "store_unavailable", err)
		return
	}
	c.JSON(http.StatusOK, toMeasurementView(measurement))
}

func (h *httpHandler) handleListUsers(c *gin.Context) {
	profiles, err := h.userDirectory.List(c.Request.Context())
	if err != nil {
		h.respondError(c, http.StatusServiceUnavailable, "store_unavailable", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": profiles})
}

func (h *httpHandler) handleCreateUser(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		h.respondError(c, http.StatusBadRequest, "bad_request", errors.New("name is required"))
		return
	}
	heightCM, err := strconv.ParseFloat(c.Query("height_cm"), 64)
	if err != nil {
		h.respondError(c, http.StatusBadRequest, "bad_request", errors.New("height_cm must be numeric"))
		return
	}
	age, err := strconv.ParseUint(c.Query("age"), 10, 8)
	if err != nil {
		h.respondError(c, http.StatusBadRequest, "bad_request", errors.New("age must be a small integer"))
		return
	}
	gender, err := strconv.ParseUint(c.Query("gender"), 10, 8)
	if err != nil {
		h.respondError(c, http.StatusBadRequest, "bad_request", errors.New("gender must be 0 or 1"))
		return
	}

	profile, err := h.userDirectory.Create(c.Request.Context(), userdirectory.CreateParams{
		DisplayName: name,
		HeightMM:    uint16(heightCM * 10),
		Age:         uint8(age),
		Gender:      uint8(gender),
		MinWeightG:  parseWeightKGQueryOrZero(c.Query("min_weight_kg")),
		MaxWeightG:  parseWeightKGQueryOrZero(c.Query("max_weight_kg")),
	})
	if errors.Is(err, userdirectory.ErrNoFreeSlot) {
		h.respondError(c, http.StatusBadRequest, "no_free_slot", err)
		return
	}
	if err != nil {
		h.respondError(c, http.StatusServiceUnavailable, "store_unavailable", err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *httpHandler) handleDeleteUser(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.respondError(c, http.StatusBadRequest, "bad_request", errors.New("id must be numeric"))
		return
	}
	err = h.userDirectory.Delete(c.Request.Context(), id)
	if errors.Is(err, userdirectory.ErrNotFound) {
		h.respondError(c, http.StatusNotFound, "not_found", err)
		return
	}
	if err != nil {
		h.respondError(c, http.StatusServiceUnavailable, "store_unavailable", err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *httpHandler) handleListRawUploads(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context()).Model(&ingestion.RawUpload{}).Order("received_at DESC")
	if c.Query("errors_only") == "true" {
		query = query.Where("parse_ok = ?", false)
	}

	var rawUploads []ingestion.RawUpload
	if err := query.Limit(parsePositiveIntOrDefault(c.Query("limit"), 50)).Find(&rawUploads).Error; err != nil {
		h.respondError(c, http.StatusServiceUnavailable, "store_unavailable", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"raw_uploads": rawUploads})
}

func (h *httpHandler) respondError(c *gin.Context, status int, kind string, err error) {
	h.logger.Warn("management api error",
		zap.String("kind", kind), zap.Error(err), zap.String("request_id", h.requestID(c)))
	c.JSON(status, gin.H{"error": kind, "detail": err.Error()})
}

// parseWeightKGQueryOrZero parses an optional kilograms query param into
// grams, defaulting to 0 (no bound) when absent or unparseable.
func parseWeightKGQueryOrZero(raw string) uint32 {
	if raw == "" {
		return 0
	}
	weightKG, err := strconv.ParseFloat(raw, 64)
	if err != nil || weightKG < 0 {
		return 0
	}
	return uint32(weightKG * 1000)
}

func parsePositiveIntOrDefault(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
