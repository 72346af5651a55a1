package server

import (
	"encoding/hex"
	"io"
	"net/http"

	"github.com/fitaria/scale-api/internal/codec"
	"github.com/fitaria/scale-api/internal/registry"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// handleScaleValidate answers the scale's connectivity probe. It is
// stateless and carries no payload beyond the single expected byte.
func (h *httpHandler) handleScaleValidate(c *gin.Context) {
	c.Data(http.StatusOK, "text/plain", []byte("T"))
}

// handleScaleRegister matches the original's actual query contract:
// serialNumber (12 hex chars), token and ssid optional. A missing or
// malformed serialNumber falls back to a no-op acknowledgment; the
// scale only checks that the response body starts with "S".
func (h *httpHandler) handleScaleRegister(c *gin.Context) {
	serialNumber := c.Query("serialNumber")
	mac, err := parseSerialNumber(serialNumber)
	if err == nil {
		_, upsertErr := h.registry.Upsert(c.Request.Context(), registry.UpsertParams{
			MAC:              mac,
			AuthorizationTok: c.Query("token"),
			SSID:             c.Query("ssid"),
		})
		if upsertErr != nil {
			h.logger.Error("scale register upsert failed", zap.Error(upsertErr), zap.String("request_id", h.requestID(c)))
		}
	}
	c.Data(http.StatusOK, "text/plain", []byte("S\n"))
}

// handleScaleSetup is probed during initial WiFi provisioning, before
// the scale ever reaches /scale/upload. Nothing is persisted; the SSID
// and whether a custom password was supplied are logged for operator
// visibility, the password itself is not.
func (h *httpHandler) handleScaleSetup(c *gin.Context) {
	h.logger.Info("scale setup probe",
		zap.String("ssid", c.Query("ssid")),
		zap.Bool("has_custom_password", c.Query("custom_password") != ""),
		zap.String("request_id", h.requestID(c)))
	c.Data(http.StatusOK, "text/plain", []byte("OK"))
}

// handleScaleUpload runs the binary upload frame through the
// ingestion pipeline and returns the binary response frame. It answers
// 200 unless the request body cannot be read (400) or the store itself
// is unavailable (503): decode/validation failures are absorbed into a
// valid envelope.
func (h *httpHandler) handleScaleUpload(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.Warn("failed to read upload body", zap.Error(err), zap.String("request_id", h.requestID(c)))
		c.Status(http.StatusBadRequest)
		return
	}

	h.metrics.uploadsReceived.Inc()

	responseBytes, outcome, err := h.ingestion.Ingest(c.Request.Context(), body)
	if err != nil {
		h.logger.Error("ingestion failed", zap.Error(err), zap.String("request_id", h.requestID(c)))
		c.Status(http.StatusServiceUnavailable)
		return
	}

	if outcome.DecodeErrorKind != "" {
		h.metrics.decodeErrors.WithLabelValues(string(outcome.DecodeErrorKind)).Inc()
	}
	for _, kind := range outcome.ValidationIssueKinds {
		h.metrics.validationWarnings.WithLabelValues(string(kind)).Inc()
	}
	if outcome.MeasurementsInserted > 0 {
		h.metrics.measurementsIngested.Add(float64(outcome.MeasurementsInserted))
	}

	c.Data(http.StatusOK, "application/octet-stream", responseBytes)
}

// parseSerialNumber decodes a 12-hex-character serial (MAC lowercased,
// no separators) back into a MAC address.
func parseSerialNumber(serialNumber string) (codec.MAC, error) {
	raw, err := hex.DecodeString(serialNumber)
	if err != nil {
		return codec.MAC{}, err
	}
	return codec.ParseMAC(raw)
}
