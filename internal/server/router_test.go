package server

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fitaria/scale-api/internal/codec"
	"github.com/fitaria/scale-api/internal/ingestion"
	"github.com/fitaria/scale-api/internal/registry"
	"github.com/fitaria/scale-api/internal/userdirectory"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestHandler(t *testing.T) (http.Handler, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:server_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&registry.Scale{}, &userdirectory.Profile{}, &ingestion.Measurement{}, &ingestion.MeasurementConflict{}, &ingestion.RawUpload{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	clock := func() time.Time { return time.Unix(1705315900, 0).UTC() }
	registrySvc, err := registry.NewService(registry.ServiceConfig{Database: db, Clock: clock})
	if err != nil {
		t.Fatalf("failed to construct registry service: %v", err)
	}
	userDirectorySvc, err := userdirectory.NewService(userdirectory.ServiceConfig{Database: db, Clock: clock})
	if err != nil {
		t.Fatalf("failed to construct user directory service: %v", err)
	}
	ingestionSvc, err := ingestion.NewService(ingestion.ServiceConfig{
		Database:      db,
		Registry:      registrySvc,
		UserDirectory: userDirectorySvc,
		WeightUnit:    codec.UnitKilograms,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("failed to construct ingestion service: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Database:      db,
		Ingestion:     ingestionSvc,
		Registry:      registrySvc,
		UserDirectory: userDirectorySvc,
		MetricsReg:    prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("failed to build http handler: %v", err)
	}
	return handler, db
}

func TestScaleValidateReturnsSingleByteT(t *testing.T) {
	handler, _ := newTestHandler(t)
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/scale/validate", nil)
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if recorder.Body.String() != "T" {
		t.Fatalf("expected body %q, got %q", "T", recorder.Body.String())
	}
}

func TestScaleRegisterRecordsScaleFromSerialNumber(t *testing.T) {
	handler, db := newTestHandler(t)
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/scale/register?serialNumber=aabbccddeeff&token=abc123&ssid=homenet", nil)
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if recorder.Body.String() != "S\n" {
		t.Fatalf("unexpected body: %q", recorder.Body.String())
	}

	var scale registry.Scale
	if err := db.Where("mac_address = ?", "AA:BB:CC:DD:EE:FF").Take(&scale).Error; err != nil {
		t.Fatalf("expected scale row to be created from serial number: %v", err)
	}
	if scale.SSID != "homenet" {
		t.Fatalf("expected ssid to be recorded, got %q", scale.SSID)
	}
}

func TestScaleRegisterMissingSerialIsNoOp(t *testing.T) {
	handler, _ := newTestHandler(t)
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/scale/register", nil)
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK || recorder.Body.String() != "S\n" {
		t.Fatalf("expected a no-op acknowledgment, got %d %q", recorder.Code, recorder.Body.String())
	}
}

func TestScaleUploadRoundTrip(t *testing.T) {
	handler, db := newTestHandler(t)

	payload := codec.Encode(codec.UploadFrame{
		ProtocolVersion: 3,
		HeaderFirmware:  39,
		BatteryPercent:  85,
		MACAddress:      codec.MAC{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
		FirmwareVersion: 39,
		ScaleTimestamp:  1705315840,
		Measurements: []codec.Measurement{{
			MeasurementID: 1,
			Impedance:     520,
			WeightGrams:   75300,
			Timestamp:     1705315840,
			FatRaw1:       370,
			FatRaw2:       370,
		}},
	})

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/scale/upload", bytes.NewReader(payload))
	handler.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if recorder.Header().Get("Content-Type") != "application/octet-stream" {
		t.Fatalf("unexpected content type: %s", recorder.Header().Get("Content-Type"))
	}

	response, err := codec.DecodeResponse(recorder.Body.Bytes())
	if err != nil {
		t.Fatalf("response did not decode: %v", err)
	}
	if response.Status != codec.StatusOK {
		t.Fatalf("expected status OK, got %d", response.Status)
	}

	var measurements []ingestion.Measurement
	if err := db.Find(&measurements).Error; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(measurements) != 1 {
		t.Fatalf("expected 1 measurement row, got %d", len(measurements))
	}
}

func TestManagementAPIUsersLifecycle(t *testing.T) {
	handler, _ := newTestHandler(t)

	createRecorder := httptest.NewRecorder()
	createRequest := httptest.NewRequest(http.MethodPost, "/api/users?name=Alice&height_cm=165&age=30&gender=0", nil)
	handler.ServeHTTP(createRecorder, createRequest)
	if createRecorder.Code != http.StatusOK {
		t.Fatalf("expected 200 creating user, got %d: %s", createRecorder.Code, createRecorder.Body.String())
	}

	listRecorder := httptest.NewRecorder()
	listRequest := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	handler.ServeHTTP(listRecorder, listRequest)
	if listRecorder.Code != http.StatusOK {
		t.Fatalf("expected 200 listing users, got %d", listRecorder.Code)
	}

	deleteRecorder := httptest.NewRecorder()
	deleteRequest := httptest.NewRequest(http.MethodDelete, "/api/users/1", nil)
	handler.ServeHTTP(deleteRecorder, deleteRequest)
	if deleteRecorder.Code != http.StatusOK {
		t.Fatalf("expected 200 deleting user, got %d: %s", deleteRecorder.Code, deleteRecorder.Body.String())
	}

	missingRecorder := httptest.NewRecorder()
	missingRequest := httptest.NewRequest(http.MethodDelete, "/api/users/999", nil)
	handler.ServeHTTP(missingRecorder, missingRequest)
	if missingRecorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 deleting unknown user, got %d", missingRecorder.Code)
	}
}

func TestManagementAPICreateUserAppliesWeightBounds(t *testing.T) {
	handler, db := newTestHandler(t)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/api/users?name=Bob&height_cm=180&age=35&gender=1&min_weight_kg=50&max_weight_kg=110", nil)
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 creating user, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var profile userdirectory.Profile
	if err := db.Where("display_name = ?", "Bob").Take(&profile).Error; err != nil {
		t.Fatalf("expected profile row to exist: %v", err)
	}
	if profile.MinWeightG != 50000 || profile.MaxWeightG != 110000 {
		t.Fatalf("expected weight bounds 50000/110000 grams, got %d/%d", profile.MinWeightG, profile.MaxWeightG)
	}
}

func TestManagementAPIHealth(t *testing.T) {
	handler, _ := newTestHandler(t)
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
}

func TestNoRouteReturnsOK(t *testing.T) {
	handler, _ := newTestHandler(t)
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/totally/unknown/path", nil)
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK || recorder.Body.String() != "OK" {
		t.Fatalf("expected 200 OK body, got %d %q", recorder.Code, recorder.Body.String())
	}
}

