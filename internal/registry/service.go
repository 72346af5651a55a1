// Package registry tracks scale device identity: upsert on contact,
// firmware, battery, last-seen, authorization code, and SSID.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fitaria/scale-api/internal/codec"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("registry: database handle is required")
	noOpLogger         = zap.NewNop()
)

const (
	opServiceNew = "registry.service.new"
	opUpsert     = "registry.upsert"
	opGet        = "registry.get"
	opList       = "registry.list"
)

// ServiceError carries a dotted operation code alongside the
// underlying cause, matching the shape used across the rest of the
// service layer.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error { return e.err }
func (e *ServiceError) Code() string  { return e.code }

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// ServiceConfig describes the dependencies required to construct a
// registry Service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages the scales table.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs a registry Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// UpsertParams describes the fields observed on a scale contact.
type UpsertParams struct {
	MAC             codec.MAC
	FirmwareVersion uint8
	ProtocolVersion uint8
	BatteryPercent  uint8
	SSID            string
	AuthCodeHex     string
	AuthorizationTok string
}

// Upsert creates or updates the scale row for the given MAC using the
// service's own database handle.
func (s *Service) Upsert(ctx context.Context, params UpsertParams) (Scale, error) {
	return s.UpsertTx(s.db.WithContext(ctx), params)
}

// UpsertTx creates or updates the scale row for the given MAC within
// the caller-supplied transaction, so the ingestion pipeline can
// include the upsert in its own transactional boundary.
func (s *Service) UpsertTx(tx *gorm.DB, params UpsertParams) (Scale, error) {
	if tx == nil {
		s.logError(opUpsert, "missing_database", errMissingDatabase)
		return Scale{}, newServiceError(opUpsert, "missing_database", errMissingDatabase)
	}

	now := s.clock().UTC()
	macString := params.MAC.String()

	var existing Scale
	err := tx.Where("mac_address = ?", macString).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		scale := Scale{
			MACAddress:       macString,
			Serial:           params.MAC.Serial(),
			FirmwareVersion:  params.FirmwareVersion,
			ProtocolVersion:  params.ProtocolVersion,
			BatteryPercent:   clampBattery(params.BatteryPercent),
			SSID:             params.SSID,
			AuthCodeHex:      params.AuthCodeHex,
			AuthorizationTok: params.AuthorizationTok,
			FirstSeenAt:      now,
			LastSeenAt:       now,
		}
		if err := tx.Create(&scale).Error; err != nil {
			s.logError(opUpsert, "create_failed", err, zap.String("mac", macString))
			return Scale{}, newServiceError(opUpsert, "create_failed", err)
		}
		return scale, nil
	}
	if err != nil {
		s.logError(opUpsert, "lookup_failed", err, zap.String("mac", macString))
		return Scale{}, newServiceError(opUpsert, "lookup_failed", err)
	}

	existing.LastSeenAt = now
	if params.FirmwareVersion != 0 {
		existing.FirmwareVersion = params.FirmwareVersion
	}
	if params.ProtocolVersion != 0 {
		existing.ProtocolVersion = params.ProtocolVersion
	}
	if params.BatteryPercent != 0 {
		existing.BatteryPercent = clampBattery(params.BatteryPercent)
	}
	if params.SSID != "" {
		existing.SSID = params.SSID
	}
	if params.AuthCodeHex != "" {
		existing.AuthCodeHex = params.AuthCodeHex
	}
	if params.AuthorizationTok != "" {
		existing.AuthorizationTok = params.AuthorizationTok
	}
	if err := tx.Save(&existing).Error; err != nil {
		s.logError(opUpsert, "update_failed", err, zap.String("mac", macString))
		return Scale{}, newServiceError(opUpsert, "update_failed", err)
	}
	return existing, nil
}

// Get returns the scale row for the given MAC, or
// gorm.ErrRecordNotFound if none exists.
func (s *Service) Get(ctx context.Context, mac codec.MAC) (Scale, error) {
	var scale Scale
	err := s.db.WithContext(ctx).Where("mac_address = ?", mac.String()).Take(&scale).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logError(opGet, "lookup_failed", err, zap.String("mac", mac.String()))
			return Scale{}, newServiceError(opGet, "lookup_failed", err)
		}
		return Scale{}, err
	}
	return scale, nil
}

// List returns every registered scale.
func (s *Service) List(ctx context.Context) ([]Scale, error) {
	var scales []Scale
	if err := s.db.WithContext(ctx).Order("mac_address ASC").Find(&scales).Error; err != nil {
		s.logError(opList, "query_failed", err)
		return nil, newServiceError(opList, "query_failed", err)
	}
	return scales, nil
}

func clampBattery(percent uint8) uint8 {
	if percent > 100 {
		return 100
	}
	return percent
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{zap.String("operation", operation), zap.String("reason", reason)}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	logger := s.logger
	if logger == nil {
		logger = noOpLogger
	}
	logger.Error("registry service error", attrs...)
}
