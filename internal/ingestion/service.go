// Package ingestion orchestrates a single scale upload end to end:
// decode, validate, persist, and build the binary response, all
// inside one database transaction.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fitaria/scale-api/internal/codec"
	"github.com/fitaria/scale-api/internal/registry"
	"github.com/fitaria/scale-api/internal/userdirectory"
	"github.com/fitaria/scale-api/internal/validate"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase      = errors.New("ingestion: database handle is required")
	errMissingRegistry      = errors.New("ingestion: registry service is required")
	errMissingUserDirectory = errors.New("ingestion: user directory service is required")
	noOpLogger              = zap.NewNop()
)

const (
	opServiceNew = "ingestion.service.new"
	opIngest     = "ingestion.ingest"
)

// ServiceError carries a dotted operation code alongside the cause,
// matching the shape used throughout the rest of the service layer.
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

// ServiceConfig describes the dependencies required to construct an
// ingestion Service.
type ServiceConfig struct {
	Database      *gorm.DB
	Registry      *registry.Service
	UserDirectory *userdirectory.Service
	WeightUnit    codec.WeightUnit
	Clock         func() time.Time
	Logger        *zap.Logger
}

// Service runs the upload pipeline described in the ingestion
// component of the system: accept bytes, decode, validate, persist,
// and build the response.
type Service struct {
	db            *gorm.DB
	registry      *registry.Service
	userDirectory *userdirectory.Service
	weightUnit    codec.WeightUnit
	clock         func() time.Time
	logger        *zap.Logger
}

// NewService constructs an ingestion Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Registry == nil {
		return nil, newServiceError(opServiceNew, "missing_registry", errMissingRegistry)
	}
	if cfg.UserDirectory == nil {
		return nil, newServiceError(opServiceNew, "missing_user_directory", errMissingUserDirectory)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:            cfg.Database,
		registry:      cfg.Registry,
		userDirectory: cfg.UserDirectory,
		weightUnit:    cfg.WeightUnit,
		clock:         clock,
		logger:        logger,
	}, nil
}

// Outcome summarizes what happened during one Ingest call, for the
// HTTP adapter's metrics and access logging. It carries no
// information the scale itself sees; the raw upload row is the
// durable record.
type Outcome struct {
	DecodeErrorKind      codec.DecodeErrorKind
	ValidationIssueKinds []validate.IssueKind
	CRCMismatch          bool
	MeasurementsInserted int
	ConflictsDetected    int
}

// Ingest runs one upload through the full pipeline and returns the
// encoded response frame. A non-nil error here means the store itself
// is unavailable; every other failure mode (bad CRC, bad frame,
// out-of-range measurements) is absorbed into a valid response and a
// flagged raw-upload row, per the protocol's "the scale must always
// get a response" requirement.
func (s *Service) Ingest(ctx context.Context, requestBody []byte) ([]byte, Outcome, error) {
	now := s.clock().UTC()
	bestEffortMAC, _ := codec.ExtractMACBestEffort(requestBody)

	var responseBytes []byte
	var outcome Outcome
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rawUpload := RawUpload{
			ScaleMAC:    bestEffortMAC.String(),
			ReceivedAt:  now,
			RequestBody: append([]byte{}, requestBody...),
			ParseOK:     false,
		}
		if bestEffortMAC.IsZero() {
			rawUpload.ScaleMAC = ""
		}
		if err := tx.Create(&rawUpload).Error; err != nil {
			s.logError(opIngest, "raw_upload_insert_failed", err)
			return newServiceError(opIngest, "raw_upload_insert_failed", err)
		}

		frame, decodeErr := codec.Decode(requestBody)
		if decodeErr != nil {
			var de *codec.DecodeError
			if errors.As(decodeErr, &de) {
				outcome.DecodeErrorKind = de.Kind
			}
			return s.finishWithEmptyResponse(tx, &rawUpload, now, decodeErr, &responseBytes)
		}

		result := validate.Frame(frame, now)
		outcome.CRCMismatch = frame.CRCMismatch

		scale, err := s.registry.UpsertTx(tx, registry.UpsertParams{
			MAC:             frame.MACAddress,
			FirmwareVersion: frame.FirmwareVersion,
			ProtocolVersion: frame.ProtocolVersion,
			BatteryPercent:  result.BatteryPercent,
			AuthCodeHex:     frame.AuthCodeHex(),
		})
		if err != nil {
			s.logError(opIngest, "registry_upsert_failed", err, zap.String("mac", frame.MACAddress.String()))
			return err
		}

		flags := make([]string, 0, len(result.Issues)+1)
		if frame.CRCMismatch {
			flags = append(flags, "crc_mismatch")
		}
		for _, issue := range result.Issues {
			flags = append(flags, issue.String())
			outcome.ValidationIssueKinds = append(outcome.ValidationIssueKinds, issue.Kind)
		}

		for _, measurement := range result.Measurements {
			inserted, conflicted, err := s.insertMeasurementIfAbsent(tx, scale.MACAddress, measurement, now)
			if err != nil {
				s.logError(opIngest, "measurement_insert_failed", err,
					zap.String("mac", scale.MACAddress), zap.Uint32("measurement_id", measurement.MeasurementID))
				return err
			}
			switch {
			case conflicted:
				flags = append(flags, fmt.Sprintf("constraint_conflict:%d", measurement.MeasurementID))
				outcome.ConflictsDetected++
			case inserted:
				outcome.MeasurementsInserted++
			}
		}

		slots, err := s.userDirectory.ListOrderedTx(tx)
		if err != nil {
			s.logError(opIngest, "user_directory_list_failed", err)
			return err
		}

		response := codec.ResponseFrame{
			ServerTimestamp: uint32(now.Unix()),
			Unit:            s.weightUnit,
			Status:          codec.StatusOK,
			Profiles:        slots,
		}
		encoded := codec.EncodeResponse(response)

		rawUpload.ScaleMAC = scale.MACAddress
		rawUpload.ParseOK = true
		rawUpload.ErrorMessage = strings.Join(flags, ",")
		rawUpload.ResponseBody = encoded
		if err := tx.Save(&rawUpload).Error; err != nil {
			s.logError(opIngest, "raw_upload_update_failed", err)
			return newServiceError(opIngest, "raw_upload_update_failed", err)
		}

		responseBytes = encoded
		return nil
	})
	if txErr != nil {
		return nil, outcome, txErr
	}
	return responseBytes, outcome, nil
}

// finishWithEmptyResponse handles short_frame/bad_protocol_version/
// bad_measurement_count: the scale still needs a well-formed response
// envelope with status OK and an empty user list, even though nothing
// else was persisted for this request beyond the raw upload row.
func (s *Service) finishWithEmptyResponse(tx *gorm.DB, rawUpload *RawUpload, now time.Time, decodeErr error, out *[]byte) error {
	var emptyProfiles [8]codec.ProfileSlot
	response := codec.ResponseFrame{
		ServerTimestamp: uint32(now.Unix()),
		Unit:            s.weightUnit,
		Status:          codec.StatusOK,
		Profiles:        emptyProfiles,
	}
	encoded := codec.EncodeResponse(response)

	rawUpload.ParseOK = false
	rawUpload.ErrorMessage = decodeErr.Error()
	rawUpload.ResponseBody = encoded
	if err := tx.Save(rawUpload).Error; err != nil {
		s.logError(opIngest, "raw_upload_update_failed", err)
		return newServiceError(opIngest, "raw_upload_update_failed", err)
	}
	*out = encoded
	return nil
}

// insertMeasurementIfAbsent inserts a measurement row, treating a
// unique-constraint hit on (scale_mac, measurement_id) as success: if
// the stored row's decoded fields (weight, impedance, fat raws,
// covariance, timestamp, user slot) all match it is a harmless replay,
// and if any differs a conflict row is logged but the original is
// kept. A measurement's reserved trailing bytes are not stored, so two
// uploads that differ only in those bytes count as a replay. The
// two return values report whether a new row was inserted and whether
// a conflict was detected; at most one is ever true.
func (s *Service) insertMeasurementIfAbsent(tx *gorm.DB, scaleMAC string, measurement codec.Measurement, now time.Time) (inserted bool, conflicted bool, err error) {
	row := Measurement{
		ScaleMAC:      scaleMAC,
		MeasurementID: measurement.MeasurementID,
		WeightGrams:   measurement.WeightGrams,
		Impedance:     measurement.Impedance,
		FatRaw1:       measurement.FatRaw1,
		FatRaw2:       measurement.FatRaw2,
		Covariance:    measurement.Covariance,
		Timestamp:     measurement.Timestamp,
		UserSlot:      measurement.UserSlot,
		IsGuest:       measurement.IsGuest(),
		ReceivedAt:    now,
	}

	createResult := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if createResult.Error != nil {
		return false, false, newServiceError(opIngest, "measurement_create_failed", createResult.Error)
	}
	if createResult.RowsAffected > 0 {
		return true, false, nil
	}

	var existing Measurement
	lookupErr := tx.Where("scale_mac = ? AND measurement_id = ?", scaleMAC, measurement.MeasurementID).Take(&existing).Error
	if lookupErr != nil {
		return false, false, newServiceError(opIngest, "measurement_lookup_failed", lookupErr)
	}
	if measurementsEqual(existing, row) {
		return false, false, nil
	}

	conflict := MeasurementConflict{
		ScaleMAC:      scaleMAC,
		MeasurementID: measurement.MeasurementID,
		DetectedAt:    now,
		Detail:        fmt.Sprintf("incoming weight_grams=%d impedance=%d timestamp=%d differs from stored weight_grams=%d impedance=%d timestamp=%d", row.WeightGrams, row.Impedance, row.Timestamp, existing.WeightGrams, existing.Impedance, existing.Timestamp),
	}
	if err := tx.Create(&conflict).Error; err != nil {
		return false, false, newServiceError(opIngest, "conflict_log_failed", err)
	}
	return false, true, nil
}

func measurementsEqual(a, b Measurement) bool {
	return a.WeightGrams == b.WeightGrams &&
		a.Impedance == b.Impedance &&
		a.FatRaw1 == b.FatRaw1 &&
		a.FatRaw2 == b.FatRaw2 &&
		a.Covariance == b.Covariance &&
		a.Timestamp == b.Timestamp &&
		a.UserSlot == b.UserSlot
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
	logger.Error("ingestion service error", attrs...)
}
