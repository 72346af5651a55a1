// Package userdirectory manages persistent user profiles keyed by a
// stable scale-slot index (0..7) and produces the ordered profile
// list embedded in every scale upload response.
package userdirectory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fitaria/scale-api/internal/codec"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const slotCount = 8

var (
	errMissingDatabase = errors.New("userdirectory: database handle is required")
	// ErrNoFreeSlot indicates every slot 0..7 is occupied by an active profile.
	ErrNoFreeSlot = errors.New("userdirectory: no free slot")
	// ErrNotFound indicates the requested profile id does not exist or is inactive.
	ErrNotFound = errors.New("userdirectory: profile not found")
	noOpLogger  = zap.NewNop()
)

const (
	opServiceNew  = "userdirectory.service.new"
	opListOrdered = "userdirectory.list_ordered"
	opCreate      = "userdirectory.create"
	opDelete      = "userdirectory.delete"
)

// ServiceError carries a dotted operation code alongside the cause.
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
// userdirectory Service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages the users table.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs a userdirectory Service.
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

// ListOrdered returns the 8-slot response layout using the service's
// own database handle.
func (s *Service) ListOrdered(ctx context.Context) ([8]codec.ProfileSlot, error) {
	return s.ListOrderedTx(s.db.WithContext(ctx))
}

// ListOrderedTx returns the 8-slot response layout within the
// caller-supplied transaction, so the ingestion pipeline can build the
// response from the user directory state observed inside its own
// transaction (spec §5's ordering guarantee).
func (s *Service) ListOrderedTx(tx *gorm.DB) ([8]codec.ProfileSlot, error) {
	var slots [8]codec.ProfileSlot
	if tx == nil {
		s.logError(opListOrdered, "missing_database", errMissingDatabase)
		return slots, newServiceError(opListOrdered, "missing_database", errMissingDatabase)
	}

	var profiles []Profile
	if err := tx.Where("active = ?", true).Find(&profiles).Error; err != nil {
		s.logError(opListOrdered, "query_failed", err)
		return slots, newServiceError(opListOrdered, "query_failed", err)
	}

	for _, p := range profiles {
		if p.ScaleSlot >= slotCount {
			continue
		}
		slots[p.ScaleSlot] = codec.ProfileSlot{
			Occupied:   true,
			Slot:       p.ScaleSlot,
			HeightMM:   p.HeightMM,
			Age:        p.Age,
			Gender:     p.Gender,
			MinWeightG: p.MinWeightG,
			MaxWeightG: p.MaxWeightG,
		}
	}
	return slots, nil
}

// CreateParams describes the fields required to create a new profile.
type CreateParams struct {
	DisplayName string
	HeightMM    uint16
	Age         uint8
	Gender      uint8
	MinWeightG  uint32
	MaxWeightG  uint32
}

// Create assigns the lowest free slot (0..7) to a new profile.
func (s *Service) Create(ctx context.Context, params CreateParams) (Profile, error) {
	var created Profile
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active []Profile
		if err := tx.Where("active = ?", true).Find(&active).Error; err != nil {
			return err
		}
		taken := make(map[uint8]bool, len(active))
		for _, p := range active {
			taken[p.ScaleSlot] = true
		}
		slot, ok := lowestFreeSlot(taken)
		if !ok {
			return ErrNoFreeSlot
		}
		created = Profile{
			DisplayName: params.DisplayName,
			ScaleSlot:   slot,
			HeightMM:    params.HeightMM,
			Age:         params.Age,
			Gender:      params.Gender,
			MinWeightG:  params.MinWeightG,
			MaxWeightG:  params.MaxWeightG,
			Active:      true,
			CreatedAt:   s.clock().UTC(),
		}
		return tx.Create(&created).Error
	})
	if txErr != nil {
		if errors.Is(txErr, ErrNoFreeSlot) {
			return Profile{}, txErr
		}
		s.logError(opCreate, "create_failed", txErr, zap.String("display_name", params.DisplayName))
		return Profile{}, newServiceError(opCreate, "create_failed", txErr)
	}
	return created, nil
}

// Delete deactivates a profile, freeing its slot for reuse.
func (s *Service) Delete(ctx context.Context, id int64) error {
	result := s.db.WithContext(ctx).
		Model(&Profile{}).
		Where("id = ? AND active = ?", id, true).
		Update("active", false)
	if result.Error != nil {
		s.logError(opDelete, "update_failed", result.Error, zap.Int64("id", id))
		return newServiceError(opDelete, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns every active profile, ordered by slot (for the
// management API's /api/users view).
func (s *Service) List(ctx context.Context) ([]Profile, error) {
	var profiles []Profile
	if err := s.db.WithContext(ctx).Where("active = ?", true).Order("scale_slot ASC").Find(&profiles).Error; err != nil {
		s.logError(opListOrdered, "query_failed", err)
		return nil, newServiceError(opListOrdered, "query_failed", err)
	}
	return profiles, nil
}

func lowestFreeSlot(taken map[uint8]bool) (uint8, bool) {
	for slot := uint8(0); slot < slotCount; slot++ {
		if !taken[slot] {
			return slot, true
		}
	}
	return 0, false
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
	logger.Error("userdirectory service error", attrs...)
}
