// Package gridvalidation validates import records and scenario specifications
// for network.New and scenario.Load, using the same two-layer
// approach as the teacher's pkg/validation: go-playground/validator struct
// tags for shape, and ConfigValidator for relational invariants a struct tag
// cannot express (p_min <= p_max, an island having exactly one slack, ...).
package gridvalidation

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() { validate = validator.New() })
	return validate
}

// BusRecord is the import-time shape of a bus, validated before conversion
// into network.Bus.
type BusRecord struct {
	ExternalID int64   `validate:"required"`
	Name       string  `validate:"omitempty,max=128"`
	NominalKV  float64 `validate:"gte=0"`
	VMin       float64 `validate:"gt=0"`
	VMax       float64 `validate:"gt=0"`
	Type       string  `validate:"required,oneof=slack pv pq"`
}

// BranchRecord is the import-time shape of a branch.
type BranchRecord struct {
	ExternalID int64   `validate:"required"`
	FromBus    int64   `validate:"required"`
	ToBus      int64   `validate:"required"`
	R          float64 `validate:""`
	X          float64 `validate:""`
	B          float64 `validate:"gte=0"`
	TapRatio   float64 `validate:"gte=0"`
	PhaseShift float64 `validate:""`
	LimitMVA   float64 `validate:"gte=0"`
	InService  bool    `validate:""`

	// IsPhaseShifter flags a branch whose (r, x) are intentionally exotic
	// because it models a phase-shifting transformer rather than a
	// conventional line. admittance.Build accepts negative r or x for every
	// branch and applies its short-circuit check regardless of this flag;
	// the flag only excludes the branch from the Hermitian-structure check.
	IsPhaseShifter bool `validate:""`
}

// GeneratorRecord is the import-time shape of a generator.
type GeneratorRecord struct {
	ExternalID int64   `validate:"required"`
	HostBus    int64   `validate:"required"`
	PMin       float64 `validate:""`
	PMax       float64 `validate:""`
	QMin       float64 `validate:""`
	QMax       float64 `validate:""`
	VSetpoint  float64 `validate:"gte=0"`
	InService  bool    `validate:""`
	IsRenewable bool   `validate:""`
}

// LoadRecord is the import-time shape of a load.
type LoadRecord struct {
	ExternalID int64   `validate:"required"`
	HostBus    int64   `validate:"required"`
	PMW        float64 `validate:""`
	QMVAr      float64 `validate:""`
	InService  bool    `validate:""`
}

// ValidateStruct runs go-playground/validator struct-tag validation on any
// of the Record types above (or scenario.Spec), wrapping each failing field
// into a single combined error.
func ValidateStruct(v any) error {
	if v == nil {
		return errors.New("gridvalidation: cannot validate nil value")
	}
	if err := instance().Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("gridvalidation: %d field(s) invalid: %w", len(verrs), err)
		}
		return fmt.Errorf("gridvalidation: %w", err)
	}
	return nil
}
