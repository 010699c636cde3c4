package installation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/Strob0t/tyresync/internal/domain"
)

// sizePattern matches ISO metric tyre sizes such as 205/55R16 or 225/45 R17.
var sizePattern = regexp.MustCompile(`^\d{3}/\d{2}\s?Z?R\d{2}$`)

const maxTreadDepthMM = 30

// NormalizePlate upper-cases a plate and strips surrounding whitespace.
func NormalizePlate(p string) string {
	return strings.ToUpper(strings.TrimSpace(p))
}

// ValidPosition reports whether p is a known wheel slot.
func ValidPosition(p Position) bool {
	switch p {
	case PositionFrontLeft, PositionFrontRight, PositionRearLeft, PositionRearRight, PositionSpare:
		return true
	}
	return false
}

// ValidStatus reports whether s is a known lifecycle state.
func ValidStatus(s Status) bool {
	switch s {
	case StatusMounted, StatusStored, StatusDisposed:
		return true
	}
	return false
}

// ValidateCreateRequest validates the fields of a creation request.
// An empty status defaults to mounted and is accepted.
func ValidateCreateRequest(req *CreateRequest) error {
	if err := validatePlate(req.VehiclePlate); err != nil {
		return err
	}
	if !ValidPosition(req.Position) {
		return fmt.Errorf("unknown position %q: %w", req.Position, domain.ErrValidation)
	}
	if err := validateText("brand", req.Brand, true); err != nil {
		return err
	}
	if err := validateText("model", req.Model, false); err != nil {
		return err
	}
	if !sizePattern.MatchString(req.Size) {
		return fmt.Errorf("size %q must look like 205/55R16: %w", req.Size, domain.ErrValidation)
	}
	if err := validateTread(req.TreadDepthMM); err != nil {
		return err
	}
	if req.Status != "" && !ValidStatus(req.Status) {
		return fmt.Errorf("unknown status %q: %w", req.Status, domain.ErrValidation)
	}
	return nil
}

// ValidateUpdateRequest validates only the fields that are set.
func ValidateUpdateRequest(req UpdateRequest) error {
	if req.Empty() {
		return fmt.Errorf("no fields to update: %w", domain.ErrValidation)
	}
	if req.VehiclePlate != nil {
		if err := validatePlate(*req.VehiclePlate); err != nil {
			return err
		}
	}
	if req.Position != nil && !ValidPosition(*req.Position) {
		return fmt.Errorf("unknown position %q: %w", *req.Position, domain.ErrValidation)
	}
	if req.Brand != nil {
		if err := validateText("brand", *req.Brand, true); err != nil {
			return err
		}
	}
	if req.Model != nil {
		if err := validateText("model", *req.Model, false); err != nil {
			return err
		}
	}
	if req.Size != nil && !sizePattern.MatchString(*req.Size) {
		return fmt.Errorf("size %q must look like 205/55R16: %w", *req.Size, domain.ErrValidation)
	}
	if req.TreadDepthMM != nil {
		if err := validateTread(*req.TreadDepthMM); err != nil {
			return err
		}
	}
	if req.Status != nil && !ValidStatus(*req.Status) {
		return fmt.Errorf("unknown status %q: %w", *req.Status, domain.ErrValidation)
	}
	if req.Version != nil && *req.Version < 1 {
		return fmt.Errorf("version must be >= 1: %w", domain.ErrValidation)
	}
	return nil
}

func validatePlate(p string) error {
	p = NormalizePlate(p)
	if p == "" {
		return fmt.Errorf("vehicle_plate is required: %w", domain.ErrValidation)
	}
	if len(p) > 16 {
		return fmt.Errorf("vehicle_plate exceeds 16 characters: %w", domain.ErrValidation)
	}
	for _, r := range p {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != ' ' {
			return fmt.Errorf("vehicle_plate contains invalid character %q: %w", r, domain.ErrValidation)
		}
	}
	return nil
}

func validateText(field, v string, required bool) error {
	if required && strings.TrimSpace(v) == "" {
		return fmt.Errorf("%s is required: %w", field, domain.ErrValidation)
	}
	if len(v) > 255 {
		return fmt.Errorf("%s exceeds 255 characters: %w", field, domain.ErrValidation)
	}
	for _, r := range v {
		if unicode.IsControl(r) {
			return fmt.Errorf("%s contains control characters: %w", field, domain.ErrValidation)
		}
	}
	return nil
}

func validateTread(mm float64) error {
	if mm < 0 || mm > maxTreadDepthMM {
		return fmt.Errorf("tread_depth_mm must be between 0 and %d: %w", maxTreadDepthMM, domain.ErrValidation)
	}
	return nil
}
