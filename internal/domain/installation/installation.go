// Package installation defines the TyreInstallation domain entity.
package installation

import "time"

// Position is the wheel slot a tyre is mounted on.
type Position string

const (
	PositionFrontLeft  Position = "FL"
	PositionFrontRight Position = "FR"
	PositionRearLeft   Position = "RL"
	PositionRearRight  Position = "RR"
	PositionSpare      Position = "SPARE"
)

// Status is the lifecycle state of an installed tyre.
type Status string

const (
	StatusMounted  Status = "mounted"
	StatusStored   Status = "stored"
	StatusDisposed Status = "disposed"
)

// Installation records one tyre fitted (or previously fitted) to a vehicle.
type Installation struct {
	ID           string    `json:"id"`
	VehiclePlate string    `json:"vehicle_plate"`
	Position     Position  `json:"position"`
	Brand        string    `json:"brand"`
	Model        string    `json:"model"`
	Size         string    `json:"size"`
	TreadDepthMM float64   `json:"tread_depth_mm"`
	Status       Status    `json:"status"`
	InstalledAt  time.Time `json:"installed_at"`
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateRequest holds the fields needed to record a new installation.
type CreateRequest struct {
	VehiclePlate string     `json:"vehicle_plate"`
	Position     Position   `json:"position"`
	Brand        string     `json:"brand"`
	Model        string     `json:"model"`
	Size         string     `json:"size"`
	TreadDepthMM float64    `json:"tread_depth_mm"`
	Status       Status     `json:"status"`
	InstalledAt  *time.Time `json:"installed_at,omitempty"`
}

// UpdateRequest is a partial update. Nil fields are left unchanged.
// Version, when set, must match the stored version.
type UpdateRequest struct {
	VehiclePlate *string    `json:"vehicle_plate,omitempty"`
	Position     *Position  `json:"position,omitempty"`
	Brand        *string    `json:"brand,omitempty"`
	Model        *string    `json:"model,omitempty"`
	Size         *string    `json:"size,omitempty"`
	TreadDepthMM *float64   `json:"tread_depth_mm,omitempty"`
	Status       *Status    `json:"status,omitempty"`
	InstalledAt  *time.Time `json:"installed_at,omitempty"`
	Version      *int       `json:"version,omitempty"`
}

// Empty reports whether the request changes nothing.
func (r UpdateRequest) Empty() bool {
	return r.VehiclePlate == nil && r.Position == nil && r.Brand == nil && r.Model == nil &&
		r.Size == nil && r.TreadDepthMM == nil && r.Status == nil && r.InstalledAt == nil
}

// Apply copies the set fields of req onto in.
func (r UpdateRequest) Apply(in *Installation) {
	if r.VehiclePlate != nil {
		in.VehiclePlate = NormalizePlate(*r.VehiclePlate)
	}
	if r.Position != nil {
		in.Position = *r.Position
	}
	if r.Brand != nil {
		in.Brand = *r.Brand
	}
	if r.Model != nil {
		in.Model = *r.Model
	}
	if r.Size != nil {
		in.Size = *r.Size
	}
	if r.TreadDepthMM != nil {
		in.TreadDepthMM = *r.TreadDepthMM
	}
	if r.Status != nil {
		in.Status = *r.Status
	}
	if r.InstalledAt != nil {
		in.InstalledAt = r.InstalledAt.UTC()
	}
}
