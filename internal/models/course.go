package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Modality decides which booking path a course takes.
type Modality string

const (
	ModalityOnlineTheoretical    Modality = "online_theoretical"
	ModalityClassroomTheoretical Modality = "classroom_theoretical"
	ModalityPractical            Modality = "practical"
)

// ParseModality accepts the stored column value, case-insensitively.
func ParseModality(raw string) (Modality, error) {
	m := Modality(strings.ToLower(strings.TrimSpace(raw)))
	switch m {
	case ModalityOnlineTheoretical, ModalityClassroomTheoretical, ModalityPractical:
		return m, nil
	}
	return "", fmt.Errorf("unknown course modality %q", raw)
}

// Scan lets sqlx read the modality column directly.
func (m *Modality) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("scan modality: unsupported type %T", src)
	}
	parsed, err := ParseModality(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Course is the read-only catalog snapshot a booking is priced against.
type Course struct {
	ID              string          `db:"id" json:"id"`
	Name            string          `db:"name" json:"name"`
	Price           decimal.Decimal `db:"price" json:"price"`
	BranchID        string          `db:"branch_id" json:"branch_id"`
	VehicleCategory *string         `db:"vehicle_category" json:"vehicle_category,omitempty"`
	VehicleType     *string         `db:"vehicle_type" json:"vehicle_type,omitempty"`
	Modality        Modality        `db:"modality" json:"modality"`
}

// VehicleClass returns the fleet pool the course books against. ok is false
// when the course carries no category or type.
func (c Course) VehicleClass() (VehicleClass, bool) {
	if c.VehicleCategory == nil || c.VehicleType == nil || *c.VehicleCategory == "" || *c.VehicleType == "" {
		return VehicleClass{}, false
	}
	return VehicleClass{BranchID: c.BranchID, Category: *c.VehicleCategory, Type: *c.VehicleType}, true
}
