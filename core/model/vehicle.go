package model

import "fmt"

// VehicleType categorises the fleet the way the transport collaborator does.
type VehicleType string

const (
	VehicleVan        VehicleType = "van"
	VehicleTruck      VehicleType = "truck"
	VehicleLorry      VehicleType = "lorry"
	VehicleMotorcycle VehicleType = "motorcycle"
	VehicleBicycle    VehicleType = "bicycle"
)

// Capacity bounds the load a vehicle can carry on each dimension.
type Capacity struct {
	MaxWeightKg float64 `json:"max_weight_kg"`
	MaxVolumeM3 float64 `json:"max_volume_m3"`
	MaxItems    int     `json:"max_items"`
}

// Vehicle is a fleet vehicle as reported by the fleet-management
// collaborator. The dispatch core reads capacity and availability and only
// writes the assignment lock while a shipment is active.
type Vehicle struct {
	ID        string      `json:"id"`
	Type      VehicleType `json:"type"`
	Capacity  Capacity    `json:"capacity"`
	Available bool        `json:"available"`
	Depot     Location    `json:"depot"`
}

// Validate checks that the capacity configuration is sound.
func (v Vehicle) Validate() error {
	if v.Capacity.MaxWeightKg <= 0 {
		return fmt.Errorf("vehicle %s: max weight must be positive", v.ID)
	}
	if v.Capacity.MaxVolumeM3 <= 0 {
		return fmt.Errorf("vehicle %s: max volume must be positive", v.ID)
	}
	if v.Capacity.MaxItems <= 0 {
		return fmt.Errorf("vehicle %s: max items must be positive", v.ID)
	}
	return nil
}

// CanCarry returns true if the load fits within the vehicle capacity on
// every dimension.
func (v Vehicle) CanCarry(weightKg, volumeM3 float64, items int) bool {
	return weightKg <= v.Capacity.MaxWeightKg &&
		volumeM3 <= v.Capacity.MaxVolumeM3 &&
		items <= v.Capacity.MaxItems
}

// SuggestVehicleType proposes a vehicle class for a planned route based on
// total load weight and route length.
func SuggestVehicleType(distanceKm, weightKg float64) VehicleType {
	switch {
	case weightKg < 100 && distanceKm < 50:
		return VehicleMotorcycle
	case weightKg < 500:
		return VehicleVan
	case weightKg < 2000:
		return VehicleTruck
	default:
		return VehicleLorry
	}
}
