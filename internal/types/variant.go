package types

import (
	"fmt"
	"strings"
)

// VehicleVariant identifies one supported car on the shared bus protocol.
type VehicleVariant string

const (
	VariantAccord           VehicleVariant = "ACCORD"
	VariantAccordHybrid     VehicleVariant = "ACCORDH"
	VariantCivic            VehicleVariant = "CIVIC"
	VariantCivicBosch       VehicleVariant = "CIVIC_BOSCH"
	VariantCivicBoschDiesel VehicleVariant = "CIVIC_BOSCH_DIESEL"
	VariantCRV              VehicleVariant = "CRV"
	VariantCRVEU            VehicleVariant = "CRV_EU"
	VariantCRV5G            VehicleVariant = "CRV_5G"
	VariantCRVHybrid        VehicleVariant = "CRV_HYBRID"
	VariantFit              VehicleVariant = "FIT"
	VariantHRV              VehicleVariant = "HRV"
	VariantAcuraILX         VehicleVariant = "ACURA_ILX"
	VariantAcuraRDX         VehicleVariant = "ACURA_RDX"
	VariantAcuraRDX3G       VehicleVariant = "ACURA_RDX_3G"
	VariantOdyssey          VehicleVariant = "ODYSSEY"
	VariantOdysseyCHN       VehicleVariant = "ODYSSEY_CHN"
	VariantPilot            VehicleVariant = "PILOT"
	VariantPilot2019        VehicleVariant = "PILOT_2019"
	VariantRidgeline        VehicleVariant = "RIDGELINE"
	VariantInsight          VehicleVariant = "INSIGHT"
)

// AllVariants lists every supported variant in a stable order.
var AllVariants = []VehicleVariant{
	VariantAccord, VariantAccordHybrid, VariantCivic, VariantCivicBosch, VariantCivicBoschDiesel,
	VariantCRV, VariantCRVEU, VariantCRV5G, VariantCRVHybrid, VariantFit, VariantHRV,
	VariantAcuraILX, VariantAcuraRDX, VariantAcuraRDX3G, VariantOdyssey, VariantOdysseyCHN,
	VariantPilot, VariantPilot2019, VariantRidgeline, VariantInsight,
}

// ParseVariant accepts the canonical upper-case name, case-insensitively.
func ParseVariant(s string) (VehicleVariant, error) {
	want := VehicleVariant(strings.ToUpper(strings.TrimSpace(s)))
	for _, v := range AllVariants {
		if v == want {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown vehicle variant %q", s)
}

type Transmission string

const (
	TransmissionAutomatic Transmission = "automatic"
	TransmissionCVT       Transmission = "cvt"
	TransmissionManual    Transmission = "manual"
)

// FeatureFlags are the per-car options detected or configured at startup.
type FeatureFlags struct {
	// RadarDisabled hands longitudinal control on Bosch cars to the assist stack.
	RadarDisabled  bool         `yaml:"radar_disabled" json:"radar_disabled"`
	GasInterceptor bool         `yaml:"gas_interceptor" json:"gas_interceptor"`
	AltBrakeSignal bool         `yaml:"alt_brake_signal" json:"alt_brake_signal"`
	BlindSpot      bool         `yaml:"blind_spot" json:"blind_spot"`
	Transmission   Transmission `yaml:"transmission" json:"transmission"`

	// CruiseEngagesLateral turns lateral assist on at the rising edge of cruise.
	CruiseEngagesLateral bool `yaml:"cruise_engages_lateral" json:"cruise_engages_lateral"`
	// TrustStockFCW passes the camera's forward collision warning through.
	TrustStockFCW bool `yaml:"trust_stock_fcw" json:"trust_stock_fcw"`
}
