package types

import "time"

type Gear string

const (
	GearUnknown Gear = "unknown"
	GearPark    Gear = "park"
	GearReverse Gear = "reverse"
	GearNeutral Gear = "neutral"
	GearDrive   Gear = "drive"
	GearSport   Gear = "sport"
	GearLow     Gear = "low"
)

// FaultClass buckets the EPS status into what the driver should be told.
type FaultClass string

const (
	FaultNormal    FaultClass = "normal"
	FaultIgnorable FaultClass = "ignorable"
	FaultWarning   FaultClass = "warning"
	FaultError     FaultClass = "error"
)

type WheelSpeeds struct {
	FL float64 `json:"fl"`
	FR float64 `json:"fr"`
	RL float64 `json:"rl"`
	RR float64 `json:"rr"`
}

type CruiseState struct {
	Available   bool    `json:"available"`
	Enabled     bool    `json:"enabled"`
	Speed       float64 `json:"speed"`
	Standstill  bool    `json:"standstill"`
	NonAdaptive bool    `json:"non_adaptive"`
}

// VehicleState is the canonical per-tick view of the car. Speeds are m/s.
type VehicleState struct {
	VEgoRaw     float64     `json:"v_ego_raw"`
	VEgo        float64     `json:"v_ego"`
	AEgo        float64     `json:"a_ego"`
	WheelSpeeds WheelSpeeds `json:"wheel_speeds"`
	Standstill  bool        `json:"standstill"`

	SteeringAngleDeg  float64 `json:"steering_angle_deg"`
	SteeringRateDeg   float64 `json:"steering_rate_deg"`
	SteeringTorque    float64 `json:"steering_torque"`
	SteeringTorqueEps float64 `json:"steering_torque_eps"`
	SteeringPressed   bool    `json:"steering_pressed"`

	SteerStatus  string     `json:"steer_status"`
	SteerFault   FaultClass `json:"steer_fault"`
	SteerWarning bool       `json:"steer_warning"`
	SteerError   bool       `json:"steer_error"`

	Gear Gear `json:"gear"`

	BrakePressed    bool    `json:"brake_pressed"`
	Brake           float64 `json:"brake"`
	BrakeHoldActive bool    `json:"brake_hold_active"`
	BrakeError      bool    `json:"brake_error"`
	GasPressed      bool    `json:"gas_pressed"`
	Gas             float64 `json:"gas"`

	Cruise CruiseState `json:"cruise"`
	MainOn bool        `json:"main_on"`

	DoorOpen          bool `json:"door_open"`
	SeatbeltUnlatched bool `json:"seatbelt_unlatched"`
	ParkBrake         bool `json:"park_brake"`
	ESPDisabled       bool `json:"esp_disabled"`

	// LeftBlinker/RightBlinker are held on between stalk flashes,
	// the *On fields follow the raw stalk signal.
	LeftBlinker          bool `json:"left_blinker"`
	RightBlinker         bool `json:"right_blinker"`
	LeftBlinkerOn        bool `json:"left_blinker_on"`
	RightBlinkerOn       bool `json:"right_blinker_on"`
	BelowLaneChangeSpeed bool `json:"below_lane_change_speed"`

	StockAEB       bool `json:"stock_aeb"`
	StockFCW       bool `json:"stock_fcw"`
	LeftBlindspot  bool `json:"left_blindspot"`
	RightBlindspot bool `json:"right_blindspot"`

	EngineRPM float64 `json:"engine_rpm"`

	// Raw steering wheel button codes, consumed by the engagement machine.
	CruiseButtons int `json:"cruise_buttons"`
	CruiseSetting int `json:"cruise_setting"`
	DistanceLines int `json:"distance_lines"`

	Valid bool `json:"valid"`
}

// EngagementState is owned by the engagement machine and persists across ticks.
type EngagementState struct {
	LateralEnabled      bool          `json:"lateral_enabled"`
	LongitudinalEnabled bool          `json:"longitudinal_enabled"`
	LastEnablePressed   time.Duration `json:"last_enable_pressed"`
	LastEnableSent      time.Duration `json:"last_enable_sent"`
	DisengageByBrake    bool          `json:"disengage_by_brake"`
	ResumeAvailable     bool          `json:"resume_available"`
	DistanceLines       int           `json:"distance_lines"`
}
