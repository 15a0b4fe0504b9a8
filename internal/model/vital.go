package model

import "time"

// VitalType tags the physiological measurement a reading carries
type VitalType string

const (
	VitalBPSystolic       VitalType = "bp_systolic"
	VitalBPDiastolic      VitalType = "bp_diastolic"
	VitalHeartRate        VitalType = "heart_rate"
	VitalBloodGlucose     VitalType = "blood_glucose"
	VitalWeight           VitalType = "weight"
	VitalOxygenSaturation VitalType = "oxygen_saturation"
	VitalTemperature      VitalType = "temperature"
)

var vitalDisplayNames = map[VitalType]string{
	VitalBPSystolic:       "Systolic BP",
	VitalBPDiastolic:      "Diastolic BP",
	VitalHeartRate:        "Heart rate",
	VitalBloodGlucose:     "Blood glucose",
	VitalWeight:           "Weight",
	VitalOxygenSaturation: "Oxygen saturation",
	VitalTemperature:      "Temperature",
}

// Valid reports whether t is part of the fixed vital enumeration
func (t VitalType) Valid() bool {
	_, ok := vitalDisplayNames[t]
	return ok
}

// DisplayName returns the human-readable name used in alert text
func (t VitalType) DisplayName() string {
	if name, ok := vitalDisplayNames[t]; ok {
		return name
	}
	return string(t)
}

// VitalReading represents a single immutable measurement
type VitalReading struct {
	ID         string    `json:"id"`
	PatientID  string    `json:"patient_id"`
	Type       VitalType `json:"vital_type"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
	RecordedAt time.Time `json:"recorded_at"`
}
