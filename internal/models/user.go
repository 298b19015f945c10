package models

import "time"

// SafetyStatus is the live safety flag shown for a tourist on dashboards.
type SafetyStatus string

const (
	SafetyStatusSafe    SafetyStatus = "SAFE"
	SafetyStatusWarning SafetyStatus = "WARNING"
	SafetyStatusDanger  SafetyStatus = "DANGER"
	SafetyStatusSOS     SafetyStatus = "SOS"
)

// EmergencyContact is the person notified when the tourist raises an SOS.
type EmergencyContact struct {
	Name     string `json:"name,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	Relation string `json:"relation,omitempty"`
}

// MedicalInfo is copied into every SOS alert at creation time.
type MedicalInfo struct {
	BloodType        string           `json:"bloodType,omitempty"`
	Allergies        []string         `json:"allergies,omitempty"`
	Conditions       []string         `json:"conditions,omitempty"`
	InsuranceInfo    string           `json:"insuranceInfo,omitempty"`
	EmergencyContact EmergencyContact `json:"emergencyContact"`
}

// UserProfile is the subset of the user record the safety core reads.
type UserProfile struct {
	UserID            string       `json:"userId"`
	TouristID         string       `json:"touristId"`
	FullName          string       `json:"fullName"`
	Phone             string       `json:"phone,omitempty"`
	Email             string       `json:"email,omitempty"`
	Nationality       string       `json:"nationality,omitempty"`
	Medical           MedicalInfo  `json:"medicalInfo"`
	SafetyStatus      SafetyStatus `json:"safetyStatus"`
	LastKnownLocation *Point       `json:"lastKnownLocation,omitempty"`
	LastLocationAt    *time.Time   `json:"lastLocationAt,omitempty"`
}
