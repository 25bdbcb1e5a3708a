package models

import "time"

// Sex values accepted during onboarding.
const (
	SexMale   = "male"
	SexFemale = "female"
	SexOther  = "other"
)

// Cycle types accepted during onboarding for female users.
const (
	CycleTypeRegular   = "regular"
	CycleTypeIrregular = "irregular"
	CycleTypeNone      = "none"
)

// UserProfile is written once when onboarding completes.
type UserProfile struct {
	UserID            string    `json:"user_id"`
	Name              string    `json:"name"`
	Age               int       `json:"age"`
	Sex               string    `json:"sex"`
	HeightCM          float64   `json:"height_cm"`
	WeightKG          float64   `json:"weight_kg"`
	Location          string    `json:"location"`
	MedicalConditions string    `json:"medical_conditions"`
	Medications       string    `json:"medications"`
	Allergies         string    `json:"allergies"`
	FamilyHistory     string    `json:"family_history"`
	CycleType         string    `json:"cycle_type,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// CycleProfile is the projection of a profile used to gate cycle tracking.
type CycleProfile struct {
	Sex       string `json:"sex"`
	CycleType string `json:"cycle_type"`
}

// TracksCycle reports whether cycle tracking applies to the profile.
func (p CycleProfile) TracksCycle() bool {
	return p.Sex == SexFemale && (p.CycleType == CycleTypeRegular || p.CycleType == CycleTypeIrregular)
}

// DiagnosisRecord stores a symptom check. The text generator returns one combined block
// covering likely causes, home care and warning signs, kept as a single Analysis field.
type DiagnosisRecord struct {
	Symptoms  string    `json:"symptoms"`
	Severity  string    `json:"severity"`
	Duration  string    `json:"duration"`
	Analysis  string    `json:"analysis"`
	CreatedAt time.Time `json:"created_at"`
}

// AssessmentRecord stores a completed health assessment.
type AssessmentRecord struct {
	Answers   map[string]string `json:"answers"`
	Score     int               `json:"score"`
	Analysis  string            `json:"analysis"`
	CreatedAt time.Time         `json:"created_at"`
}

// FitnessPlan is a generated workout plan.
type FitnessPlan struct {
	Goal              string    `json:"goal"`
	ActivityLevel     string    `json:"activity_level"`
	DaysPerWeek       int       `json:"days_per_week"`
	MinutesPerSession int       `json:"minutes_per_session"`
	Plan              string    `json:"plan"`
	CreatedAt         time.Time `json:"created_at"`
}

// MealPlan is a generated meal plan.
type MealPlan struct {
	DietPreference string    `json:"diet_preference"`
	HealthGoal     string    `json:"health_goal"`
	MealsPerDay    int       `json:"meals_per_day"`
	Plan           string    `json:"plan"`
	CreatedAt      time.Time `json:"created_at"`
}

// CycleRecord is the latest menstrual cycle entry for a user.
type CycleRecord struct {
	LastPeriodStart time.Time `json:"last_period_start"`
	CycleLength     int       `json:"cycle_length"`
	NextPeriodStart time.Time `json:"next_period_start"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// MedicationReminder is keyed by (user, Name).
type MedicationReminder struct {
	Name      string    `json:"name"`
	Dosage    string    `json:"dosage"`
	Frequency string    `json:"frequency"`
	TimeOfDay string    `json:"time_of_day"`
	UpdatedAt time.Time `json:"updated_at"`
}
