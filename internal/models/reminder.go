package models

import (
	"maps"
	"time"
)

// ReminderKind selects how a reminder is rendered when it fires.
type ReminderKind string

const (
	ReminderDiagnosisFollowUp ReminderKind = "diagnosis_followup"
	ReminderAssessmentNudge   ReminderKind = "assessment_nudge"
	ReminderPeriod            ReminderKind = "period"
	ReminderMedication        ReminderKind = "medication"
	ReminderFitnessPlan       ReminderKind = "fitness_plan"
	ReminderMealPlan          ReminderKind = "meal_plan"
)

// Payload keys carried in reminder snapshots.
const (
	PayloadSymptoms       = "symptoms"
	PayloadPredictedDate  = "predicted_date"
	PayloadMedicationName = "medication_name"
	PayloadDosage         = "dosage"
)

// Reminder is an immutable snapshot of what a scheduled notification needs to render.
type Reminder struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Kind      ReminderKind      `json:"kind"`
	Payload   map[string]string `json:"payload,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewReminder copies payload so later mutation by the caller has no effect.
func NewReminder(userID string, kind ReminderKind, payload map[string]string) Reminder {
	p := make(map[string]string, len(payload))
	maps.Copy(p, payload)
	return Reminder{UserID: userID, Kind: kind, Payload: p}
}

// ReminderInfo describes an armed reminder.
type ReminderInfo struct {
	ID       string       `json:"id"`
	UserID   string       `json:"user_id"`
	Kind     ReminderKind `json:"kind"`
	Schedule string       `json:"schedule"`
	NextRun  time.Time    `json:"next_run"`
}
