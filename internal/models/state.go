// Package models defines conversation state structures for HealthPipe flows.
package models

import (
	"maps"
	"time"
)

// FlowState identifies which flow, if any, a user is currently in.
type FlowState string

// Flow states. A session is in exactly one of these at any time.
const (
	StateIdle                     FlowState = "IDLE"
	StateAwaitingTermsResponse    FlowState = "AWAITING_TERMS_RESPONSE"
	StateOnboarding               FlowState = "ONBOARDING"
	StateAwaitingAssessmentChoice FlowState = "AWAITING_ASSESSMENT_CHOICE"
	StateDiagnosing               FlowState = "DIAGNOSING"
	StateAssessing                FlowState = "ASSESSING"
	StateFitness                  FlowState = "FITNESS"
	StateMeal                     FlowState = "MEAL"
	StateCycleUpdateChoice        FlowState = "CYCLE_UPDATE_CHOICE"
	StateCycleTracking            FlowState = "CYCLE_TRACKING"
	StateMedicationChoice         FlowState = "MEDICATION_CHOICE"
	StateMedicationSelectUpdate   FlowState = "MEDICATION_SELECT_UPDATE"
	StateMedicationSetup          FlowState = "MEDICATION_SETUP"
)

// AllFlowStates lists every non-idle state.
var AllFlowStates = []FlowState{
	StateAwaitingTermsResponse,
	StateOnboarding,
	StateAwaitingAssessmentChoice,
	StateDiagnosing,
	StateAssessing,
	StateFitness,
	StateMeal,
	StateCycleUpdateChoice,
	StateCycleTracking,
	StateMedicationChoice,
	StateMedicationSelectUpdate,
	StateMedicationSetup,
}

// IsIdle reports whether the state is Idle. The zero value counts as Idle.
func (s FlowState) IsIdle() bool {
	return s == StateIdle || s == ""
}

// Session is the per-user conversation state.
type Session struct {
	UserID    string            `json:"user_id"`
	State     FlowState         `json:"state"`
	StepIndex int               `json:"step_index"`
	Answers   map[string]string `json:"answers,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewSession returns an idle session for the given user.
func NewSession(userID string) Session {
	return Session{
		UserID:  userID,
		State:   StateIdle,
		Answers: make(map[string]string),
	}
}

// Clone returns a deep copy so callers never share the answers map.
func (s Session) Clone() Session {
	c := s
	c.Answers = make(map[string]string, len(s.Answers))
	maps.Copy(c.Answers, s.Answers)
	return c
}

// Reset returns the session to Idle with no answers.
func (s *Session) Reset() {
	s.State = StateIdle
	s.StepIndex = 0
	s.Answers = make(map[string]string)
}

// Enter places the session at the first step of state, seeding the answers.
func (s *Session) Enter(state FlowState, seed map[string]string) {
	s.State = state
	s.StepIndex = 0
	s.Answers = make(map[string]string, len(seed))
	maps.Copy(s.Answers, seed)
}
