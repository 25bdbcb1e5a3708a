package flow

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/BTreeMap/HealthPipe/internal/models"
)

// Step is one question of a flow.
type Step struct {
	Field    string
	Prompt   string
	Validate Validator
}

// Outcome is what a successful finalization produces. A non-idle Next moves the user
// straight into that flow, with Seed as its initial answers.
type Outcome struct {
	Reply string
	Next  models.FlowState
	Seed  map[string]string
}

// Definition describes one flow: how to resolve its steps from the answers so far and
// what to do once every step is answered.
type Definition struct {
	State        models.FlowState
	Name         string
	Resolve      func(answers map[string]string) []Step
	Finalize     func(ctx context.Context, userID string, answers map[string]string) (Outcome, error)
	FailureReply string
}

func static(steps ...Step) func(map[string]string) []Step {
	return func(map[string]string) []Step {
		return steps
	}
}

// Answer fields shared between definitions and finalizers.
const (
	fieldTerms            = "terms"
	fieldChoice           = "choice"
	fieldName             = "name"
	fieldAge              = "age"
	fieldSex              = "sex"
	fieldHeight           = "height_cm"
	fieldWeight           = "weight_kg"
	fieldLocation         = "location"
	fieldConditions       = "medical_conditions"
	fieldMedications      = "medications"
	fieldAllergies        = "allergies"
	fieldFamilyHistory    = "family_history"
	fieldCycleType        = "cycle_type"
	fieldSymptoms         = "symptoms"
	fieldSeverity         = "severity"
	fieldDuration         = "duration"
	fieldGoal             = "goal"
	fieldActivityLevel    = "activity_level"
	fieldDaysPerWeek      = "days_per_week"
	fieldMinutes          = "minutes_per_session"
	fieldDietPreference   = "diet_preference"
	fieldHealthGoal       = "health_goal"
	fieldMealsPerDay      = "meals_per_day"
	fieldLastPeriod       = "last_period_date"
	fieldCycleLength      = "cycle_length"
	fieldSelection        = "selection"
	fieldMedicationName   = "medication_name"
	fieldDosage           = "dosage"
	fieldFrequency        = "frequency"
	fieldTime             = "time"
	seedMedicationOptions = "_medication_options"
	seedUpdateTarget      = "update_target"
)

const termsPrompt = `Welcome to HealthPipe! 👋

I can help you check symptoms, take a health assessment, get fitness and meal plans, track your cycle and remember your medication.

Before we start: the information you share is stored to personalize your care. I am not a doctor and my answers are not a medical diagnosis. In an emergency, contact your local emergency services.

Reply *accept* to agree or *deny* to decline.`

var onboardingSteps = []Step{
	{Field: fieldName, Prompt: "What's your name?", Validate: nonEmpty("Please tell me your name.")},
	{Field: fieldAge, Prompt: "How old are you?", Validate: intRange(1, 120, "your age")},
	{Field: fieldSex, Prompt: "What is your sex? Reply *male*, *female* or *other*.", Validate: oneOf(models.SexMale, models.SexFemale, models.SexOther)},
	{Field: fieldHeight, Prompt: "What is your height in centimeters?", Validate: floatRange(50, 300, "your height in centimeters")},
	{Field: fieldWeight, Prompt: "What is your weight in kilograms?", Validate: floatRange(10, 500, "your weight in kilograms")},
	{Field: fieldLocation, Prompt: "Which city do you live in?", Validate: nonEmpty("Please tell me your city.")},
	{Field: fieldConditions, Prompt: "Do you have any medical conditions? List them, or reply *none*.", Validate: nonEmpty("Please list your conditions, or reply *none*.")},
	{Field: fieldMedications, Prompt: "Are you taking any medications? List them, or reply *none*.", Validate: nonEmpty("Please list your medications, or reply *none*.")},
	{Field: fieldAllergies, Prompt: "Do you have any allergies? List them, or reply *none*.", Validate: nonEmpty("Please list your allergies, or reply *none*.")},
	{Field: fieldFamilyHistory, Prompt: "Is there any significant medical history in your family? Describe it, or reply *none*.", Validate: nonEmpty("Please describe your family history, or reply *none*.")},
}

var cycleTypeStep = Step{
	Field:    fieldCycleType,
	Prompt:   "How would you describe your menstrual cycle? Reply *regular*, *irregular* or *none*.",
	Validate: oneOf(models.CycleTypeRegular, models.CycleTypeIrregular, models.CycleTypeNone),
}

// onboardingResolve adds the cycle question once the user has answered female.
func onboardingResolve(answers map[string]string) []Step {
	if norm(answers[fieldSex]) != models.SexFemale {
		return onboardingSteps
	}
	steps := make([]Step, 0, len(onboardingSteps)+1)
	steps = append(steps, onboardingSteps...)
	return append(steps, cycleTypeStep)
}

var (
	diagnosisSteps = []Step{
		{Field: fieldSymptoms, Prompt: "Please describe your symptoms.", Validate: nonEmpty("Please describe your symptoms.")},
		{Field: fieldSeverity, Prompt: "How severe are they? Reply *mild*, *moderate* or *severe*.", Validate: oneOf("mild", "moderate", "severe")},
		{Field: fieldDuration, Prompt: "How long have you had them? (for example: 3 days)", Validate: nonEmpty("Please tell me how long you have had these symptoms.")},
	}

	fitnessSteps = []Step{
		{Field: fieldGoal, Prompt: "What is your main fitness goal? (for example: lose weight, build strength, improve endurance)", Validate: nonEmpty("Please tell me your fitness goal.")},
		{Field: fieldActivityLevel, Prompt: "How active are you today? Reply *sedentary*, *light*, *moderate* or *active*.", Validate: oneOf("sedentary", "light", "moderate", "active")},
		{Field: fieldDaysPerWeek, Prompt: "How many days a week can you train? (1-7)", Validate: intRange(1, 7, "the number of days")},
		{Field: fieldMinutes, Prompt: "How many minutes per session? (10-180)", Validate: intRange(10, 180, "the minutes per session")},
	}

	mealSteps = []Step{
		{Field: fieldDietPreference, Prompt: "Do you follow a particular diet? (for example: vegetarian, vegan, halal, no preference)", Validate: nonEmpty("Please tell me your diet preference.")},
		{Field: fieldHealthGoal, Prompt: "What is your health goal for your meals? (for example: lose weight, more energy, manage blood sugar)", Validate: nonEmpty("Please tell me your health goal.")},
		{Field: fieldMealsPerDay, Prompt: "How many meals do you eat per day? (1-6)", Validate: intRange(1, 6, "the number of meals")},
	}

	medicationDetailSteps = []Step{
		{Field: fieldDosage, Prompt: "What dosage do you take? (for example: 200mg or 1 tablet)", Validate: nonEmpty("Please tell me the dosage.")},
		{Field: fieldFrequency, Prompt: "How often do you take it? Reply *daily*, or list the days (for example: mon, wed, fri).", Validate: frequency},
		{Field: fieldTime, Prompt: "At what time should I remind you? (HH:MM, 24-hour)", Validate: timeOfDay},
	}

	medicationNameStep = Step{Field: fieldMedicationName, Prompt: "What is the name of the medication?", Validate: singleLine("Please tell me the medication name.")}
)

// medicationSetupResolve skips the name question when updating a known medication.
func medicationSetupResolve(answers map[string]string) []Step {
	if answers[seedUpdateTarget] != "" {
		return medicationDetailSteps
	}
	steps := make([]Step, 0, len(medicationDetailSteps)+1)
	steps = append(steps, medicationNameStep)
	return append(steps, medicationDetailSteps...)
}

func medicationOptions(answers map[string]string) []string {
	raw := answers[seedMedicationOptions]
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "\n")
}

// resolveSelection maps a number or a name to one of the seeded medications.
func resolveSelection(options []string, raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if n, err := strconv.Atoi(s); err == nil {
		if n >= 1 && n <= len(options) {
			return options[n-1], true
		}
		return "", false
	}
	for _, o := range options {
		if strings.EqualFold(o, s) {
			return o, true
		}
	}
	return "", false
}

func medicationSelectResolve(answers map[string]string) []Step {
	options := medicationOptions(answers)
	var b strings.Builder
	b.WriteString("Which medication would you like to update?\n")
	for i, o := range options {
		fmt.Fprintf(&b, "%d. %s\n", i+1, o)
	}
	b.WriteString("Reply with the number or the name.")
	return []Step{{
		Field:  fieldSelection,
		Prompt: b.String(),
		Validate: func(raw string) error {
			if _, ok := resolveSelection(options, raw); !ok {
				return invalid("Please reply with a number from 1 to %d or one of the names listed.", len(options))
			}
			return nil
		},
	}}
}

// buildDefinitions wires every flow to the engine's finalizers.
func (e *Engine) buildDefinitions() map[models.FlowState]*Definition {
	defs := []*Definition{
		{
			State:        models.StateAwaitingTermsResponse,
			Name:         "terms of service",
			Resolve:      static(Step{Field: fieldTerms, Prompt: termsPrompt, Validate: oneOf("accept", "deny")}),
			Finalize:     e.finalizeTerms,
			FailureReply: "Sorry, something went wrong. Please send *start* to try again.",
		},
		{
			State:        models.StateOnboarding,
			Name:         "profile setup",
			Resolve:      onboardingResolve,
			Finalize:     e.finalizeOnboarding,
			FailureReply: "Sorry, I couldn't save your profile. Please send *start* to try again.",
		},
		{
			State: models.StateAwaitingAssessmentChoice,
			Name:  "assessment choice",
			Resolve: static(Step{
				Field:    fieldChoice,
				Prompt:   "Would you like to take a short health assessment? Reply *now*, *later* or *never*.",
				Validate: oneOf("now", "later", "never"),
			}),
			Finalize:     e.finalizeAssessmentChoice,
			FailureReply: "Sorry, something went wrong. You can send *assessment* any time.",
		},
		{
			State:        models.StateDiagnosing,
			Name:         "symptom check",
			Resolve:      static(diagnosisSteps...),
			Finalize:     e.finalizeDiagnosis,
			FailureReply: "Sorry, I couldn't analyze your symptoms right now. Please send *diagnose* to try again. If you feel very unwell, contact a doctor.",
		},
		{
			State:        models.StateAssessing,
			Name:         "health assessment",
			Resolve:      static(assessmentSteps()...),
			Finalize:     e.finalizeAssessment,
			FailureReply: "Sorry, I couldn't finish your assessment right now. Please send *assessment* to try again.",
		},
		{
			State:        models.StateFitness,
			Name:         "fitness plan",
			Resolve:      static(fitnessSteps...),
			Finalize:     e.finalizeFitness,
			FailureReply: "Sorry, I couldn't create your fitness plan right now. Please send *fitness* to try again.",
		},
		{
			State:        models.StateMeal,
			Name:         "meal plan",
			Resolve:      static(mealSteps...),
			Finalize:     e.finalizeMeal,
			FailureReply: "Sorry, I couldn't create your meal plan right now. Please send *meal* to try again.",
		},
		{
			State: models.StateCycleUpdateChoice,
			Name:  "cycle update",
			Resolve: static(Step{
				Field:    fieldChoice,
				Prompt:   "Would you like to update it? Reply *update* or *keep*.",
				Validate: oneOf("update", "keep"),
			}),
			Finalize:     e.finalizeCycleChoice,
			FailureReply: "Sorry, something went wrong. Please send *cycle* to try again.",
		},
		{
			State: models.StateCycleTracking,
			Name:  "cycle tracking",
			Resolve: static(
				Step{Field: fieldLastPeriod, Prompt: "When did your last period start? (YYYY-MM-DD)", Validate: pastDate(e.now, e.loc)},
				Step{Field: fieldCycleLength, Prompt: "How many days does your cycle usually last? (20-45)", Validate: intRange(20, 45, "your cycle length in days")},
			),
			Finalize:     e.finalizeCycle,
			FailureReply: "Sorry, I couldn't save your cycle information. Please send *cycle* to try again.",
		},
		{
			State: models.StateMedicationChoice,
			Name:  "medication menu",
			Resolve: static(Step{
				Field:    fieldChoice,
				Prompt:   "Medication reminders: reply *add* to add a medication, *update* to change one, or *view* to see your list.",
				Validate: oneOf("add", "update", "view"),
			}),
			Finalize:     e.finalizeMedicationChoice,
			FailureReply: "Sorry, I couldn't load your medications. Please send *medication* to try again.",
		},
		{
			State:        models.StateMedicationSelectUpdate,
			Name:         "medication selection",
			Resolve:      medicationSelectResolve,
			Finalize:     e.finalizeMedicationSelect,
			FailureReply: "Sorry, something went wrong. Please send *medication* to try again.",
		},
		{
			State:        models.StateMedicationSetup,
			Name:         "medication reminder setup",
			Resolve:      medicationSetupResolve,
			Finalize:     e.finalizeMedication,
			FailureReply: "Sorry, I couldn't save your medication reminder. Please send *medication* to try again.",
		},
	}

	out := make(map[models.FlowState]*Definition, len(defs))
	for _, d := range defs {
		out[d.State] = d
	}
	return out
}
