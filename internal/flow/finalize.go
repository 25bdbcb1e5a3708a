package flow

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/HealthPipe/internal/models"
	"github.com/BTreeMap/HealthPipe/internal/scheduler"
	"github.com/BTreeMap/HealthPipe/internal/store"
)

const (
	followUpDelay       = 48 * time.Hour
	assessmentNudgeWait = 48 * time.Hour
	periodLeadDays      = 3
	periodReminderHour  = 9
	fitnessReminderHour = 7
	mealReminderHour    = 8
)

const disclaimer = "_This is not a medical diagnosis. If your symptoms get worse or you are worried, please see a doctor._"

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func atof(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

func (e *Engine) finalizeTerms(ctx context.Context, userID string, a map[string]string) (Outcome, error) {
	if norm(a[fieldTerms]) == "accept" {
		return Outcome{Reply: "Thank you! Let's set up your profile.", Next: models.StateOnboarding}, nil
	}
	return Outcome{Reply: "No problem. I won't store any of your information. Send *start* if you change your mind."}, nil
}

func (e *Engine) finalizeOnboarding(ctx context.Context, userID string, a map[string]string) (Outcome, error) {
	profile := models.UserProfile{
		UserID:            userID,
		Name:              a[fieldName],
		Age:               atoi(a[fieldAge]),
		Sex:               norm(a[fieldSex]),
		HeightCM:          atof(a[fieldHeight]),
		WeightKG:          atof(a[fieldWeight]),
		Location:          a[fieldLocation],
		MedicalConditions: a[fieldConditions],
		Medications:       a[fieldMedications],
		Allergies:         a[fieldAllergies],
		FamilyHistory:     a[fieldFamilyHistory],
		CycleType:         norm(a[fieldCycleType]),
		CreatedAt:         e.now(),
	}
	if err := e.store.CreateProfile(ctx, profile); err != nil {
		return Outcome{}, finalizationError(models.StateOnboarding, "persist", err)
	}
	return Outcome{
		Reply: fmt.Sprintf("Thanks, %s! Your profile is saved.", profile.Name),
		Next:  models.StateAwaitingAssessmentChoice,
	}, nil
}

func (e *Engine) finalizeAssessmentChoice(ctx context.Context, userID string, a map[string]string) (Outcome, error) {
	switch norm(a[fieldChoice]) {
	case "now":
		return Outcome{Reply: "Great, let's begin. There are 16 short questions.", Next: models.StateAssessing}, nil
	case "later":
		nudge := models.NewReminder(userID, models.ReminderAssessmentNudge, nil)
		if e.armOneShot(nudge, e.now().Add(assessmentNudgeWait)) {
			return Outcome{Reply: "No problem, I'll remind you in two days. You can also send *assessment* any time."}, nil
		}
		return Outcome{Reply: "No problem. Send *assessment* whenever you're ready."}, nil
	default:
		return Outcome{Reply: "Okay. If you change your mind, send *assessment*. Send *help* to see what else I can do."}, nil
	}
}

func (e *Engine) finalizeDiagnosis(ctx context.Context, userID string, a map[string]string) (Outcome, error) {
	symptoms, severity, duration := a[fieldSymptoms], norm(a[fieldSeverity]), a[fieldDuration]

	analysis, err := e.analyst.AnalyzeSymptoms(ctx, symptoms, severity, duration)
	if err != nil {
		return Outcome{}, finalizationError(models.StateDiagnosing, "analysis", err)
	}
	rec := models.DiagnosisRecord{
		Symptoms:  symptoms,
		Severity:  severity,
		Duration:  duration,
		Analysis:  analysis,
		CreatedAt: e.now(),
	}
	if err := e.store.AddDiagnosis(ctx, userID, rec); err != nil {
		return Outcome{}, finalizationError(models.StateDiagnosing, "persist", err)
	}

	reply := analysis + "\n\n" + disclaimer
	if severity == "severe" {
		followUp := models.NewReminder(userID, models.ReminderDiagnosisFollowUp, map[string]string{
			models.PayloadSymptoms: symptoms,
		})
		if e.armOneShot(followUp, e.now().Add(followUpDelay)) {
			reply += "\n\nI'll check in with you in two days."
		}
	}
	return Outcome{Reply: reply}, nil
}

func (e *Engine) finalizeAssessment(ctx context.Context, userID string, a map[string]string) (Outcome, error) {
	answers := make(map[string]string, len(assessmentQuestions))
	for _, q := range assessmentQuestions {
		answers[q.field] = norm(a[q.field])
	}
	score := HealthScore(answers)

	analysis, err := e.analyst.AnalyzeAssessment(ctx, maps.Clone(answers), score)
	if err != nil {
		return Outcome{}, finalizationError(models.StateAssessing, "analysis", err)
	}
	rec := models.AssessmentRecord{Answers: answers, Score: score, Analysis: analysis, CreatedAt: e.now()}
	if err := e.store.AddAssessment(ctx, userID, rec); err != nil {
		return Outcome{}, finalizationError(models.StateAssessing, "persist", err)
	}
	return Outcome{Reply: fmt.Sprintf("Your health score: *%d/%d*\n\n%s", score, MaxHealthScore, analysis)}, nil
}

func (e *Engine) finalizeFitness(ctx context.Context, userID string, a map[string]string) (Outcome, error) {
	plan := models.FitnessPlan{
		Goal:              a[fieldGoal],
		ActivityLevel:     norm(a[fieldActivityLevel]),
		DaysPerWeek:       atoi(a[fieldDaysPerWeek]),
		MinutesPerSession: atoi(a[fieldMinutes]),
		CreatedAt:         e.now(),
	}
	text, err := e.analyst.GenerateFitnessPlan(ctx, plan.Goal, plan.ActivityLevel, plan.DaysPerWeek, plan.MinutesPerSession)
	if err != nil {
		return Outcome{}, finalizationError(models.StateFitness, "generation", err)
	}
	plan.Plan = text
	if err := e.store.SaveFitnessPlan(ctx, userID, plan); err != nil {
		return Outcome{}, finalizationError(models.StateFitness, "persist", err)
	}

	reply := "Here is your fitness plan:\n\n" + text
	if e.armRecurring(models.NewReminder(userID, models.ReminderFitnessPlan, nil), scheduler.Daily(fitnessReminderHour, 0)) {
		reply += fmt.Sprintf("\n\nI'll send you your plan every morning at %02d:00.", fitnessReminderHour)
	}
	return Outcome{Reply: reply}, nil
}

func (e *Engine) finalizeMeal(ctx context.Context, userID string, a map[string]string) (Outcome, error) {
	plan := models.MealPlan{
		DietPreference: a[fieldDietPreference],
		HealthGoal:     a[fieldHealthGoal],
		MealsPerDay:    atoi(a[fieldMealsPerDay]),
		CreatedAt:      e.now(),
	}
	text, err := e.analyst.GenerateMealPlan(ctx, plan.DietPreference, plan.HealthGoal, plan.MealsPerDay)
	if err != nil {
		return Outcome{}, finalizationError(models.StateMeal, "generation", err)
	}
	plan.Plan = text
	if err := e.store.SaveMealPlan(ctx, userID, plan); err != nil {
		return Outcome{}, finalizationError(models.StateMeal, "persist", err)
	}

	reply := "Here is your meal plan:\n\n" + text
	if e.armRecurring(models.NewReminder(userID, models.ReminderMealPlan, nil), scheduler.Daily(mealReminderHour, 0)) {
		reply += fmt.Sprintf("\n\nI'll send you your meal plan every morning at %02d:00.", mealReminderHour)
	}
	return Outcome{Reply: reply}, nil
}

func (e *Engine) finalizeCycleChoice(ctx context.Context, userID string, a map[string]string) (Outcome, error) {
	if norm(a[fieldChoice]) == "update" {
		return Outcome{Next: models.StateCycleTracking}, nil
	}
	return Outcome{Reply: "Okay, I'll keep your current cycle information."}, nil
}

// PredictNextPeriod returns the start of the next period.
func PredictNextPeriod(lastStart time.Time, cycleLength int) time.Time {
	return lastStart.AddDate(0, 0, cycleLength)
}

// periodReminderTime is 09:00 three days before the predicted start.
func periodReminderTime(next time.Time, loc *time.Location) time.Time {
	d := next.In(loc).AddDate(0, 0, -periodLeadDays)
	return time.Date(d.Year(), d.Month(), d.Day(), periodReminderHour, 0, 0, 0, loc)
}

func (e *Engine) finalizeCycle(ctx context.Context, userID string, a map[string]string) (Outcome, error) {
	last, err := time.ParseInLocation(dateLayout, a[fieldLastPeriod], e.loc)
	if err != nil {
		return Outcome{}, finalizationError(models.StateCycleTracking, "parse", err)
	}
	length := atoi(a[fieldCycleLength])
	next := PredictNextPeriod(last, length)

	rec := models.CycleRecord{
		LastPeriodStart: last,
		CycleLength:     length,
		NextPeriodStart: next,
		UpdatedAt:       e.now(),
	}
	if err := e.store.UpsertCycle(ctx, userID, rec); err != nil {
		return Outcome{}, finalizationError(models.StateCycleTracking, "persist", err)
	}

	reply := fmt.Sprintf("Saved! Your next period is predicted to start on *%s*.", next.Format(dateLayout))
	remindAt := periodReminderTime(next, e.loc)
	r := models.NewReminder(userID, models.ReminderPeriod, map[string]string{
		models.PayloadPredictedDate: next.Format(dateLayout),
	})
	if e.armOneShot(r, remindAt) {
		reply += fmt.Sprintf(" I'll remind you on %s.", remindAt.Format(dateLayout))
	}
	return Outcome{Reply: reply}, nil
}

// cycleSummary describes a stored cycle record before asking whether to update it.
func cycleSummary(rec models.CycleRecord) string {
	return fmt.Sprintf("Your last period started on %s and your cycle is %d days long. Your next period is predicted for *%s*.",
		rec.LastPeriodStart.Format(dateLayout), rec.CycleLength, rec.NextPeriodStart.Format(dateLayout))
}

func formatMedications(meds []models.MedicationReminder) string {
	var b strings.Builder
	b.WriteString("Your medications:")
	for i, m := range meds {
		fmt.Fprintf(&b, "\n%d. %s, %s, %s at %s", i+1, m.Name, m.Dosage, m.Frequency, m.TimeOfDay)
	}
	return b.String()
}

func (e *Engine) finalizeMedicationChoice(ctx context.Context, userID string, a map[string]string) (Outcome, error) {
	choice := norm(a[fieldChoice])
	if choice == "add" {
		return Outcome{Next: models.StateMedicationSetup}, nil
	}

	meds, err := e.store.ListMedicationReminders(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return Outcome{}, finalizationError(models.StateMedicationChoice, "read", err)
	}
	if len(meds) == 0 {
		if choice == "update" {
			return Outcome{Reply: "You don't have any medications yet. Let's add one.", Next: models.StateMedicationSetup}, nil
		}
		return Outcome{Reply: "You don't have any medication reminders yet. Send *medication* and choose *add* to create one."}, nil
	}
	if choice == "view" {
		return Outcome{Reply: formatMedications(meds)}, nil
	}

	names := make([]string, len(meds))
	for i, m := range meds {
		names[i] = m.Name
	}
	return Outcome{
		Next: models.StateMedicationSelectUpdate,
		Seed: map[string]string{seedMedicationOptions: strings.Join(names, "\n")},
	}, nil
}

func (e *Engine) finalizeMedicationSelect(ctx context.Context, userID string, a map[string]string) (Outcome, error) {
	name, ok := resolveSelection(medicationOptions(a), a[fieldSelection])
	if !ok {
		return Outcome{}, finalizationError(models.StateMedicationSelectUpdate, "select", fmt.Errorf("no medication matches %q", a[fieldSelection]))
	}
	return Outcome{
		Reply: fmt.Sprintf("Updating *%s*.", name),
		Next:  models.StateMedicationSetup,
		Seed:  map[string]string{seedUpdateTarget: name},
	}, nil
}

func (e *Engine) finalizeMedication(ctx context.Context, userID string, a map[string]string) (Outcome, error) {
	name := a[fieldMedicationName]
	if target := a[seedUpdateTarget]; target != "" {
		name = target
	}
	days, err := parseFrequency(a[fieldFrequency])
	if err != nil {
		return Outcome{}, finalizationError(models.StateMedicationSetup, "parse", err)
	}
	hour, minute, err := parseClock(a[fieldTime])
	if err != nil {
		return Outcome{}, finalizationError(models.StateMedicationSetup, "parse", err)
	}

	med := models.MedicationReminder{
		Name:      name,
		Dosage:    a[fieldDosage],
		Frequency: formatFrequency(days),
		TimeOfDay: fmt.Sprintf("%02d:%02d", hour, minute),
		UpdatedAt: e.now(),
	}
	if err := e.store.UpsertMedicationReminder(ctx, userID, med); err != nil {
		return Outcome{}, finalizationError(models.StateMedicationSetup, "persist", err)
	}

	rule := scheduler.Weekly(hour, minute, days...)
	r := models.NewReminder(userID, models.ReminderMedication, map[string]string{
		models.PayloadMedicationName: med.Name,
		models.PayloadDosage:         med.Dosage,
	})
	reply := fmt.Sprintf("Saved *%s* (%s).", med.Name, med.Dosage)
	if e.armRecurring(r, rule) {
		reply += fmt.Sprintf(" I'll remind you %s.", rule.String())
	}
	return Outcome{Reply: reply}, nil
}
