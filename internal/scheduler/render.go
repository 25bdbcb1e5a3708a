package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/BTreeMap/HealthPipe/internal/models"
	"github.com/BTreeMap/HealthPipe/internal/store"
)

// errNothingToSend marks a firing that has no content, such as a plan reminder for a
// user whose plan no longer exists.
var errNothingToSend = errors.New("nothing to send")

func (s *Scheduler) render(ctx context.Context, r models.Reminder) (string, error) {
	switch r.Kind {
	case models.ReminderDiagnosisFollowUp:
		return fmt.Sprintf("Hi! Two days ago you told me about: %s.\nHow are you feeling now? If things have not improved, please see a doctor. Send *diagnose* to check your symptoms again.",
			r.Payload[models.PayloadSymptoms]), nil
	case models.ReminderAssessmentNudge:
		return "Ready for your health assessment? It takes about three minutes. Send *assessment* to begin.", nil
	case models.ReminderPeriod:
		return fmt.Sprintf("Heads up: your next period is predicted to start on %s, three days from now.",
			r.Payload[models.PayloadPredictedDate]), nil
	case models.ReminderMedication:
		return fmt.Sprintf("Time to take your medication: %s (%s).",
			r.Payload[models.PayloadMedicationName], r.Payload[models.PayloadDosage]), nil
	case models.ReminderFitnessPlan:
		if s.plans == nil {
			return "", errNothingToSend
		}
		plan, err := s.plans.GetLatestFitnessPlan(ctx, r.UserID)
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrProfileNotFound) {
			return "", errNothingToSend
		}
		if err != nil {
			return "", fmt.Errorf("read fitness plan: %w", err)
		}
		return "Good morning! Here is your fitness plan for today:\n\n" + plan.Plan, nil
	case models.ReminderMealPlan:
		if s.plans == nil {
			return "", errNothingToSend
		}
		plan, err := s.plans.GetLatestMealPlan(ctx, r.UserID)
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrProfileNotFound) {
			return "", errNothingToSend
		}
		if err != nil {
			return "", fmt.Errorf("read meal plan: %w", err)
		}
		return "Good morning! Here is your meal plan for today:\n\n" + plan.Plan, nil
	default:
		return "", fmt.Errorf("unknown reminder kind %q", r.Kind)
	}
}
