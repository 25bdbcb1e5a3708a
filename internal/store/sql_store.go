package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/HealthPipe/internal/models"
)

// sqlStore implements Store on database/sql. SQLiteStore and PostgresStore embed it and only
// differ in how the connection is opened and which migrations run.
type sqlStore struct {
	db     *sql.DB
	driver string
	name   string
}

func (s *sqlStore) q(query string) string {
	return rebind(s.driver, query)
}

// profileKey resolves a channel address to the internal profile id.
func (s *sqlStore) profileKey(ctx context.Context, q querier, userID string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, s.q(`SELECT id FROM profiles WHERE user_id = ?`), userID).Scan(&id)
	if err != nil {
		return 0, notFound(err, ErrProfileNotFound, "resolve profile")
	}
	return id, nil
}

// withTx runs fn inside a transaction and commits on success.
func (s *sqlStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Warn(s.name+" rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *sqlStore) UserExists(ctx context.Context, userID string) (bool, error) {
	_, err := s.profileKey(ctx, s.db, userID)
	if errors.Is(err, ErrProfileNotFound) {
		return false, nil
	}
	if err != nil {
		slog.Error(s.name+" UserExists failed", "error", err, "userID", userID)
		return false, err
	}
	return true, nil
}

func (s *sqlStore) CreateProfile(ctx context.Context, p models.UserProfile) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.profileKey(ctx, tx, p.UserID); err == nil {
			return ErrProfileExists
		} else if !errors.Is(err, ErrProfileNotFound) {
			return err
		}
		_, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO profiles (user_id, name, age, sex, height_cm, weight_kg, location,
				medical_conditions, medications, allergies, family_history, cycle_type, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			p.UserID, p.Name, p.Age, p.Sex, p.HeightCM, p.WeightKG, p.Location,
			p.MedicalConditions, p.Medications, p.Allergies, p.FamilyHistory, nilIfEmpty(p.CycleType), p.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert profile: %w", err)
		}
		return nil
	})
	if err != nil {
		slog.Error(s.name+" CreateProfile failed", "error", err, "userID", p.UserID)
		return err
	}
	slog.Debug(s.name+" CreateProfile succeeded", "userID", p.UserID)
	return nil
}

func (s *sqlStore) GetCycleProfile(ctx context.Context, userID string) (models.CycleProfile, error) {
	var cp models.CycleProfile
	var cycleType sql.NullString
	err := s.db.QueryRowContext(ctx, s.q(`SELECT sex, cycle_type FROM profiles WHERE user_id = ?`), userID).
		Scan(&cp.Sex, &cycleType)
	if err != nil {
		return cp, notFound(err, ErrProfileNotFound, "get cycle profile")
	}
	cp.CycleType = cycleType.String
	return cp, nil
}

func (s *sqlStore) AddDiagnosis(ctx context.Context, userID string, rec models.DiagnosisRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		key, err := s.profileKey(ctx, tx, userID)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, s.q(`
			INSERT INTO diagnoses (profile_id, symptoms, severity, duration, analysis, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`),
			key, rec.Symptoms, rec.Severity, rec.Duration, rec.Analysis, rec.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert diagnosis: %w", err)
		}
		return nil
	})
}

func (s *sqlStore) AddAssessment(ctx context.Context, userID string, rec models.AssessmentRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	answersJSON, err := json.Marshal(rec.Answers)
	if err != nil {
		return fmt.Errorf("marshal assessment answers: %w", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		key, err := s.profileKey(ctx, tx, userID)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, s.q(`
			INSERT INTO assessments (profile_id, answers, score, analysis, created_at)
			VALUES (?, ?, ?, ?, ?)`),
			key, string(answersJSON), rec.Score, rec.Analysis, rec.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert assessment: %w", err)
		}
		return nil
	})
}

func (s *sqlStore) SaveFitnessPlan(ctx context.Context, userID string, p models.FitnessPlan) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		key, err := s.profileKey(ctx, tx, userID)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, s.q(`
			INSERT INTO fitness_plans (profile_id, goal, activity_level, days_per_week, minutes_per_session, plan, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`),
			key, p.Goal, p.ActivityLevel, p.DaysPerWeek, p.MinutesPerSession, p.Plan, p.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert fitness plan: %w", err)
		}
		return nil
	})
}

func (s *sqlStore) SaveMealPlan(ctx context.Context, userID string, p models.MealPlan) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		key, err := s.profileKey(ctx, tx, userID)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, s.q(`
			INSERT INTO meal_plans (profile_id, diet_preference, health_goal, meals_per_day, plan, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`),
			key, p.DietPreference, p.HealthGoal, p.MealsPerDay, p.Plan, p.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert meal plan: %w", err)
		}
		return nil
	})
}

// UpsertCycle updates the user's cycle row if one exists, otherwise inserts it.
func (s *sqlStore) UpsertCycle(ctx context.Context, userID string, rec models.CycleRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		key, err := s.profileKey(ctx, tx, userID)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, s.q(`
			UPDATE menstrual_cycles SET last_period_start = ?, cycle_length = ?, next_period_start = ?, updated_at = ?
			WHERE profile_id = ?`),
			rec.LastPeriodStart, rec.CycleLength, rec.NextPeriodStart, rec.UpdatedAt, key)
		if err != nil {
			return fmt.Errorf("update cycle: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx, s.q(`
			INSERT INTO menstrual_cycles (profile_id, last_period_start, cycle_length, next_period_start, updated_at)
			VALUES (?, ?, ?, ?, ?)`),
			key, rec.LastPeriodStart, rec.CycleLength, rec.NextPeriodStart, rec.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert cycle: %w", err)
		}
		return nil
	})
}

// UpsertMedicationReminder updates the reminder with the same (case-insensitive) name, otherwise inserts it.
func (s *sqlStore) UpsertMedicationReminder(ctx context.Context, userID string, m models.MedicationReminder) error {
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		key, err := s.profileKey(ctx, tx, userID)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, s.q(`
			UPDATE medication_reminders SET name = ?, dosage = ?, frequency = ?, time_of_day = ?, updated_at = ?
			WHERE profile_id = ? AND LOWER(name) = LOWER(?)`),
			m.Name, m.Dosage, m.Frequency, m.TimeOfDay, m.UpdatedAt, key, m.Name)
		if err != nil {
			return fmt.Errorf("update medication reminder: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx, s.q(`
			INSERT INTO medication_reminders (profile_id, name, dosage, frequency, time_of_day, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`),
			key, m.Name, m.Dosage, m.Frequency, m.TimeOfDay, m.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert medication reminder: %w", err)
		}
		return nil
	})
}

func (s *sqlStore) GetLatestFitnessPlan(ctx context.Context, userID string) (models.FitnessPlan, error) {
	var p models.FitnessPlan
	key, err := s.profileKey(ctx, s.db, userID)
	if err != nil {
		return p, err
	}
	err = s.db.QueryRowContext(ctx, s.q(`
		SELECT goal, activity_level, days_per_week, minutes_per_session, plan, created_at
		FROM fitness_plans WHERE profile_id = ? ORDER BY id DESC LIMIT 1`), key).
		Scan(&p.Goal, &p.ActivityLevel, &p.DaysPerWeek, &p.MinutesPerSession, &p.Plan, &p.CreatedAt)
	if err != nil {
		return p, notFound(err, ErrNotFound, "get latest fitness plan")
	}
	return p, nil
}

func (s *sqlStore) GetLatestMealPlan(ctx context.Context, userID string) (models.MealPlan, error) {
	var p models.MealPlan
	key, err := s.profileKey(ctx, s.db, userID)
	if err != nil {
		return p, err
	}
	err = s.db.QueryRowContext(ctx, s.q(`
		SELECT diet_preference, health_goal, meals_per_day, plan, created_at
		FROM meal_plans WHERE profile_id = ? ORDER BY id DESC LIMIT 1`), key).
		Scan(&p.DietPreference, &p.HealthGoal, &p.MealsPerDay, &p.Plan, &p.CreatedAt)
	if err != nil {
		return p, notFound(err, ErrNotFound, "get latest meal plan")
	}
	return p, nil
}

func (s *sqlStore) GetCycle(ctx context.Context, userID string) (models.CycleRecord, error) {
	var rec models.CycleRecord
	key, err := s.profileKey(ctx, s.db, userID)
	if err != nil {
		return rec, err
	}
	err = s.db.QueryRowContext(ctx, s.q(`
		SELECT last_period_start, cycle_length, next_period_start, updated_at
		FROM menstrual_cycles WHERE profile_id = ?`), key).
		Scan(&rec.LastPeriodStart, &rec.CycleLength, &rec.NextPeriodStart, &rec.UpdatedAt)
	if err != nil {
		return rec, notFound(err, ErrNotFound, "get cycle")
	}
	return rec, nil
}

func (s *sqlStore) ListMedicationReminders(ctx context.Context, userID string) ([]models.MedicationReminder, error) {
	key, err := s.profileKey(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT name, dosage, frequency, time_of_day, updated_at
		FROM medication_reminders WHERE profile_id = ? ORDER BY id`), key)
	if err != nil {
		slog.Error(s.name+" ListMedicationReminders query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query medication reminders: %w", err)
	}
	defer rows.Close()

	var meds []models.MedicationReminder
	for rows.Next() {
		var m models.MedicationReminder
		if err := rows.Scan(&m.Name, &m.Dosage, &m.Frequency, &m.TimeOfDay, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan medication reminder row: %w", err)
		}
		meds = append(meds, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate medication reminder rows: %w", err)
	}
	slog.Debug(s.name+" ListMedicationReminders succeeded", "userID", userID, "count", len(meds))
	return meds, nil
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	slog.Debug("Closing " + s.name + " database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close "+s.name+" database", "error", err)
	}
	return err
}
