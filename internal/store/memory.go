package store

import (
	"context"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/HealthPipe/internal/models"
)

type memoryUser struct {
	profile     models.UserProfile
	diagnoses   []models.DiagnosisRecord
	assessments []models.AssessmentRecord
	fitness     []models.FitnessPlan
	meals       []models.MealPlan
	cycle       *models.CycleRecord
	medications []models.MedicationReminder
}

// InMemoryStore keeps every record in process memory. Data is lost on restart.
type InMemoryStore struct {
	mu    sync.RWMutex
	users map[string]*memoryUser
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{users: make(map[string]*memoryUser)}
}

// user must be called with s.mu held.
func (s *InMemoryStore) user(userID string) (*memoryUser, error) {
	u, ok := s.users[userID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return u, nil
}

func (s *InMemoryStore) UserExists(ctx context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[userID]
	return ok, nil
}

func (s *InMemoryStore) CreateProfile(ctx context.Context, profile models.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[profile.UserID]; ok {
		return ErrProfileExists
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now()
	}
	s.users[profile.UserID] = &memoryUser{profile: profile}
	return nil
}

func (s *InMemoryStore) GetCycleProfile(ctx context.Context, userID string) (models.CycleProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, err := s.user(userID)
	if err != nil {
		return models.CycleProfile{}, err
	}
	return models.CycleProfile{Sex: u.profile.Sex, CycleType: u.profile.CycleType}, nil
}

func (s *InMemoryStore) AddDiagnosis(ctx context.Context, userID string, rec models.DiagnosisRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.user(userID)
	if err != nil {
		return err
	}
	u.diagnoses = append(u.diagnoses, rec)
	return nil
}

func (s *InMemoryStore) AddAssessment(ctx context.Context, userID string, rec models.AssessmentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.user(userID)
	if err != nil {
		return err
	}
	answers := make(map[string]string, len(rec.Answers))
	maps.Copy(answers, rec.Answers)
	rec.Answers = answers
	u.assessments = append(u.assessments, rec)
	return nil
}

func (s *InMemoryStore) SaveFitnessPlan(ctx context.Context, userID string, plan models.FitnessPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.user(userID)
	if err != nil {
		return err
	}
	u.fitness = append(u.fitness, plan)
	return nil
}

func (s *InMemoryStore) SaveMealPlan(ctx context.Context, userID string, plan models.MealPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.user(userID)
	if err != nil {
		return err
	}
	u.meals = append(u.meals, plan)
	return nil
}

func (s *InMemoryStore) UpsertCycle(ctx context.Context, userID string, rec models.CycleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.user(userID)
	if err != nil {
		return err
	}
	u.cycle = &rec
	return nil
}

func (s *InMemoryStore) UpsertMedicationReminder(ctx context.Context, userID string, med models.MedicationReminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, err := s.user(userID)
	if err != nil {
		return err
	}
	for i := range u.medications {
		if strings.EqualFold(u.medications[i].Name, med.Name) {
			u.medications[i] = med
			return nil
		}
	}
	u.medications = append(u.medications, med)
	return nil
}

func (s *InMemoryStore) GetLatestFitnessPlan(ctx context.Context, userID string) (models.FitnessPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, err := s.user(userID)
	if err != nil {
		return models.FitnessPlan{}, err
	}
	if len(u.fitness) == 0 {
		return models.FitnessPlan{}, ErrNotFound
	}
	return u.fitness[len(u.fitness)-1], nil
}

func (s *InMemoryStore) GetLatestMealPlan(ctx context.Context, userID string) (models.MealPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, err := s.user(userID)
	if err != nil {
		return models.MealPlan{}, err
	}
	if len(u.meals) == 0 {
		return models.MealPlan{}, ErrNotFound
	}
	return u.meals[len(u.meals)-1], nil
}

func (s *InMemoryStore) GetCycle(ctx context.Context, userID string) (models.CycleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, err := s.user(userID)
	if err != nil {
		return models.CycleRecord{}, err
	}
	if u.cycle == nil {
		return models.CycleRecord{}, ErrNotFound
	}
	return *u.cycle, nil
}

func (s *InMemoryStore) ListMedicationReminders(ctx context.Context, userID string) ([]models.MedicationReminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, err := s.user(userID)
	if err != nil {
		return nil, err
	}
	out := make([]models.MedicationReminder, len(u.medications))
	copy(out, u.medications)
	return out, nil
}

// DiagnosisCount returns how many diagnoses were stored for a user (for tests).
func (s *InMemoryStore) DiagnosisCount(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[userID]; ok {
		return len(u.diagnoses)
	}
	return 0
}

// Assessments returns the stored assessments for a user (for tests).
func (s *InMemoryStore) Assessments(userID string) []models.AssessmentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil
	}
	out := make([]models.AssessmentRecord, len(u.assessments))
	copy(out, u.assessments)
	return out
}

// Profile returns the stored profile for a user (for tests).
func (s *InMemoryStore) Profile(userID string) (models.UserProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return models.UserProfile{}, false
	}
	return u.profile, true
}

func (s *InMemoryStore) Close() error {
	return nil
}
