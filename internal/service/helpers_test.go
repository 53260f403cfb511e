package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/civic_complaints/backend/internal/ai"
	"github.com/civic_complaints/backend/internal/db"
	"github.com/civic_complaints/backend/internal/models"
	"github.com/civic_complaints/backend/internal/notify"
	"github.com/civic_complaints/backend/internal/taxonomy"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

type fakeProvider struct {
	mu         sync.Mutex
	text       ai.Prediction
	textErr    error
	images     map[string]ai.Prediction
	imageErr   error
	textCalls  int
	imageCalls int
}

func (f *fakeProvider) ClassifyText(context.Context, string) (ai.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.textCalls++
	return f.text, f.textErr
}

func (f *fakeProvider) ClassifyImage(_ context.Context, ref string) (ai.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imageCalls++
	if f.imageErr != nil {
		return ai.Prediction{}, f.imageErr
	}
	return f.images[ref], nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Assignment
	err  error
}

func (r *recordingNotifier) NotifyAssignment(_ context.Context, a notify.Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, a)
	return r.err
}

func keywordClassifier() *ContentClassifier {
	return &ContentClassifier{Taxonomy: taxonomy.Default(), Logger: zerolog.Nop()}
}

func newExecutor(store *db.MemoryStore, n notify.Notifier) *AssignmentExecutor {
	return &AssignmentExecutor{Store: store, Notifier: n, Logger: zerolog.Nop(), Now: fixedNow}
}

func newSelector() AssignmentSelector {
	return AssignmentSelector{Weights: DefaultSelectorWeights(), Taxonomy: taxonomy.Default(), Now: fixedNow}
}

func newProcessing(store *db.MemoryStore, n notify.Notifier) *ProcessingService {
	return &ProcessingService{
		Store:      store,
		Classifier: keywordClassifier(),
		Scorer:     PriorityScorer{Taxonomy: taxonomy.Default()},
		Selector:   newSelector(),
		Executor:   newExecutor(store, n),
		Logger:     zerolog.Nop(),
		Now:        fixedNow,
		Workers:    4,
	}
}

func addStaff(t *testing.T, store *db.MemoryStore, staff ...models.StaffMember) {
	t.Helper()
	for i := range staff {
		staff[i].Active = true
		if staff[i].RegisteredAt.IsZero() {
			staff[i].RegisteredAt = testNow.Add(-time.Duration(365-i) * 24 * time.Hour)
		}
	}
	_, err := store.InsertStaff(context.Background(), staff)
	require.NoError(t, err)
}

func addComplaints(t *testing.T, store *db.MemoryStore, complaints ...models.Complaint) {
	t.Helper()
	for i := range complaints {
		if complaints[i].CreatedAt.IsZero() {
			complaints[i].CreatedAt = testNow.Add(time.Duration(i) * time.Minute)
		}
	}
	_, err := store.InsertComplaints(context.Background(), complaints)
	require.NoError(t, err)
}

// assignDirect puts a complaint on a staff member without capacity checks.
func assignDirect(t *testing.T, store *db.MemoryStore, complaintID, staffID string, at time.Time) {
	t.Helper()
	_, err := store.ApplyAssignment(context.Background(), models.AssignmentWrite{
		ComplaintID: complaintID,
		StaffID:     staffID,
		At:          at,
		Audit:       models.AuditEntry{ID: "seed-" + complaintID, ComplaintID: complaintID, Action: models.ActionManualAssign},
	})
	require.NoError(t, err)
}
