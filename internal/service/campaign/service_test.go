package campaign_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coldpost/coldpost/internal/apperr"
	"github.com/coldpost/coldpost/internal/domain"
	"github.com/coldpost/coldpost/internal/service/campaign"
	"github.com/coldpost/coldpost/internal/store"
)

// =============================================================================
// CAMPAIGN LIFECYCLE TESTS
// =============================================================================

// memStore is an in-memory Store for exercising the state machine without a
// database.
type memStore struct {
	mu         sync.Mutex
	campaigns  map[string]*domain.Campaign
	recipients map[string][]domain.Recipient
}

func newMemStore() *memStore {
	return &memStore{
		campaigns:  make(map[string]*domain.Campaign),
		recipients: make(map[string][]domain.Recipient),
	}
}

func (m *memStore) ListRecipients(_ context.Context, campaignID string) ([]domain.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recipients[campaignID], nil
}

func (m *memStore) add(c *domain.Campaign) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.campaigns[c.ID] = &cp
}

func (m *memStore) status(id string) domain.CampaignStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.campaigns[id].Status
}

func (m *memStore) CreateCampaign(_ context.Context, c *domain.Campaign, recipients []domain.Recipient) error {
	if c.TemplateID == "missing" {
		return store.ErrValidation
	}
	c.ID = "new-id"
	c.TotalRecipients = len(recipients)
	m.add(c)
	m.mu.Lock()
	m.recipients[c.ID] = recipients
	m.mu.Unlock()
	return nil
}

func (m *memStore) GetCampaign(_ context.Context, userID, id string) (*domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.UserID != userID {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) ListCampaigns(_ context.Context, userID string, status domain.CampaignStatus, limit, offset int) ([]domain.Campaign, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Campaign
	for _, c := range m.campaigns {
		if c.UserID == userID && (status == "" || c.Status == status) {
			out = append(out, *c)
		}
	}
	return out, len(out), nil
}

func (m *memStore) TransitionCampaign(_ context.Context, id string, from []domain.CampaignStatus, to domain.CampaignStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return store.ErrPrecondition
	}
	for _, f := range from {
		if c.Status == f {
			c.Status = to
			return nil
		}
	}
	return store.ErrPrecondition
}

func (m *memStore) RestartCampaign(_ context.Context, id string, from []domain.CampaignStatus) error {
	if err := m.TransitionCampaign(context.Background(), id, from, domain.CampaignRunning); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.campaigns[id]
	c.SentCount, c.FailedCount, c.BounceCount, c.BounceRate = 0, 0, 0, 0
	return nil
}

func (m *memStore) DuplicateCampaign(_ context.Context, userID, id, newName string) (string, error) {
	c, err := m.GetCampaign(context.Background(), userID, id)
	if err != nil {
		return "", err
	}
	cp := *c
	cp.ID = id + "-copy"
	cp.Name = newName
	cp.Status = domain.CampaignDraft
	m.add(&cp)
	return cp.ID, nil
}

func (m *memStore) DeleteCampaign(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok || c.UserID != userID {
		return store.ErrNotFound
	}
	if c.Status == domain.CampaignRunning {
		return store.ErrPrecondition
	}
	delete(m.campaigns, id)
	return nil
}

func (m *memStore) GetCampaignStats(ctx context.Context, userID, id string) (*store.CampaignStats, error) {
	c, err := m.GetCampaign(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return &store.CampaignStats{Campaign: c}, nil
}

func (m *memStore) ListEmailLogs(ctx context.Context, userID, campaignID string, status domain.EmailLogStatus, limit, offset int) ([]domain.EmailLog, int, error) {
	if _, err := m.GetCampaign(ctx, userID, campaignID); err != nil {
		return nil, 0, err
	}
	return nil, 0, nil
}

// fakeJobs records queue interactions.
type fakeJobs struct {
	mu        sync.Mutex
	ticks     []string
	cancelled []string
}

func (f *fakeJobs) EnqueueTick(_ context.Context, campaignID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks = append(f.ticks, campaignID)
	return nil
}

func (f *fakeJobs) CancelPending(_ context.Context, campaignID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, campaignID)
	return 1, nil
}

func setup() (*campaign.Service, *memStore, *fakeJobs) {
	st := newMemStore()
	jobs := &fakeJobs{}
	return campaign.NewService(st, jobs), st, jobs
}

func draftCampaign(id string, recipients int) *domain.Campaign {
	return &domain.Campaign{
		ID:              id,
		UserID:          "user-1",
		Name:            "Launch",
		Status:          domain.CampaignDraft,
		TotalRecipients: recipients,
	}
}

func TestStart_FromDraft(t *testing.T) {
	svc, st, jobs := setup()
	st.add(draftCampaign("c1", 10))

	if err := svc.Start(context.Background(), "user-1", "c1"); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if got := st.status("c1"); got != domain.CampaignRunning {
		t.Errorf("status = %s, want running", got)
	}
	if len(jobs.ticks) != 1 || jobs.ticks[0] != "c1" {
		t.Errorf("ticks = %v, want one tick for c1", jobs.ticks)
	}
}

func TestStart_AlreadyRunningIsNoOp(t *testing.T) {
	svc, st, jobs := setup()
	c := draftCampaign("c1", 10)
	c.Status = domain.CampaignRunning
	st.add(c)

	if err := svc.Start(context.Background(), "user-1", "c1"); err != nil {
		t.Fatalf("Start() on running: %v", err)
	}
	if len(jobs.ticks) != 0 {
		t.Errorf("no tick expected for an already-running campaign, got %v", jobs.ticks)
	}
}

func TestStart_NoRecipients(t *testing.T) {
	svc, st, _ := setup()
	st.add(draftCampaign("c1", 0))

	err := svc.Start(context.Background(), "user-1", "c1")
	if !apperr.Is(err, apperr.Precondition) {
		t.Errorf("Start() with no recipients = %v, want PRECONDITION", err)
	}
}

func TestStart_FromTerminalState(t *testing.T) {
	svc, st, _ := setup()
	c := draftCampaign("c1", 10)
	c.Status = domain.CampaignCompleted
	st.add(c)

	err := svc.Start(context.Background(), "user-1", "c1")
	if !apperr.Is(err, apperr.Precondition) {
		t.Errorf("Start() from completed = %v, want PRECONDITION", err)
	}
}

func TestPause_CancelsPendingJobs(t *testing.T) {
	svc, st, jobs := setup()
	c := draftCampaign("c1", 10)
	c.Status = domain.CampaignRunning
	st.add(c)

	if err := svc.Pause(context.Background(), "user-1", "c1"); err != nil {
		t.Fatalf("Pause() error: %v", err)
	}
	if got := st.status("c1"); got != domain.CampaignPaused {
		t.Errorf("status = %s, want paused", got)
	}
	if len(jobs.cancelled) != 1 {
		t.Errorf("cancelled = %v, want one cancellation", jobs.cancelled)
	}
}

func TestPause_AlreadyPausedIsNoOp(t *testing.T) {
	svc, st, jobs := setup()
	c := draftCampaign("c1", 10)
	c.Status = domain.CampaignPaused
	st.add(c)

	if err := svc.Pause(context.Background(), "user-1", "c1"); err != nil {
		t.Fatalf("Pause() on paused: %v", err)
	}
	if len(jobs.cancelled) != 0 {
		t.Errorf("no cancellation expected, got %v", jobs.cancelled)
	}
}

func TestResume_EnqueuesTick(t *testing.T) {
	svc, st, jobs := setup()
	c := draftCampaign("c1", 10)
	c.Status = domain.CampaignPaused
	st.add(c)

	if err := svc.Resume(context.Background(), "user-1", "c1"); err != nil {
		t.Fatalf("Resume() error: %v", err)
	}
	if got := st.status("c1"); got != domain.CampaignRunning {
		t.Errorf("status = %s, want running", got)
	}
	if len(jobs.ticks) != 1 {
		t.Errorf("ticks = %v, want one", jobs.ticks)
	}
}

func TestStop_FromScheduled(t *testing.T) {
	svc, st, jobs := setup()
	c := draftCampaign("c1", 10)
	c.Status = domain.CampaignScheduled
	st.add(c)

	if err := svc.Stop(context.Background(), "user-1", "c1"); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if got := st.status("c1"); got != domain.CampaignCancelled {
		t.Errorf("status = %s, want cancelled", got)
	}
	if len(jobs.cancelled) != 1 {
		t.Errorf("cancelled = %v, want one cancellation", jobs.cancelled)
	}
}

func TestStop_TerminalRejected(t *testing.T) {
	svc, st, _ := setup()
	c := draftCampaign("c1", 10)
	c.Status = domain.CampaignCompleted
	st.add(c)

	err := svc.Stop(context.Background(), "user-1", "c1")
	if !apperr.Is(err, apperr.Precondition) {
		t.Errorf("Stop() from completed = %v, want PRECONDITION", err)
	}
}

func TestRestart_ResetsAndTicks(t *testing.T) {
	svc, st, jobs := setup()
	c := draftCampaign("c1", 10)
	c.Status = domain.CampaignFailed
	c.SentCount = 7
	st.add(c)

	if err := svc.Restart(context.Background(), "user-1", "c1"); err != nil {
		t.Fatalf("Restart() error: %v", err)
	}
	if got := st.status("c1"); got != domain.CampaignRunning {
		t.Errorf("status = %s, want running", got)
	}
	if len(jobs.cancelled) != 1 || len(jobs.ticks) != 1 {
		t.Errorf("cancelled=%v ticks=%v, want one each", jobs.cancelled, jobs.ticks)
	}
}

func TestRestart_FromRunningRejected(t *testing.T) {
	svc, st, _ := setup()
	c := draftCampaign("c1", 10)
	c.Status = domain.CampaignRunning
	st.add(c)

	err := svc.Restart(context.Background(), "user-1", "c1")
	if !apperr.Is(err, apperr.Precondition) {
		t.Errorf("Restart() from running = %v, want PRECONDITION", err)
	}
}

func TestDelete_RunningForbidden(t *testing.T) {
	svc, st, _ := setup()
	c := draftCampaign("c1", 10)
	c.Status = domain.CampaignRunning
	st.add(c)

	err := svc.Delete(context.Background(), "user-1", "c1")
	if !apperr.Is(err, apperr.Precondition) {
		t.Errorf("Delete() on running = %v, want PRECONDITION", err)
	}
}

func TestDelete_DraftSucceeds(t *testing.T) {
	svc, st, jobs := setup()
	st.add(draftCampaign("c1", 10))

	if err := svc.Delete(context.Background(), "user-1", "c1"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := svc.Get(context.Background(), "user-1", "c1"); !apperr.Is(err, apperr.NotFound) {
		t.Errorf("Get() after delete = %v, want NOT_FOUND", err)
	}
	if len(jobs.cancelled) != 1 {
		t.Errorf("cancelled = %v, want one cancellation", jobs.cancelled)
	}
}

func TestDuplicate_CreatesFreshDraft(t *testing.T) {
	svc, st, _ := setup()
	c := draftCampaign("c1", 10)
	c.Status = domain.CampaignCompleted
	st.add(c)

	dup, err := svc.Duplicate(context.Background(), "user-1", "c1", "Launch v2")
	if err != nil {
		t.Fatalf("Duplicate() error: %v", err)
	}
	if dup.Status != domain.CampaignDraft {
		t.Errorf("duplicate status = %s, want draft", dup.Status)
	}
	if dup.Name != "Launch v2" {
		t.Errorf("duplicate name = %s, want Launch v2", dup.Name)
	}
}

func TestForeignCampaignBehavesLikeMissing(t *testing.T) {
	svc, st, _ := setup()
	c := draftCampaign("c1", 10)
	c.UserID = "someone-else"
	st.add(c)

	if _, err := svc.Get(context.Background(), "user-1", "c1"); !apperr.Is(err, apperr.NotFound) {
		t.Errorf("Get() foreign campaign = %v, want NOT_FOUND", err)
	}
	if err := svc.Start(context.Background(), "user-1", "c1"); !apperr.Is(err, apperr.NotFound) {
		t.Errorf("Start() foreign campaign = %v, want NOT_FOUND", err)
	}
}

func TestCreate_ValidationErrors(t *testing.T) {
	svc, _, _ := setup()

	_, err := svc.Create(context.Background(), "user-1", campaign.CreateInput{})
	if !apperr.Is(err, apperr.Validation) {
		t.Errorf("Create() without name = %v, want VALIDATION", err)
	}

	_, err = svc.Create(context.Background(), "user-1", campaign.CreateInput{
		Name: "x", TemplateID: "missing", SmtpAccountIDs: []string{"a1"},
	})
	if !apperr.Is(err, apperr.Validation) {
		t.Errorf("Create() with bad references = %v, want VALIDATION", err)
	}
}

func TestCreate_ScheduledAtSetsStatus(t *testing.T) {
	svc, _, _ := setup()

	at := time.Now().Add(time.Hour)
	c, err := svc.Create(context.Background(), "user-1", campaign.CreateInput{
		Name: "x", TemplateID: "t1", SmtpAccountIDs: []string{"a1"},
		Recipients:  []domain.Recipient{{Email: "a@example.com"}},
		ScheduledAt: &at,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if c.Status != domain.CampaignScheduled {
		t.Errorf("status = %s, want scheduled", c.Status)
	}
}

func TestRecipients_OwnerScoped(t *testing.T) {
	svc, _, _ := setup()

	c, err := svc.Create(context.Background(), "user-1", campaign.CreateInput{
		Name: "x", TemplateID: "t1", SmtpAccountIDs: []string{"a1"},
		Recipients: []domain.Recipient{{Email: "a@example.com"}, {Email: "b@example.com"}},
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	got, err := svc.Recipients(context.Background(), "user-1", c.ID)
	if err != nil {
		t.Fatalf("Recipients() error: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Recipients() returned %d rows, want 2", len(got))
	}

	if _, err := svc.Recipients(context.Background(), "user-2", c.ID); !apperr.Is(err, apperr.NotFound) {
		t.Errorf("Recipients() foreign campaign = %v, want NOT_FOUND", err)
	}
}
