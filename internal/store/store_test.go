package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/coldpost/coldpost/internal/domain"
)

// =============================================================================
// STORE TESTS
// =============================================================================

func setupTestStore(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return New(db), mock, func() { db.Close() }
}

func TestTransitionCampaign_Success(t *testing.T) {
	s, mock, cleanup := setupTestStore(t)
	defer cleanup()

	mock.ExpectExec("UPDATE coldpost_campaigns").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.TransitionCampaign(context.Background(), "c1",
		[]domain.CampaignStatus{domain.CampaignDraft, domain.CampaignScheduled}, domain.CampaignRunning)
	if err != nil {
		t.Errorf("TransitionCampaign() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestTransitionCampaign_Precondition(t *testing.T) {
	s, mock, cleanup := setupTestStore(t)
	defer cleanup()

	// CAS finds the campaign in a different state: zero rows updated.
	mock.ExpectExec("UPDATE coldpost_campaigns").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.TransitionCampaign(context.Background(), "c1",
		[]domain.CampaignStatus{domain.CampaignRunning}, domain.CampaignPaused)
	if !errors.Is(err, ErrPrecondition) {
		t.Errorf("expected ErrPrecondition, got %v", err)
	}
}

func TestTryConsumeDailyQuota(t *testing.T) {
	s, mock, cleanup := setupTestStore(t)
	defer cleanup()

	day := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Under the limit: one row affected, quota granted.
	mock.ExpectExec("INSERT INTO coldpost_daily_quotas").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := s.TryConsumeDailyQuota(context.Background(), "acct-1", day)
	if err != nil {
		t.Fatalf("TryConsumeDailyQuota() error: %v", err)
	}
	if !ok {
		t.Error("expected quota granted")
	}

	// At the limit: guarded upsert touches no rows.
	mock.ExpectExec("INSERT INTO coldpost_daily_quotas").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err = s.TryConsumeDailyQuota(context.Background(), "acct-1", day)
	if err != nil {
		t.Fatalf("TryConsumeDailyQuota() error: %v", err)
	}
	if ok {
		t.Error("expected quota denied at limit")
	}
}

func TestRefundDailyQuota(t *testing.T) {
	s, mock, cleanup := setupTestStore(t)
	defer cleanup()

	mock.ExpectExec("UPDATE coldpost_daily_quotas").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.RefundDailyQuota(context.Background(), "acct-1", time.Now()); err != nil {
		t.Errorf("RefundDailyQuota() error: %v", err)
	}
}

func TestRecordAttemptOutcome_SentAndCompletes(t *testing.T) {
	s, mock, cleanup := setupTestStore(t)
	defer cleanup()

	mock.ExpectBegin()
	// Campaign row lock: 2 recipients, 1 already accounted for.
	mock.ExpectQuery("SELECT status, total_recipients").
		WillReturnRows(sqlmock.NewRows(
			[]string{"status", "total_recipients", "sent_count", "failed_count", "bounce_count"}).
			AddRow("running", 2, 1, 0, 0))
	mock.ExpectExec("UPDATE coldpost_email_logs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE coldpost_campaign_recipients").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE coldpost_campaigns").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Final outcome: campaign flips to completed.
	mock.ExpectExec("UPDATE coldpost_campaigns").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	snap, err := s.RecordAttemptOutcome(context.Background(), AttemptOutcome{
		EmailLogID:  "log-2",
		CampaignID:  "c1",
		RecipientID: "r2",
		Sent:        true,
		MessageID:   "<abc@coldpost>",
		Subject:     "Hi Ben",
	})
	if err != nil {
		t.Fatalf("RecordAttemptOutcome() error: %v", err)
	}
	if snap.SentCount != 2 || snap.FailedCount != 0 {
		t.Errorf("snapshot counters = %d/%d, want 2/0", snap.SentCount, snap.FailedCount)
	}
	if !snap.Completed {
		t.Error("expected campaign completion on final outcome")
	}
	if snap.BounceRate != 0 {
		t.Errorf("bounce rate = %v, want 0", snap.BounceRate)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRecordAttemptOutcome_HardBounceRate(t *testing.T) {
	s, mock, cleanup := setupTestStore(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT status, total_recipients").
		WillReturnRows(sqlmock.NewRows(
			[]string{"status", "total_recipients", "sent_count", "failed_count", "bounce_count"}).
			AddRow("running", 1, 0, 0, 0))
	mock.ExpectExec("UPDATE coldpost_email_logs").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE coldpost_campaign_recipients").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE coldpost_campaigns").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE coldpost_campaigns").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	snap, err := s.RecordAttemptOutcome(context.Background(), AttemptOutcome{
		EmailLogID:   "log-1",
		CampaignID:   "c1",
		RecipientID:  "r1",
		Sent:         false,
		Bounced:      true,
		ErrorMessage: "550 user unknown",
		BounceReason: "hard",
	})
	if err != nil {
		t.Fatalf("RecordAttemptOutcome() error: %v", err)
	}
	if snap.BounceCount != 1 {
		t.Errorf("bounce count = %d, want 1", snap.BounceCount)
	}
	if snap.BounceRate != 100 {
		t.Errorf("bounce rate = %v, want 100", snap.BounceRate)
	}
	if !snap.Completed {
		t.Error("single-recipient campaign should complete after its only outcome")
	}
}

func TestDeleteSmtpAccount_InUse(t *testing.T) {
	s, mock, cleanup := setupTestStore(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := s.DeleteSmtpAccount(context.Background(), "u1", "acct-1")
	if !errors.Is(err, ErrAccountInUse) {
		t.Errorf("expected ErrAccountInUse, got %v", err)
	}
}

func TestListEmailLogs_ForeignCampaign(t *testing.T) {
	s, mock, cleanup := setupTestStore(t)
	defer cleanup()

	mock.ExpectQuery("SELECT EXISTS").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, _, err := s.ListEmailLogs(context.Background(), "u1", "c-foreign", "", 50, 0)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetUserByEmail_NotFound(t *testing.T) {
	s, mock, cleanup := setupTestStore(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM coldpost_users").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetUserByEmail(context.Background(), "ghost@example.com")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestClaimNextBatch_AssignsSequence(t *testing.T) {
	s, mock, cleanup := setupTestStore(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT claim_seq FROM coldpost_campaigns").
		WillReturnRows(sqlmock.NewRows([]string{"claim_seq"}).AddRow(int64(5)))
	mock.ExpectQuery("SELECT id, email, first_name").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "email", "first_name", "last_name", "variables", "status"}).
			AddRow("r1", "a@x.com", "Ada", "", []byte(`{"company":"X"}`), "pending").
			AddRow("r2", "b@y.com", "Ben", "", []byte(`{}`), "pending"))
	mock.ExpectExec("UPDATE coldpost_campaign_recipients").
		WithArgs(int64(6), "r1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE coldpost_campaign_recipients").
		WithArgs(int64(7), "r2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE coldpost_campaigns SET claim_seq").
		WithArgs(int64(7), "c1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	claimed, err := s.ClaimNextBatch(context.Background(), "c1", 100)
	if err != nil {
		t.Fatalf("ClaimNextBatch() error: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("claimed %d recipients, want 2", len(claimed))
	}
	if claimed[0].Seq != 6 || claimed[1].Seq != 7 {
		t.Errorf("sequence = %d,%d, want 6,7", claimed[0].Seq, claimed[1].Seq)
	}
	if claimed[0].Status != domain.RecipientQueued {
		t.Errorf("claimed status = %s, want queued", claimed[0].Status)
	}
	if claimed[0].Variables["company"] != "X" {
		t.Errorf("variables not carried through claim")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
