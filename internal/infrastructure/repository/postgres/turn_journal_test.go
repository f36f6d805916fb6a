package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/nutrition-assistant/internal/core/domain"
)

func newJournalWithMock(t *testing.T) (*TurnJournal, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewTurnJournal(db), mock, func() { _ = db.Close() }
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	journal, mock, done := newJournalWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs(schemaLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS assistant_turns").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := journal.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRecordInsertsTurn(t *testing.T) {
	journal, mock, done := newJournalWithMock(t)
	defer done()

	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO assistant_turns").
		WithArgs("t1", "X", "Phở bò bao nhiêu calo?", "Khoảng 450 kcal.", "NEW_TOPIC", "corpus", "answered", 3, at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := journal.Record(context.Background(), domain.TurnRecord{
		TurnID:        "t1",
		SessionID:     "X",
		Question:      "Phở bò bao nhiêu calo?",
		Answer:        "Khoảng 450 kcal.",
		Intent:        domain.IntentNewTopic,
		Path:          domain.PathCorpus,
		Outcome:       domain.OutcomeAnswered,
		EvidenceCount: 3,
		CreatedAt:     at,
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRecordFailureIsTemporary(t *testing.T) {
	journal, mock, done := newJournalWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO assistant_turns").WillReturnError(errors.New("connection reset"))

	err := journal.Record(context.Background(), domain.TurnRecord{TurnID: "t1", SessionID: "X"})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

func TestListBySessionClampsLimit(t *testing.T) {
	journal, mock, done := newJournalWithMock(t)
	defer done()

	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"turn_id", "session_id", "question", "answer", "intent", "path", "outcome", "evidence_count", "created_at",
	}).
		AddRow("t2", "X", "q2", "a2", "FOLLOWUP", "scan", "answered", 0, at.Add(time.Minute)).
		AddRow("t1", "X", "q1", "a1", "NEW_TOPIC", "corpus", "no_evidence", 0, at)
	mock.ExpectQuery("SELECT turn_id, session_id").
		WithArgs("X", maxListLimit).
		WillReturnRows(rows)

	got, err := journal.ListBySession(context.Background(), "X", 10_000)
	if err != nil {
		t.Fatalf("ListBySession() error = %v", err)
	}
	if len(got) != 2 || got[0].TurnID != "t2" || got[0].Path != domain.PathScan || got[1].Outcome != domain.OutcomeNoEvidence {
		t.Fatalf("unexpected records %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
