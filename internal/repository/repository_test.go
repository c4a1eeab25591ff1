package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-engine/internal/db"
	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/repository"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(ctx, db.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.EnsureSchema(ctx))
	return conn
}

func createSender(t *testing.T, repo *repository.SenderRepository, email string) *model.Sender {
	t.Helper()
	s := &model.Sender{
		Email:         email,
		FullName:      "Ada Lovelace",
		DailyCap:      20,
		EmailTemplate: "Hi {Name}",
		LedgerID:      "sheet-1",
	}
	require.NoError(t, repo.Create(context.Background(), s))
	return s
}

func TestSenderRepository_CreateAndGet(t *testing.T) {
	conn := openTestDB(t)
	repo := &repository.SenderRepository{DB: conn}

	s := createSender(t, repo, "ada@example.com")
	assert.NotZero(t, s.ID)

	got, err := repo.GetByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", got.Email)
	assert.Equal(t, "Ada Lovelace", got.FullName)
	assert.Equal(t, 20, got.DailyCap)
	assert.Equal(t, "sheet-1", got.LedgerID)
	assert.False(t, got.Paused)
	assert.Nil(t, got.UpdatedAt)
}

func TestSenderRepository_GetByIDMissing(t *testing.T) {
	repo := &repository.SenderRepository{DB: openTestDB(t)}

	_, err := repo.GetByID(context.Background(), 42)
	require.Error(t, err)
	assert.True(t, appErrors.IsSenderNotFound(err))
}

func TestSenderRepository_SetPaused(t *testing.T) {
	conn := openTestDB(t)
	repo := &repository.SenderRepository{DB: conn}
	ctx := context.Background()
	s := createSender(t, repo, "ada@example.com")

	require.NoError(t, repo.SetPaused(ctx, s.ID, true))
	got, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, got.Paused)
	assert.NotNil(t, got.UpdatedAt)

	require.NoError(t, repo.SetPaused(ctx, s.ID, false))
	got, err = repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, got.Paused)

	err = repo.SetPaused(ctx, 999, true)
	assert.True(t, appErrors.IsSenderNotFound(err))
}

func TestSenderRepository_ListAllOrdered(t *testing.T) {
	conn := openTestDB(t)
	repo := &repository.SenderRepository{DB: conn}
	first := createSender(t, repo, "a@example.com")
	second := createSender(t, repo, "b@example.com")
	require.NoError(t, repo.SetPaused(context.Background(), second.ID, true))

	senders, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, senders, 2)
	assert.Equal(t, first.ID, senders[0].ID)
	assert.Equal(t, second.ID, senders[1].ID)
	assert.True(t, senders[1].Paused)
}

func TestEmailLogRepository_CountSince(t *testing.T) {
	conn := openTestDB(t)
	senders := &repository.SenderRepository{DB: conn}
	logs := &repository.EmailLogRepository{DB: conn}
	ctx := context.Background()
	s := createSender(t, senders, "ada@example.com")
	other := createSender(t, senders, "bob@example.com")

	midnight := time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local)
	entries := []model.EmailLog{
		{SenderID: s.ID, ToEmail: "x@example.com", Status: model.LogStatusSent, SentAt: midnight.Add(-time.Minute)},
		{SenderID: s.ID, ToEmail: "y@example.com", Status: model.LogStatusSent, SentAt: midnight},
		{SenderID: s.ID, ToEmail: "z@example.com", Status: model.LogStatusBounced, SentAt: midnight.Add(3 * time.Hour)},
		{SenderID: other.ID, ToEmail: "w@example.com", Status: model.LogStatusSent, SentAt: midnight.Add(time.Hour)},
	}
	for i := range entries {
		require.NoError(t, logs.Append(ctx, &entries[i]))
		assert.NotZero(t, entries[i].ID)
	}

	count, err := logs.CountSince(ctx, s.ID, midnight)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = logs.CountSince(ctx, other.ID, midnight)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEmailLogRepository_ListBySenderNewestFirst(t *testing.T) {
	conn := openTestDB(t)
	senders := &repository.SenderRepository{DB: conn}
	logs := &repository.EmailLogRepository{DB: conn}
	ctx := context.Background()
	s := createSender(t, senders, "ada@example.com")

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.Local)
	for i, to := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		entry := &model.EmailLog{SenderID: s.ID, ToEmail: to, Status: model.LogStatusSent, SentAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, logs.Append(ctx, entry))
	}

	got, err := logs.ListBySender(ctx, s.ID, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c@example.com", got[0].ToEmail)
	assert.Equal(t, "b@example.com", got[1].ToEmail)
	assert.Equal(t, base.Add(2*time.Minute).Unix(), got[0].SentAt.Unix())
}

func TestEmailLogRepository_AppendStampsTime(t *testing.T) {
	conn := openTestDB(t)
	s := createSender(t, &repository.SenderRepository{DB: conn}, "ada@example.com")
	logs := &repository.EmailLogRepository{DB: conn}

	entry := &model.EmailLog{SenderID: s.ID, ToEmail: "a@example.com", Status: model.LogStatusReplied}
	require.NoError(t, logs.Append(context.Background(), entry))
	assert.False(t, entry.SentAt.IsZero())
}

func TestContactRepository_ReadAndWrite(t *testing.T) {
	conn := openTestDB(t)
	s := createSender(t, &repository.SenderRepository{DB: conn}, "ada@example.com")
	contacts := &repository.ContactRepository{DB: conn}
	ctx := context.Background()

	require.NoError(t, contacts.Insert(ctx, s.ID, model.ContactRow{Position: 3, Email: "c@example.com", Name: "Cleo"}))
	require.NoError(t, contacts.Insert(ctx, s.ID, model.ContactRow{Position: 2, Email: "b@example.com", Company: "Acme"}))

	require.NoError(t, contacts.WriteCell(ctx, s, 2, model.FieldFollowupCount, "1"))
	require.NoError(t, contacts.WriteCell(ctx, s, 2, model.FieldLastSentDate, "2024-03-01"))
	require.NoError(t, contacts.WriteCell(ctx, s, 2, model.FieldStatus, "Sent"))
	require.NoError(t, contacts.WriteCell(ctx, s, 2, model.FieldNextSendDate, "2024-03-08"))
	require.NoError(t, contacts.WriteCell(ctx, s, 3, model.FieldBounced, "true"))

	rows, err := contacts.ReadAllRows(ctx, s)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, model.ContactRow{
		Position:      2,
		Email:         "b@example.com",
		Company:       "Acme",
		Status:        "Sent",
		FollowupCount: 1,
		LastSentDate:  "2024-03-01",
		NextSendDate:  "2024-03-08",
	}, rows[0])
	assert.Equal(t, 3, rows[1].Position)
	assert.True(t, rows[1].Bounced)
	assert.False(t, rows[1].Replied)
}

func TestContactRepository_WriteCellErrors(t *testing.T) {
	conn := openTestDB(t)
	s := createSender(t, &repository.SenderRepository{DB: conn}, "ada@example.com")
	contacts := &repository.ContactRepository{DB: conn}
	ctx := context.Background()
	require.NoError(t, contacts.Insert(ctx, s.ID, model.ContactRow{Position: 2, Email: "b@example.com"}))

	err := contacts.WriteCell(ctx, s, 2, model.LedgerField("email; DROP TABLE contacts"), "x")
	var unknown *appErrors.ErrUnknownField
	assert.ErrorAs(t, err, &unknown)

	assert.Error(t, contacts.WriteCell(ctx, s, 2, model.FieldFollowupCount, "two"))
	assert.Error(t, contacts.WriteCell(ctx, s, 99, model.FieldStatus, "Sent"))
}
