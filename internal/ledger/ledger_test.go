package ledger_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/ledger"
	"github.com/unclebandit/outreach-engine/internal/model"
)

func TestParseRow(t *testing.T) {
	cells := []string{"jane@acme.io", "Jane", "Acme", "Sent", "", "true", "2", "2024-03-01", "2024-03-08", "", "550 user unknown"}
	row, err := ledger.ParseRow(7, cells)
	require.NoError(t, err)
	assert.Equal(t, model.ContactRow{
		Position:      7,
		Email:         "jane@acme.io",
		Name:          "Jane",
		Company:       "Acme",
		Status:        "Sent",
		Bounced:       true,
		FollowupCount: 2,
		LastSentDate:  "2024-03-01",
		NextSendDate:  "2024-03-08",
		LastError:     "550 user unknown",
	}, row)
}

func TestParseRow_ShortRowAndClamp(t *testing.T) {
	row, err := ledger.ParseRow(2, []string{" bob@x.io "})
	require.NoError(t, err)
	assert.Equal(t, "bob@x.io", row.Email)
	assert.Equal(t, 0, row.FollowupCount)
	assert.False(t, row.Replied)

	row, err = ledger.ParseRow(3, []string{"a@x.io", "", "", "", "TRUE", "", "9"})
	require.NoError(t, err)
	assert.Equal(t, ledger.MaxFollowupCount, row.FollowupCount)
	assert.True(t, row.Replied)
}

func TestParseRow_BadCount(t *testing.T) {
	_, err := ledger.ParseRow(4, []string{"a@x.io", "", "", "", "", "", "two"})
	assert.Error(t, err)

	_, err = ledger.ParseRow(4, []string{"a@x.io", "", "", "", "", "", "-1"})
	assert.Error(t, err)
}

func TestCellRange(t *testing.T) {
	r, err := ledger.CellRange("Leads", 5, model.FieldNextSendDate)
	require.NoError(t, err)
	assert.Equal(t, "Leads!I5", r)

	r, err = ledger.CellRange("Sheet1", 2, model.FieldLastError)
	require.NoError(t, err)
	assert.Equal(t, "Sheet1!K2", r)

	_, err = ledger.CellRange("Sheet1", 2, model.LedgerField("notes"))
	var unknown *appErrors.ErrUnknownField
	assert.ErrorAs(t, err, &unknown)
}

type fakeSheets struct {
	mu      sync.Mutex
	values  [][]string
	updates map[string]string
	paths   []string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, r.URL.Path)
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		json.NewEncoder(w).Encode(map[string]any{"values": f.values})
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		var vr struct {
			Values [][]string `json:"values"`
		}
		json.Unmarshal(body, &vr)
		cell := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		f.updates[cell+"?"+r.URL.Query().Get("valueInputOption")] = vr.Values[0][0]
		w.Write([]byte(`{}`))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestStore(t *testing.T, fake *fakeSheets) *ledger.SheetsStore {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	store, err := ledger.NewSheetsStoreWithOptions(context.Background(), "Sheet1", nil,
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return store
}

func TestSheetsStore_ReadAllRows(t *testing.T) {
	fake := &fakeSheets{
		values: [][]string{
			{"a@x.io", "Ann", "", "", "", "", "0"},
			{"b@x.io", "Ben", "", "", "", "", "oops"},
			{"c@x.io", "Cat", "", "Sent", "", "", "1", "2024-03-01", "2024-03-08"},
		},
		updates: map[string]string{},
	}
	store := newTestStore(t, fake)
	sender := &model.Sender{ID: 1, LedgerID: "sheet-1"}

	rows, err := store.ReadAllRows(context.Background(), sender)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].Position)
	assert.Equal(t, 4, rows[1].Position)
	assert.Equal(t, "2024-03-08", rows[1].NextSendDate)
	require.NotEmpty(t, fake.paths)
	assert.True(t, strings.HasPrefix(fake.paths[0], "/v4/spreadsheets/sheet-1/values/"))
}

func TestSheetsStore_WriteCell(t *testing.T) {
	fake := &fakeSheets{updates: map[string]string{}}
	store := newTestStore(t, fake)
	sender := &model.Sender{ID: 1, LedgerID: "sheet-1", LedgerTab: "Leads"}

	require.NoError(t, store.WriteCell(context.Background(), sender, 3, model.FieldBounced, "TRUE"))
	assert.Equal(t, map[string]string{"Leads!F3?RAW": "TRUE"}, fake.updates)
}

func TestSheetsStore_NoLedger(t *testing.T) {
	store := newTestStore(t, &fakeSheets{updates: map[string]string{}})
	sender := &model.Sender{ID: 1}

	_, err := store.ReadAllRows(context.Background(), sender)
	assert.ErrorIs(t, err, appErrors.ErrLedgerNotConfigured)
	assert.ErrorIs(t, store.WriteCell(context.Background(), sender, 2, model.FieldStatus, "Sent"), appErrors.ErrLedgerNotConfigured)
}
