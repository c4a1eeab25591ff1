package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
)

const sheetsScope = "https://www.googleapis.com/auth/spreadsheets"

// SheetsStore keeps contact ledgers in Google Sheets. Sender.LedgerID is the
// spreadsheet ID and Sender.LedgerTab the sheet name.
type SheetsStore struct {
	svc        *sheets.Service
	defaultTab string
	log        *zap.Logger
}

// NewSheetsStore authenticates with a service account key.
func NewSheetsStore(ctx context.Context, serviceAccountJSON []byte, defaultTab string, logger *zap.Logger) (*SheetsStore, error) {
	cfg, err := google.JWTConfigFromJSON(serviceAccountJSON, sheetsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT config: %w", err)
	}
	return NewSheetsStoreWithOptions(ctx, defaultTab, logger, option.WithHTTPClient(cfg.Client(ctx)))
}

// NewSheetsStoreWithOptions builds the store from raw client options.
func NewSheetsStoreWithOptions(ctx context.Context, defaultTab string, logger *zap.Logger, opts ...option.ClientOption) (*SheetsStore, error) {
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	if defaultTab == "" {
		defaultTab = "Sheet1"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SheetsStore{svc: svc, defaultTab: defaultTab, log: logger}, nil
}

func (s *SheetsStore) tab(sender *model.Sender) string {
	if sender.LedgerTab != "" {
		return sender.LedgerTab
	}
	return s.defaultTab
}

// ReadAllRows reads every data row of the sender's sheet. Rows whose
// followup count cannot be parsed are logged and left out.
func (s *SheetsStore) ReadAllRows(ctx context.Context, sender *model.Sender) ([]model.ContactRow, error) {
	if !sender.HasLedger() {
		return nil, appErrors.ErrLedgerNotConfigured
	}
	readRange := fmt.Sprintf("%s!A%d:K", s.tab(sender), FirstDataRow)
	resp, err := s.svc.Spreadsheets.Values.Get(sender.LedgerID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sender.LedgerID, err)
	}

	rows := make([]model.ContactRow, 0, len(resp.Values))
	for i, values := range resp.Values {
		position := FirstDataRow + i
		cells := make([]string, len(values))
		for j, v := range values {
			cells[j] = fmt.Sprint(v)
		}
		row, err := ParseRow(position, cells)
		if err != nil {
			s.log.Warn("skipping ledger row",
				zap.Int("sender_id", sender.ID),
				zap.Int("position", position),
				zap.Error(err))
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteCell writes value verbatim into one cell.
func (s *SheetsStore) WriteCell(ctx context.Context, sender *model.Sender, position int, field model.LedgerField, value string) error {
	if !sender.HasLedger() {
		return appErrors.ErrLedgerNotConfigured
	}
	cellRange, err := CellRange(s.tab(sender), position, field)
	if err != nil {
		return err
	}
	vr := &sheets.ValueRange{Values: [][]interface{}{{value}}}
	_, err = s.svc.Spreadsheets.Values.Update(sender.LedgerID, cellRange, vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("write %s: %w", cellRange, err)
	}
	return nil
}

var _ Store = (*SheetsStore)(nil)
