package toc

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/matchdesk/toc/pkg/api"
)

type LedgerEntry struct {
	ID          string     `json:"id,omitempty"`
	PlayerID    string     `json:"player_id"`
	Description string     `json:"description"`
	AmountCents int64      `json:"amount_cents"`
	Paid        bool       `json:"paid"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
}

type Receipt struct {
	ID       string `json:"id"`
	EntryID  string `json:"entry_id"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

type PaymentsService struct {
	api    *api.Client
	teamID string
}

func NewPaymentsService(client *api.Client, teamID string) *PaymentsService {
	return &PaymentsService{api: client, teamID: teamID}
}

func (s *PaymentsService) path(suffix string) string {
	return fmt.Sprintf("/api/teams/%s/payments%s", url.PathEscape(s.teamID), suffix)
}

func (s *PaymentsService) Ledger(ctx context.Context) ([]LedgerEntry, error) {
	var entries []LedgerEntry
	if err := s.api.Get(ctx, s.path(""), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *PaymentsService) Record(ctx context.Context, entry LedgerEntry) (LedgerEntry, error) {
	var created LedgerEntry
	if err := s.api.Post(ctx, s.path(""), entry, &created); err != nil {
		return LedgerEntry{}, err
	}
	return created, nil
}

func (s *PaymentsService) MarkPaid(ctx context.Context, entryID string) (LedgerEntry, error) {
	var updated LedgerEntry
	path := s.path("/" + url.PathEscape(entryID) + "/paid")
	if err := s.api.Put(ctx, path, nil, &updated); err != nil {
		return LedgerEntry{}, err
	}
	return updated, nil
}

// UploadReceipt attaches a receipt file to a ledger entry. The body goes out
// as multipart form data since it carries a file.
func (s *PaymentsService) UploadReceipt(ctx context.Context, entryID, filename string, file io.Reader, note string) (Receipt, error) {
	form := api.NewForm().
		AddField("entry_id", entryID).
		AddField("note", note).
		AddFile("receipt", filename, file)

	var receipt Receipt
	if err := s.api.Upload(ctx, s.path("/receipts"), form, &receipt); err != nil {
		return Receipt{}, err
	}
	return receipt, nil
}
