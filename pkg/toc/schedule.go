package toc

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/adhocore/gronx"

	"github.com/matchdesk/toc/pkg/api"
)

type Match struct {
	ID       string    `json:"id,omitempty"`
	Opponent string    `json:"opponent"`
	Event    string    `json:"event"`
	StartsAt time.Time `json:"starts_at"`
	// Recurrence is a cron expression for repeating fixtures (weekly scrims),
	// empty for one-off matches.
	Recurrence string `json:"recurrence,omitempty"`
}

type ScheduleService struct {
	api    *api.Client
	teamID string
	cron   *gronx.Gronx
}

func NewScheduleService(client *api.Client, teamID string) *ScheduleService {
	return &ScheduleService{api: client, teamID: teamID, cron: gronx.New()}
}

func (s *ScheduleService) path(suffix string) string {
	return fmt.Sprintf("/api/teams/%s/schedule%s", url.PathEscape(s.teamID), suffix)
}

func (s *ScheduleService) List(ctx context.Context) ([]Match, error) {
	var matches []Match
	if err := s.api.Get(ctx, s.path(""), &matches); err != nil {
		return nil, err
	}
	return matches, nil
}

// Create validates the recurrence expression locally before the round trip,
// so a bad cron line fails like any other per-field validation error.
func (s *ScheduleService) Create(ctx context.Context, m Match) (Match, error) {
	if m.Recurrence != "" && !s.cron.IsValid(m.Recurrence) {
		return Match{}, &api.Error{
			Kind:        api.KindApplication,
			Message:     "validation failed",
			FieldErrors: map[string]string{"recurrence": fmt.Sprintf("invalid cron expression %q", m.Recurrence)},
		}
	}
	var created Match
	if err := s.api.Post(ctx, s.path(""), m, &created); err != nil {
		return Match{}, err
	}
	return created, nil
}

func (s *ScheduleService) Cancel(ctx context.Context, matchID string) error {
	return s.api.Delete(ctx, s.path("/"+url.PathEscape(matchID)), nil)
}

// NextOccurrences computes the next n occurrences of a recurring fixture
// after the given time. A one-off match yields its start time when it is
// still in the future, otherwise nothing.
func (s *ScheduleService) NextOccurrences(m Match, after time.Time, n int) ([]time.Time, error) {
	if m.Recurrence == "" {
		if m.StartsAt.After(after) {
			return []time.Time{m.StartsAt}, nil
		}
		return nil, nil
	}

	out := make([]time.Time, 0, n)
	ref := after
	for i := 0; i < n; i++ {
		next, err := gronx.NextTickAfter(m.Recurrence, ref, false)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate recurrence %q: %w", m.Recurrence, err)
		}
		out = append(out, next)
		ref = next
	}
	return out, nil
}
