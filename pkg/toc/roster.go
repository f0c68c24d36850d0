// Package toc holds the service clients behind the operations console
// panels: roster, payments, schedule, settings, and chat. Each one is a thin
// leaf consumer of the api client; failures surface as *api.Error and the
// caller decides how to present them.
package toc

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/matchdesk/toc/pkg/api"
)

type Player struct {
	ID       string    `json:"id,omitempty"`
	Gamertag string    `json:"gamertag"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at,omitempty"`
}

type RosterService struct {
	api    *api.Client
	teamID string
}

func NewRosterService(client *api.Client, teamID string) *RosterService {
	return &RosterService{api: client, teamID: teamID}
}

func (s *RosterService) path(suffix string) string {
	return fmt.Sprintf("/api/teams/%s/roster%s", url.PathEscape(s.teamID), suffix)
}

func (s *RosterService) List(ctx context.Context) ([]Player, error) {
	var players []Player
	if err := s.api.Get(ctx, s.path(""), &players); err != nil {
		return nil, err
	}
	return players, nil
}

func (s *RosterService) Add(ctx context.Context, p Player) (Player, error) {
	var created Player
	if err := s.api.Post(ctx, s.path(""), p, &created); err != nil {
		return Player{}, err
	}
	return created, nil
}

func (s *RosterService) Update(ctx context.Context, p Player) (Player, error) {
	if p.ID == "" {
		return Player{}, fmt.Errorf("player id is required")
	}
	var updated Player
	if err := s.api.Put(ctx, s.path("/"+url.PathEscape(p.ID)), p, &updated); err != nil {
		return Player{}, err
	}
	return updated, nil
}

func (s *RosterService) Remove(ctx context.Context, playerID string) error {
	return s.api.Delete(ctx, s.path("/"+url.PathEscape(playerID)), nil)
}
