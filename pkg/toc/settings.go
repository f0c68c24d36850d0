package toc

import (
	"context"
	"fmt"
	"net/url"

	"github.com/matchdesk/toc/pkg/api"
)

type Settings struct {
	TeamName      string `json:"team_name"`
	Region        string `json:"region"`
	Timezone      string `json:"timezone"`
	PublicProfile bool   `json:"public_profile"`
}

type SettingsService struct {
	api    *api.Client
	teamID string
}

func NewSettingsService(client *api.Client, teamID string) *SettingsService {
	return &SettingsService{api: client, teamID: teamID}
}

func (s *SettingsService) path() string {
	return fmt.Sprintf("/api/teams/%s/settings", url.PathEscape(s.teamID))
}

func (s *SettingsService) Get(ctx context.Context) (Settings, error) {
	var settings Settings
	if err := s.api.Get(ctx, s.path(), &settings); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func (s *SettingsService) Update(ctx context.Context, settings Settings) (Settings, error) {
	var updated Settings
	if err := s.api.Put(ctx, s.path(), settings, &updated); err != nil {
		return Settings{}, err
	}
	return updated, nil
}
