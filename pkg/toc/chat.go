package toc

import (
	"context"
	"fmt"
	"net/url"

	"github.com/matchdesk/toc/pkg/api"
	"github.com/matchdesk/toc/pkg/live"
)

// ChatService is the request-side of team chat: history reads, posting, and
// the explicit edit/delete mutations. Near-real-time delivery is the live
// channel's job; sending always goes through here.
type ChatService struct {
	api    *api.Client
	teamID string
}

func NewChatService(client *api.Client, teamID string) *ChatService {
	return &ChatService{api: client, teamID: teamID}
}

func (s *ChatService) path(suffix string) string {
	return fmt.Sprintf("/api/teams/%s/chat/messages%s", url.PathEscape(s.teamID), suffix)
}

// History returns messages newer than the given id, oldest first. An empty
// cursor returns the most recent page.
func (s *ChatService) History(ctx context.Context, after string) ([]live.Message, error) {
	path := s.path("")
	if after != "" {
		path += "?after=" + url.QueryEscape(after)
	}
	var msgs []live.Message
	if err := s.api.Get(ctx, path, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

type postChatRequest struct {
	Body   string `json:"body"`
	Author string `json:"author"`
	Source string `json:"source"`
}

func (s *ChatService) Post(ctx context.Context, author, body, source string) (live.Message, error) {
	var msg live.Message
	err := s.api.Post(ctx, s.path(""), postChatRequest{Body: body, Author: author, Source: source}, &msg)
	if err != nil {
		return live.Message{}, err
	}
	return msg, nil
}

func (s *ChatService) Edit(ctx context.Context, messageID, body string) (live.Message, error) {
	var msg live.Message
	err := s.api.Put(ctx, s.path("/"+url.PathEscape(messageID)), map[string]string{"body": body}, &msg)
	if err != nil {
		return live.Message{}, err
	}
	return msg, nil
}

func (s *ChatService) Delete(ctx context.Context, messageID string) error {
	return s.api.Delete(ctx, s.path("/"+url.PathEscape(messageID)), nil)
}
