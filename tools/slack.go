package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SlackUser é o shape de usuário que interessa aqui, tanto no payload do
// webhook quanto na resposta do users.info. Guest = restricted ou
// ultra_restricted (single/multi-channel guest).
type SlackUser struct {
	ID                string `json:"id"`
	IsRestricted      bool   `json:"is_restricted"`
	IsUltraRestricted bool   `json:"is_ultra_restricted"`
	Profile           struct {
		Email string `json:"email"`
	} `json:"profile"`
}

func (u *SlackUser) IsGuest() bool {
	return u.IsRestricted || u.IsUltraRestricted
}

// SlackClient chama a Web API do Slack com o bot token.
type SlackClient struct {
	BotToken string
	BaseURL  string // default https://slack.com/api
	HTTP     *http.Client
}

func NewSlackClient(botToken string) *SlackClient {
	return &SlackClient{
		BotToken: botToken,
		BaseURL:  "https://slack.com/api",
		HTTP:     &http.Client{Timeout: 10 * time.Second},
	}
}

// UserInfo busca o perfil autoritativo do usuário (users.info). O payload do
// webhook pode vir parcial, então email/flags de guest saem daqui quando a
// verificação está ligada.
func (s *SlackClient) UserInfo(ctx context.Context, userID string) (*SlackUser, error) {
	if s.BotToken == "" {
		return nil, fmt.Errorf("SLACK_BOT_TOKEN not set")
	}

	form := url.Values{}
	form.Set("user", userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.BaseURL+"/users.info", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.BotToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("slack api error: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out struct {
		OK    bool      `json:"ok"`
		Error string    `json:"error"`
		User  SlackUser `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, fmt.Errorf("slack api error: %s", out.Error)
	}
	return &out.User, nil
}
