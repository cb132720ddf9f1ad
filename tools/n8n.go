package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ProvisionedUser é o resultado do create-or-confirm no n8n. Created=false
// significa que a conta já existia (409/422 do n8n) — sucesso, não erro.
type ProvisionedUser struct {
	ID              string
	InviteAcceptURL string
	Created         bool
}

// N8NClient cria contas de guest no n8n via API pública.
type N8NClient struct {
	BaseURL        string
	APIKey         string
	UserCreatePath string
	HTTP           *http.Client
}

func NewN8NClient(baseURL, apiKey, userCreatePath string) *N8NClient {
	return &N8NClient{
		BaseURL:        baseURL,
		APIKey:         apiKey,
		UserCreatePath: userCreatePath,
		HTTP:           &http.Client{Timeout: 15 * time.Second},
	}
}

// CreateUser invites the email into n8n. The API is create-only, so an
// "already exists" response is folded into success with Created=false;
// qualquer outro erro derruba só esta tentativa (retry pelo worker).
func (n *N8NClient) CreateUser(ctx context.Context, email string) (*ProvisionedUser, error) {
	if n.APIKey == "" {
		return nil, fmt.Errorf("missing N8N_API_KEY")
	}

	payload := []map[string]string{{"email": email}}
	body, _ := json.Marshal(payload)

	endpoint := strings.TrimRight(n.BaseURL, "/") + n.UserCreatePath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-N8N-API-KEY", n.APIKey)

	resp, err := n.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity {
		return &ProvisionedUser{ID: "exists", Created: false}, nil
	}
	if resp.StatusCode >= 300 {
		detail := string(raw)
		if len(detail) > 300 {
			detail = detail[:300]
		}
		return nil, fmt.Errorf("n8n create user failed: %d %s", resp.StatusCode, detail)
	}

	var out []struct {
		User struct {
			ID              string `json:"id"`
			InviteAcceptURL string `json:"inviteAcceptUrl"`
		} `json:"user"`
	}
	if err := json.Unmarshal(raw, &out); err == nil && len(out) > 0 {
		id := out[0].User.ID
		if id == "" {
			id = "created"
		}
		return &ProvisionedUser{
			ID:              id,
			InviteAcceptURL: out[0].User.InviteAcceptURL,
			Created:         true,
		}, nil
	}

	// Resposta 2xx com shape inesperado: conta criada, sem detalhes.
	return &ProvisionedUser{ID: "created", Created: true}, nil
}
