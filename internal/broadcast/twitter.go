package broadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// TwitterPoster posts statuses through the social network's HTTP API.
type TwitterPoster struct {
	apiURL string
	token  string
	client *http.Client
}

func NewTwitterPoster(apiURL, token string) *TwitterPoster {
	return &TwitterPoster{
		apiURL: apiURL,
		token:  token,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *TwitterPoster) Post(ctx context.Context, status string) (string, error) {
	body, err := json.Marshal(map[string]string{"text": status})
	if err != nil {
		return "", fmt.Errorf("encode status: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build post request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("post status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("post endpoint responded %s", resp.Status)
	}

	var decoded struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode post response: %w", err)
	}
	if decoded.Data.ID == "" {
		return "", fmt.Errorf("post response missing id")
	}
	return decoded.Data.ID, nil
}
