package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

// Remote calls an HTTP model server: POST {"features": [...]} and expect
// {"score": p}.
type Remote struct {
	url        string
	arity      int
	httpClient *http.Client
}

var _ domain.ScoringService = (*Remote)(nil)

// NewRemote creates a Remote scorer. arity is the input width the served
// model was trained on.
func NewRemote(url string, arity int, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Remote{
		url:        url,
		arity:      arity,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (r *Remote) Arity() int { return r.arity }

func (r *Remote) Score(ctx context.Context, features []float64) (float64, error) {
	body, err := json.Marshal(map[string]any{"features": features})
	if err != nil {
		return 0, &domain.ScoringServiceError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return 0, &domain.ScoringServiceError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return 0, &domain.ScoringServiceError{Err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, &domain.ScoringServiceError{Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, &domain.ScoringServiceError{Err: fmt.Errorf("status %d: %s", resp.StatusCode, respBody)}
	}

	var out struct {
		Score *float64 `json:"score"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return 0, &domain.ScoringServiceError{Err: fmt.Errorf("decode response: %w", err)}
	}
	if out.Score == nil {
		return 0, &domain.ScoringServiceError{Err: fmt.Errorf("response missing score")}
	}
	return *out.Score, nil
}
