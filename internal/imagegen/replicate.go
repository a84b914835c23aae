package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultReplicateURL   = "https://api.replicate.com"
	DefaultReplicateModel = "black-forest-labs/flux-schnell"

	pollInterval = time.Second
	maxImageSize = 32 << 20
)

// Replicate runs models through the Replicate predictions API.
type Replicate struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewReplicate(baseURL, token string, client *http.Client) *Replicate {
	if baseURL == "" {
		baseURL = DefaultReplicateURL
	}
	if client == nil {
		client = &http.Client{}
	}
	return &Replicate{baseURL: strings.TrimRight(baseURL, "/"), token: token, client: client}
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

// Generate creates a prediction, waits for it to finish and downloads the
// first output image. model is "owner/name" or "owner/name:version".
func (r *Replicate) Generate(ctx context.Context, model, prompt string) ([]byte, error) {
	if model == "" {
		model = DefaultReplicateModel
	}

	body := map[string]any{"input": map[string]any{"prompt": prompt}}
	endpoint := r.baseURL + "/v1/models/" + model + "/predictions"
	if _, version, ok := strings.Cut(model, ":"); ok {
		body["version"] = version
		endpoint = r.baseURL + "/v1/predictions"
	}

	p, err := r.create(ctx, endpoint, body)
	if err != nil {
		return nil, err
	}
	for !terminal(p.Status) {
		if p.URLs.Get == "" {
			return nil, fmt.Errorf("prediction %s is %s and has no poll url", p.ID, p.Status)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
		if p, err = r.get(ctx, p.URLs.Get); err != nil {
			return nil, err
		}
	}

	if p.Status != "succeeded" {
		return nil, fmt.Errorf("prediction %s %s: %v", p.ID, p.Status, p.Error)
	}
	url, err := firstOutput(p.Output)
	if err != nil {
		return nil, err
	}
	return r.download(ctx, url)
}

func terminal(status string) bool {
	switch status {
	case "succeeded", "failed", "canceled":
		return true
	}
	return false
}

// firstOutput accepts both a single URL and a list of URLs.
func firstOutput(raw json.RawMessage) (string, error) {
	var one string
	if err := json.Unmarshal(raw, &one); err == nil && one != "" {
		return one, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 && many[0] != "" {
		return many[0], nil
	}
	return "", errors.New("empty result from replicate")
}

func (r *Replicate) create(ctx context.Context, endpoint string, body any) (prediction, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return prediction{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return prediction{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "wait")
	return r.do(req)
}

func (r *Replicate) get(ctx context.Context, url string) (prediction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return prediction{}, err
	}
	return r.do(req)
}

func (r *Replicate) do(req *http.Request) (prediction, error) {
	req.Header.Set("Authorization", "Bearer "+r.token)
	resp, err := r.client.Do(req)
	if err != nil {
		return prediction{}, fmt.Errorf("calling replicate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return prediction{}, fmt.Errorf("replicate returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var p prediction
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return prediction{}, fmt.Errorf("decoding prediction: %w", err)
	}
	return p, nil
}

func (r *Replicate) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading image: status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxImageSize))
}
