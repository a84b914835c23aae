package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	DefaultStableDiffusionURL = "http://localhost:7860"
	stableDiffusionSteps      = 30
)

// StableDiffusion calls a local Stable Diffusion WebUI txt2img endpoint.
type StableDiffusion struct {
	baseURL string
	client  *http.Client
}

func NewStableDiffusion(baseURL string, client *http.Client) *StableDiffusion {
	if baseURL == "" {
		baseURL = DefaultStableDiffusionURL
	}
	if client == nil {
		client = &http.Client{}
	}
	return &StableDiffusion{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type txt2imgRequest struct {
	Prompt   string            `json:"prompt"`
	Steps    int               `json:"steps"`
	Override map[string]string `json:"override_settings,omitempty"`
}

type txt2imgResponse struct {
	Images []string `json:"images"`
}

// Generate returns the first image of a txt2img run. A non-empty model
// selects the WebUI checkpoint for this request only.
func (s *StableDiffusion) Generate(ctx context.Context, model, prompt string) ([]byte, error) {
	body := txt2imgRequest{Prompt: prompt, Steps: stableDiffusionSteps}
	if model != "" {
		body.Override = map[string]string{"sd_model_checkpoint": model}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/sdapi/v1/txt2img", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling stable diffusion: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("stable diffusion returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out txt2imgResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding txt2img response: %w", err)
	}
	if len(out.Images) == 0 {
		return nil, errors.New("no image returned by stable diffusion")
	}
	img, err := base64.StdEncoding.DecodeString(out.Images[0])
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}
