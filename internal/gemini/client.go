package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// GeminiError represents an error that occurred during Gemini API interaction
type GeminiError struct {
	Op  string // Operation that caused the error
	Err error  // Original error
}

// Error implements the error interface
func (e *GeminiError) Error() string {
	if e.Err == nil {
		return "gemini error: " + e.Op
	}
	return "gemini error: " + e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e *GeminiError) Unwrap() error {
	return e.Err
}

// Client represents a client for the Gemini generateContent API
type Client struct {
	apiKey     string
	baseURL    string
	modelID    string
	httpClient *http.Client
}

// Config holds configuration for the Gemini client
type Config struct {
	APIKey  string
	ModelID string
	Timeout time.Duration
}

// DefaultConfig returns a default configuration for the Gemini client
func DefaultConfig() *Config {
	return &Config{
		ModelID: "gemini-2.0-flash",
		Timeout: 60 * time.Second,
	}
}

// NewClient creates a new Gemini client
func NewClient(config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if config.ModelID == "" {
		config.ModelID = "gemini-2.0-flash"
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	return &Client{
		apiKey:  config.APIKey,
		baseURL: "https://generativelanguage.googleapis.com/v1beta",
		modelID: config.ModelID,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// request/response payloads for the generateContent endpoint
type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GenerateFromImage sends an image with a text prompt to the model and
// returns the raw text of the first candidate
func (c *Client) GenerateFromImage(ctx context.Context, prompt string, imageData []byte, mimeType string) (string, error) {
	if c.apiKey == "" {
		return "", &GeminiError{
			Op:  "validate_configuration",
			Err: fmt.Errorf("Gemini API key is not configured. Please set GEMINI_API_KEY environment variable"),
		}
	}

	payload := generateRequest{
		Contents: []content{
			{
				Parts: []part{
					{InlineData: &inlineData{
						MimeType: mimeType,
						Data:     base64.StdEncoding.EncodeToString(imageData),
					}},
					{Text: prompt},
				},
			},
		},
	}

	requestData, err := json.Marshal(payload)
	if err != nil {
		return "", &GeminiError{
			Op:  "marshal_request",
			Err: fmt.Errorf("failed to marshal request payload: %w", err),
		}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.modelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(requestData))
	if err != nil {
		return "", &GeminiError{
			Op:  "create_generate_request",
			Err: fmt.Errorf("failed to create request: %w", err),
		}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &GeminiError{
			Op:  "send_generate_request",
			Err: fmt.Errorf("failed to send request: %w", err),
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &GeminiError{
			Op:  "read_response",
			Err: fmt.Errorf("failed to read response body: %w", err),
		}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &GeminiError{
			Op:  "check_api_response",
			Err: fmt.Errorf("API error: %s - %s", resp.Status, string(respBody)),
		}
	}

	var response generateResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return "", &GeminiError{
			Op:  "parse_response_json",
			Err: fmt.Errorf("failed to unmarshal response: %w", err),
		}
	}

	if len(response.Candidates) == 0 || len(response.Candidates[0].Content.Parts) == 0 {
		return "", &GeminiError{
			Op:  "check_response_candidates",
			Err: fmt.Errorf("no candidates in response"),
		}
	}

	return response.Candidates[0].Content.Parts[0].Text, nil
}
