// Package gateway is the client for the external AI assessment service:
// severity scoring, resource planning, first-aid instructions and
// speech-to-text. Calls are plain request/response with no automatic retry;
// on any failure the caller is expected to leave case state untouched and
// surface the error.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Client talks to the assessment gateway over HTTP/JSON.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a gateway client. A zero timeout falls back to 30s.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		log:     logger,
	}
}

// ConversationTurn is one exchange in an interactive triage session.
type ConversationTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AssessmentRequest is the triage-assessment payload.
type AssessmentRequest struct {
	Symptoms            string             `json:"symptoms"`
	VideoFilename       string             `json:"videoFilename,omitempty"`
	Bleeding            bool               `json:"bleeding,omitempty"`
	ConversationHistory []ConversationTurn `json:"conversationHistory,omitempty"`
}

// Assessment is the severity verdict. When NeedsMoreInfo is set the gateway
// is asking a clarifying question and has not produced a final severity yet.
type Assessment struct {
	Severity      int    `json:"severity"`
	TriageNotes   string `json:"triageNotes"`
	NeedsMoreInfo bool   `json:"needsMoreInfo"`
	Question      string `json:"question,omitempty"`
}

// HospitalCapacity accompanies a resource-planning request.
type HospitalCapacity struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

// PlanRequest is the resource-planning payload.
type PlanRequest struct {
	Patient          any              `json:"patient"`
	HospitalCapacity HospitalCapacity `json:"hospitalCapacity"`
}

// Plan is the gateway's proposed hospital preparation.
type Plan struct {
	PlanText          string   `json:"planText"`
	Entrance          string   `json:"entrance"`
	RoomAssignment    string   `json:"roomAssignment,omitempty"`
	SpecialistsNeeded []string `json:"specialistsNeeded,omitempty"`
	EquipmentRequired []string `json:"equipmentRequired,omitempty"`
	StaffToContact    []string `json:"staffToContact,omitempty"`
	AreasToClear      []string `json:"areasToClear,omitempty"`
}

// FirstAid is a set of bystander instructions for a symptom description.
type FirstAid struct {
	Instructions string `json:"instructions"`
}

// Transcript is the speech-to-text result for an audio clip.
type Transcript struct {
	Text string `json:"text"`
}

// AssessSeverity scores the patient's condition 1-10, possibly asking a
// clarifying question first.
func (c *Client) AssessSeverity(ctx context.Context, req AssessmentRequest) (*Assessment, error) {
	var out Assessment
	if err := c.post(ctx, "/triage-assessment", req, &out); err != nil {
		return nil, err
	}
	if !out.NeedsMoreInfo && (out.Severity < 1 || out.Severity > 10) {
		return nil, fmt.Errorf("%w: severity %d out of range", ErrInvalidResponse, out.Severity)
	}
	return &out, nil
}

// PlanResources asks for a hospital preparation plan given current capacity.
func (c *Client) PlanResources(ctx context.Context, req PlanRequest) (*Plan, error) {
	var out Plan
	if err := c.post(ctx, "/resource-plan", req, &out); err != nil {
		return nil, err
	}
	if out.PlanText == "" || out.Entrance == "" {
		return nil, fmt.Errorf("%w: plan missing text or entrance", ErrInvalidResponse)
	}
	return &out, nil
}

// FirstAidInstructions fetches bystander guidance for the given symptoms.
func (c *Client) FirstAidInstructions(ctx context.Context, symptoms string) (*FirstAid, error) {
	var out FirstAid
	body := map[string]string{"symptoms": symptoms}
	if err := c.post(ctx, "/first-aid-instructions", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Transcribe converts base64-encoded audio to text.
func (c *Client) Transcribe(ctx context.Context, audioBase64 string) (*Transcript, error) {
	var out Transcript
	body := map[string]string{"audio": audioBase64}
	if err := c.post(ctx, "/speech-to-text", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("gateway call")

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return rateLimitError(resp)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: gateway returned %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: gateway returned %d", ErrInvalidResponse, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

func rateLimitError(resp *http.Response) error {
	retryAfter := 60
	if h := resp.Header.Get("Retry-After"); h != "" {
		if n, err := strconv.Atoi(h); err == nil && n > 0 {
			retryAfter = n
		}
	}
	return &RateLimitError{RetryAfter: retryAfter}
}
