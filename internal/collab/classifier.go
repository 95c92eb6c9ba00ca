package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/domain"
)

// Classifier analyzes a ticket's latest inbound message and returns the
// category, urgency, summary, fix steps and draft response. The core treats
// it as an opaque collaborator.
type Classifier interface {
	Classify(ctx context.Context, input ClassifyInput) (*domain.AiResult, error)
}

// ClassifyInput carries the ticket context handed to the classifier.
type ClassifyInput struct {
	SenderEmail string
	Subject     string
	Body        string
	ReceivedAt  time.Time
}

const classifierPrompt = `You are a support desk assistant. Analyze the customer email and return ONLY valid JSON:
{
  "category": "Billing | Technical | Login / Access | Feature Request | General Inquiry | Other",
  "urgency": "Low | Medium | High",
  "summary": "1-2 sentence issue summary",
  "fix_steps": "numbered troubleshooting steps, one per line",
  "response": "a formal support email draft"
}
Never request passwords, OTPs, or tokens. The draft must open with "Good day," and close with "Support Team".`

// openAIClassifier calls an OpenAI-compatible chat-completions endpoint.
type openAIClassifier struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewOpenAIClassifier builds the HTTP classifier.
func NewOpenAIClassifier(cfg config.ClassifierConfig) Classifier {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &openAIClassifier{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type classifierResult struct {
	Category string `json:"category"`
	Urgency  string `json:"urgency"`
	Summary  string `json:"summary"`
	FixSteps string `json:"fix_steps"`
	Response string `json:"response"`
}

func (c *openAIClassifier) Classify(ctx context.Context, input ClassifyInput) (*domain.AiResult, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("classifier api key not configured")
	}

	userContent := fmt.Sprintf("From: %s\nSubject: %s\nReceived: %s\n\n%s",
		input.SenderEmail, input.Subject, input.ReceivedAt.Format(time.RFC3339), input.Body)

	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: classifierPrompt},
			{Role: "user", Content: userContent},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classifier request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("classifier response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("classifier error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("classifier returned no choices")
	}

	return parseClassifierJSON(parsed.Choices[0].Message.Content)
}

// parseClassifierJSON decodes the model's JSON body, tolerating markdown
// code fences around it.
func parseClassifierJSON(content string) (*domain.AiResult, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var result classifierResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, fmt.Errorf("classifier output not valid JSON: %w", err)
	}

	return &domain.AiResult{
		Category:      normalizeCategory(result.Category),
		Urgency:       normalizeUrgency(result.Urgency),
		Summary:       result.Summary,
		FixSteps:      result.FixSteps,
		DraftResponse: result.Response,
	}, nil
}

// heuristicClassifier is the no-credentials fallback: keyword matching over
// subject and body, a generic acknowledgement draft. Keeps local development
// working without an API key.
type heuristicClassifier struct{}

// NewHeuristicClassifier builds the keyword-based fallback classifier.
func NewHeuristicClassifier() Classifier {
	return &heuristicClassifier{}
}

func (h *heuristicClassifier) Classify(_ context.Context, input ClassifyInput) (*domain.AiResult, error) {
	text := strings.ToLower(input.Subject + " " + input.Body)

	category := domain.CategoryGeneralInquiry
	switch {
	case containsAny(text, "invoice", "billing", "charge", "refund", "payment"):
		category = domain.CategoryBilling
	case containsAny(text, "login", "password", "sign in", "locked out", "2fa", "access"):
		category = domain.CategoryLoginAccess
	case containsAny(text, "error", "crash", "bug", "broken", "not working", "fails"):
		category = domain.CategoryTechnical
	case containsAny(text, "feature", "request", "would be great", "suggestion"):
		category = domain.CategoryFeatureRequest
	}

	urgency := domain.UrgencyLow
	switch {
	case containsAny(text, "urgent", "asap", "immediately", "production", "outage", "down"):
		urgency = domain.UrgencyHigh
	case containsAny(text, "soon", "blocked", "cannot", "can't"):
		urgency = domain.UrgencyMedium
	}

	draft := "Good day,\n\nThank you for contacting support. We have received your message and a member of our team is looking into it. We will follow up with you shortly.\n\nSupport Team"
	return &domain.AiResult{
		Category:      category,
		Urgency:       urgency,
		Summary:       fmt.Sprintf("Customer message regarding: %s", strings.TrimSpace(input.Subject)),
		FixSteps:      "Review the customer's message and respond with the appropriate next steps.",
		DraftResponse: draft,
	}, nil
}

func containsAny(text string, terms ...string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

func normalizeCategory(raw string) domain.Category {
	switch domain.Category(strings.TrimSpace(raw)) {
	case domain.CategoryBilling, domain.CategoryTechnical, domain.CategoryLoginAccess,
		domain.CategoryFeatureRequest, domain.CategoryGeneralInquiry:
		return domain.Category(strings.TrimSpace(raw))
	default:
		return domain.CategoryOther
	}
}

func normalizeUrgency(raw string) domain.Urgency {
	switch domain.Urgency(strings.TrimSpace(raw)) {
	case domain.UrgencyHigh:
		return domain.UrgencyHigh
	case domain.UrgencyMedium:
		return domain.UrgencyMedium
	default:
		return domain.UrgencyLow
	}
}
