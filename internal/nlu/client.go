package nlu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"dava-bot/internal/convo"
	"dava-bot/internal/metrics"
)

const geminiAPIBase = "https://generativelanguage.googleapis.com/v1beta"

var (
	errQuotaExceeded = errors.New("gemini quota exceeded")
	errUnauthorised  = errors.New("gemini unauthorised")
)

// Client is the Gemini-backed fallback classifier. It is consulted only
// after every deterministic rule has failed, and its output never
// touches numeric, role, or billing decisions.
type Client struct {
	logger     *slog.Logger
	metrics    *metrics.Metrics
	httpClient *http.Client
	model      string
	timeout    time.Duration
	cooldown   time.Duration

	mu       sync.Mutex
	keys     []string
	coolOff  map[string]time.Time
}

// Config holds NLU client configuration.
type Config struct {
	APIKeys  []string
	Model    string
	Timeout  time.Duration
	Cooldown time.Duration
}

// New creates a Gemini client rotating over the configured keys.
func New(logger *slog.Logger, metrics *metrics.Metrics, cfg Config) *Client {
	return &Client{
		logger:     logger.With("component", "nlu"),
		metrics:    metrics,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		model:      cfg.Model,
		timeout:    cfg.Timeout,
		cooldown:   cfg.Cooldown,
		keys:       cfg.APIKeys,
		coolOff:    map[string]time.Time{},
	}
}

// Classify implements convo.FallbackClassifier.
func (c *Client) Classify(ctx context.Context, text string, state *convo.State) (*convo.FallbackResult, error) {
	payload := buildIntentPrompt(text, state)

	res, err := c.callGemini(ctx, payload)
	if err != nil {
		return nil, err
	}

	normalised := normaliseJSON(res)

	var result convo.FallbackResult
	if err := json.Unmarshal([]byte(normalised), &result); err != nil {
		// Salvage truncated or malformed JSON before giving up.
		if partial, perr := fallbackParseIntent(normalised); perr == nil {
			c.logger.Debug("intent salvaged from malformed json", "intent", partial.Intent, "confidence", partial.Confidence)
			return partial, nil
		}
		if partial, perr := fallbackParseIntent(res); perr == nil {
			c.logger.Debug("intent salvaged from raw response", "intent", partial.Intent, "confidence", partial.Confidence)
			return partial, nil
		}
		c.metrics.Errors.WithLabelValues("nlu").Inc()
		snippet := res
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, fmt.Errorf("parse intent json: %w (snippet=%q)", err, snippet)
	}

	if result.Entities == nil {
		result.Entities = map[string]string{}
	}
	c.logger.Debug("intent detected", "intent", result.Intent, "confidence", result.Confidence)
	return &result, nil
}

func buildIntentPrompt(text string, state *convo.State) geminiRequest {
	var sb strings.Builder
	sb.WriteString("You classify messages sent to a pharmacy shop assistant on WhatsApp. ")
	sb.WriteString("Users write in Hindi, English, or a mix of both (Hinglish), often with typos. ")
	sb.WriteString("Reply with exactly one valid JSON object and no other text.\n\n")
	sb.WriteString("Format:\n")
	sb.WriteString(`{"intent":"string","confidence":0.0,"reply":"","entities":{"key":"value"}}` + "\n\n")
	sb.WriteString("Allowed intents: cancel, help, greet, ask_stock, ask_price, ask_symptom, start_order, provide_customer, fallback.\n")
	sb.WriteString("Use \"fallback\" when unsure. Never invent quantities or prices.\n\n")
	sb.WriteString("Entity rules:\n")
	sb.WriteString("- ask_stock / ask_price / start_order: entities.product is the medicine name exactly as the user wrote it.\n")
	sb.WriteString("- start_order: entities.quantity only when the user stated an explicit number.\n")
	sb.WriteString("- ask_symptom: entities.symptom is the complaint (e.g. \"bukhar\", \"headache\").\n")
	sb.WriteString("- provide_customer: entities.customer is the buyer's name.\n\n")
	sb.WriteString("Examples:\n")
	sb.WriteString("User: \"bhai dolo ka dam kitna h\"\n")
	sb.WriteString(`Output: {"intent":"ask_price","confidence":0.9,"reply":"","entities":{"product":"dolo"}}` + "\n")
	sb.WriteString("User: \"sir bukhar ki koi acchi dawai batao\"\n")
	sb.WriteString(`Output: {"intent":"ask_symptom","confidence":0.88,"reply":"","entities":{"symptom":"bukhar"}}` + "\n")
	sb.WriteString("User: \"chalo 2 strip crocin pack kar do\"\n")
	sb.WriteString(`Output: {"intent":"start_order","confidence":0.85,"reply":"","entities":{"product":"crocin","quantity":"2"}}` + "\n")
	sb.WriteString("User: \"ye sharma ji ke liye hai\"\n")
	sb.WriteString(`Output: {"intent":"provide_customer","confidence":0.8,"reply":"","entities":{"customer":"Sharma ji"}}` + "\n\n")

	sb.WriteString("Conversation state: " + string(state.Mode) + "\n")
	if state.Context.Product != nil {
		sb.WriteString("Product under discussion: " + state.Context.Product.Name + "\n")
	}
	sb.WriteString("\nUser message:\n")
	sb.WriteString(text)

	return geminiRequest{
		Contents: []geminiContent{
			{
				Role:  "user",
				Parts: []geminiPart{{Text: sb.String()}},
			},
		},
		GenerationConfig: generationConfig{
			Temperature:     0.2,
			MaxOutputTokens: 256,
			TopP:            0.8,
		},
	}
}

func (c *Client) callGemini(ctx context.Context, payload geminiRequest) (string, error) {
	var lastErr error

	for i, key := range c.availableKeys() {
		res, err := c.invokeWithKey(ctx, key, payload)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if errors.Is(err, errQuotaExceeded) || errors.Is(err, errUnauthorised) {
			c.markCooldown(key)
			c.logger.Warn("gemini key cooled down", "key_index", i, "error", err)
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no available gemini keys")
	}
	return "", lastErr
}

func (c *Client) availableKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	keys := make([]string, 0, len(c.keys))
	for _, k := range c.keys {
		if until, ok := c.coolOff[k]; ok && now.Before(until) {
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

func (c *Client) markCooldown(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.coolOff[key] = time.Now().Add(c.cooldown)
}

func (c *Client) invokeWithKey(ctx context.Context, key string, payload geminiRequest) (string, error) {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", geminiAPIBase, c.model, key)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini http: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return extractCandidateText(body)
	case http.StatusTooManyRequests:
		return "", errQuotaExceeded
	case http.StatusUnauthorized, http.StatusForbidden:
		return "", errUnauthorised
	default:
		return "", fmt.Errorf("gemini request failed: status=%d body=%s", resp.StatusCode, string(body))
	}
}

func extractCandidateText(body []byte) (string, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				return part.Text, nil
			}
		}
	}
	return "", fmt.Errorf("no candidate text found")
}

type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	TopP            float64 `json:"topP,omitempty"`
	MaxOutputTokens int32   `json:"maxOutputTokens,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Role  string       `json:"role"`
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func normaliseJSON(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSpace(s)
		if strings.HasPrefix(strings.ToLower(s), "json") {
			if idx := strings.IndexByte(s, '\n'); idx >= 0 {
				s = s[idx+1:]
			} else {
				s = ""
			}
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		if start := strings.Index(s, "{"); start >= 0 {
			if end := strings.LastIndex(s, "}"); end >= start {
				s = s[start : end+1]
			}
		}
	}
	// Close truncated output like {"intent":"ask_price","confidence":0.8
	if strings.HasSuffix(s, "\"") && !strings.HasSuffix(s, "}") {
		s = s + "\"}"
	}
	openBraces := strings.Count(s, "{")
	closeBraces := strings.Count(s, "}")
	if openBraces > closeBraces {
		s = s + strings.Repeat("}", openBraces-closeBraces)
	}
	return strings.TrimSpace(s)
}

var (
	intentRe     = regexp.MustCompile(`"intent"\s*:\s*"([^"]+)"`)
	confidenceRe = regexp.MustCompile(`"confidence"\s*:\s*([0-9.]+)`)
	replyRe      = regexp.MustCompile(`"reply"\s*:\s*"([^"]*)"`)
)

// fallbackParseIntent extracts key fields with regex from malformed or
// truncated JSON-like output.
func fallbackParseIntent(raw string) (*convo.FallbackResult, error) {
	r := &convo.FallbackResult{Entities: map[string]string{}}

	if m := intentRe.FindStringSubmatch(raw); len(m) >= 2 {
		r.Intent = strings.TrimSpace(m[1])
	}
	if m := confidenceRe.FindStringSubmatch(raw); len(m) >= 2 {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			r.Confidence = v
		}
	}
	if m := replyRe.FindStringSubmatch(raw); len(m) >= 2 {
		r.Reply = strings.TrimSpace(m[1])
	}

	for _, key := range []string{"product", "quantity", "customer", "symptom"} {
		re := regexp.MustCompile(`"` + key + `"\s*:\s*"([^"]+)"`)
		if m := re.FindStringSubmatch(raw); len(m) >= 2 {
			r.Entities[key] = strings.TrimSpace(m[1])
		}
	}

	if r.Intent == "" {
		return nil, fmt.Errorf("fallback parse: intent not found")
	}
	return r, nil
}
