package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"google.golang.org/genai"

	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/config"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/models"
	"github.com/mustafamaahir/RainPro-Backend-Agent/internal/pkg/logger"
)

// generativeBackend is the seam between prompt logic and the wire client, so
// classification and interpretation can be tested without network access.
type generativeBackend interface {
	generate(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type genaiBackend struct {
	client *genai.Client
}

func (backend *genaiBackend) generate(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return backend.client.Models.GenerateContent(ctx, model, contents, cfg)
}

type GeminiService struct {
	backend generativeBackend
	config  config.GeminiConfig
	logger  *logger.Logger
}

type GenerationRequest struct {
	Prompt          string
	MaxTokens       int32
	Temperature     *float32
	SystemRole      string
	Context         string
	TopP            *float32
	TopK            *float32
	DisableThinking bool
	ResponseFormat  string
}

type GenerationResponse struct {
	Content        string
	TokensUsed     int
	FinishReason   string
	ProcessingTime time.Duration
}

// intentPayload is the JSON shape the classifier prompt demands.
type intentPayload struct {
	Mode        string  `json:"mode"`
	Confidence  float64 `json:"confidence"`
	Location    string  `json:"location"`
	Explanation string  `json:"explanation"`
}

func NewGeminiService(config config.GeminiConfig, log *logger.Logger) (*GeminiService, error) {
	if config.APIKey == "" {
		return nil, errors.New("Gemini API key required")
	}

	ctx := context.Background()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})

	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	service := &GeminiService{
		backend: &genaiBackend{client: client},
		config:  config,
		logger:  log,
	}

	err = service.testConnection()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Gemini API: %w", err)
	}

	log.Info("AI service initialized - Gemini API",
		"model", config.Model,
		"max_tokens", config.MaxTokens,
		"temperature", config.Temperature,
	)

	return service, nil
}

func (service *GeminiService) testConnection() error {
	ctx, cancel := context.WithTimeout(context.Background(), service.config.Timeout)
	defer cancel()

	result, err := service.backend.generate(ctx, service.config.Model, genai.Text("Hello"), nil)

	if err != nil {
		return fmt.Errorf("test generation failed: %w", err)
	}

	if len(result.Candidates) == 0 {
		return fmt.Errorf("test generation failed: no candidates found")
	}

	service.logger.Info("Gemini test connection successful")

	return nil
}

func (service *GeminiService) GenerateContent(ctx context.Context, request *GenerationRequest) (*GenerationResponse, error) {
	startTime := time.Now()

	var response *GenerationResponse
	var err error

	for attempt := 1; attempt <= service.config.MaxRetries; attempt++ {
		response, err = service.makeGenerationRequest(ctx, request)
		if err == nil {
			break
		}

		if attempt < service.config.MaxRetries {
			service.logger.WithFields(logger.Fields{
				"attempt":     attempt,
				"max_retries": service.config.MaxRetries,
				"error":       err,
			}).Warn("Generate content failed")

			select {
			case <-time.After(service.config.RetryDelay * time.Duration(attempt)):

			case <-ctx.Done():
				return nil, models.NewTimeoutError("GEMINI_TIMEOUT", "content generation timed out").WithCause(ctx.Err())
			}
		}
	}

	if err != nil {
		service.logger.LogService("gemini", "generate_content", time.Since(startTime), map[string]interface{}{
			"prompt_length": len(request.Prompt),
			"attempts":      service.config.MaxRetries,
		}, err)
		return nil, models.WrapExternalError("GEMINI", err)
	}

	duration := time.Since(startTime)
	response.ProcessingTime = duration

	service.logger.LogService("gemini", "generate_content", duration, map[string]interface{}{
		"prompt_length":   len(request.Prompt),
		"response_length": len(response.Content),
		"tokens_used":     response.TokensUsed,
		"finish_reason":   response.FinishReason,
	}, nil)

	return response, nil
}

func (service *GeminiService) makeGenerationRequest(ctx context.Context, req *GenerationRequest) (*GenerationResponse, error) {
	genCtx, cancel := context.WithTimeout(ctx, service.config.Timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{}

	if req.SystemRole != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemRole, genai.RoleUser)
	}

	if req.Temperature != nil {
		config.Temperature = req.Temperature
	} else {
		temp := service.config.Temperature
		config.Temperature = &temp
	}

	if req.MaxTokens != 0 {
		config.MaxOutputTokens = req.MaxTokens
	} else {
		maxTokens := int32(service.config.MaxTokens)
		config.MaxOutputTokens = maxTokens
	}

	if req.TopP != nil {
		config.TopP = req.TopP
	}

	if req.TopK != nil {
		config.TopK = req.TopK
	}

	if req.ResponseFormat != "" {
		config.ResponseMIMEType = req.ResponseFormat
	}

	var budget int32 = 0
	if req.DisableThinking {
		config.ThinkingConfig = &genai.ThinkingConfig{
			ThinkingBudget: &budget,
		}
	}

	var content []*genai.Content
	if req.Context != "" {
		parts := []*genai.Part{
			genai.NewPartFromText(fmt.Sprintf("Context : %s\n\n", req.Context)),
			genai.NewPartFromText(req.Prompt),
		}
		contents := []*genai.Content{
			genai.NewContentFromParts(parts, genai.RoleUser),
		}
		content = contents
	} else {
		content = genai.Text(req.Prompt)
	}

	result, err := service.backend.generate(genCtx, service.config.Model, content, config)

	if err != nil {
		return nil, fmt.Errorf("failed to generate ai/gemini request: %w", err)
	}

	if len(result.Candidates) == 0 {
		return nil, fmt.Errorf("no response candidates generated")
	}

	candidate := result.Candidates[0]

	text := ""
	if candidate.Content != nil && len(candidate.Content.Parts) > 0 {
		for _, part := range candidate.Content.Parts {
			text += part.Text
		}
	}

	tokensUsed := len(req.Prompt)/4 + len(text)/4

	response := &GenerationResponse{
		Content:      text,
		TokensUsed:   tokensUsed,
		FinishReason: string(candidate.FinishReason),
	}

	return response, nil
}

// API CALLS TO GEMINI FOR AGENTS

// Intent Classification Agent.
//
// ClassifyIntent decides whether a query asks for a daily forecast, a monthly
// outlook, or something the pipeline does not answer. Classification never
// fails a session: model errors, timeouts and unparsable output all degrade
// to the same deterministic keyword fallback, and callers cannot tell which
// cause applied.
func (service *GeminiService) ClassifyIntent(ctx context.Context, query string) (*models.Intent, error) {
	if strings.TrimSpace(query) == "" {
		return nil, models.NewValidationError("EMPTY_QUERY", "intent classification requires a query")
	}

	start := time.Now()

	req := &GenerationRequest{
		Prompt:          service.buildIntentClassificationPrompt(query),
		Temperature:     &[]float32{0.0}[0], // deterministic classification
		SystemRole:      "You are an expert intent classifier for a rainfall forecasting assistant.",
		MaxTokens:       250,
		DisableThinking: true,
		ResponseFormat:  "application/json",
	}

	resp, err := service.GenerateContent(ctx, req)
	if err != nil {
		service.logger.Warn("Intent classification unavailable, using keyword fallback",
			"error", err.Error(),
		)
		return service.fallbackIntent(query), nil
	}

	intent, ok := service.parseIntentResponse(resp.Content)
	if !ok {
		service.logger.Warn("Classifier output unparsable, using keyword fallback",
			"response_length", len(resp.Content),
		)
		return service.fallbackIntent(query), nil
	}

	service.logger.LogAgent("", "classifier", "classify_intent", time.Since(start), map[string]interface{}{
		"query":       query,
		"mode":        string(intent.Mode),
		"confidence":  intent.Confidence,
		"location":    intent.Location,
		"tokens_used": resp.TokensUsed,
	}, nil)

	return intent, nil
}

func (service *GeminiService) buildIntentClassificationPrompt(query string) string {
	return fmt.Sprintf(`You are an AI agent that classifies a user query into one of three modes: "daily", "monthly" or "unrelated".

Query:
"%s"

Classification Rules:

Classify as "daily" if:
- The query asks about rain today, tomorrow, this week, the coming days or any short-term window.

Classify as "monthly" if:
- The query asks about rain this month, next month, the coming months, a season or any long-range window.

Classify as "unrelated" if:
- The query is not about rainfall or weather at all.

If the query names a place, copy it into "location"; otherwise leave "location" empty.

Instructions:

Respond ONLY in valid JSON format:
{
  "mode": "daily|monthly|unrelated",
  "confidence": 0.0,
  "location": "",
  "explanation": "one short sentence"
}

Examples:
- "Will it rain in Lagos tomorrow?" -> {"mode": "daily", "confidence": 0.95, "location": "Lagos", "explanation": "asks about tomorrow"}
- "How much rain next month?" -> {"mode": "monthly", "confidence": 0.92, "location": "", "explanation": "asks about next month"}
- "Tell me a joke" -> {"mode": "unrelated", "confidence": 0.98, "location": "", "explanation": "not about weather"}

Return only the JSON object.`, query)
}

func (service *GeminiService) parseIntentResponse(response string) (*models.Intent, bool) {
	var payload intentPayload
	if err := json.Unmarshal([]byte(extractJSON(response)), &payload); err != nil {
		return nil, false
	}

	mode := models.IntentMode(strings.ToLower(strings.TrimSpace(payload.Mode)))
	if !mode.IsValid() {
		// Parsed but nonsense mode: the defined degraded default.
		return &models.Intent{
			Mode:        models.IntentDaily,
			Horizon:     models.IntentDaily.DefaultHorizon(),
			Confidence:  0.5,
			Explanation: "Invalid mode returned - default applied.",
		}, true
	}

	return &models.Intent{
		Mode:        mode,
		Horizon:     mode.DefaultHorizon(),
		Confidence:  payload.Confidence,
		Location:    strings.TrimSpace(payload.Location),
		Explanation: payload.Explanation,
	}, true
}

// fallbackIntent is the keyword classifier used whenever the model cannot be
// consulted or answers garbage. It only ever produces daily or monthly.
func (service *GeminiService) fallbackIntent(query string) *models.Intent {
	lower := strings.ToLower(query)

	if strings.Contains(lower, "month") {
		return &models.Intent{
			Mode:        models.IntentMonthly,
			Horizon:     models.IntentMonthly.DefaultHorizon(),
			Confidence:  0.7,
			Explanation: "Fallback keyword match: 'month'",
		}
	}

	return &models.Intent{
		Mode:        models.IntentDaily,
		Horizon:     models.IntentDaily.DefaultHorizon(),
		Confidence:  0.6,
		Explanation: "Fallback keyword match: daily terms",
	}
}

// extractJSON tolerates markdown fences and prose around the JSON object.
func extractJSON(response string) string {
	trimmed := strings.TrimSpace(response)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		return trimmed[start : end+1]
	}
	return trimmed
}

// Forecast Interpretation Agent.
//
// SummarizeForecast turns a bucketed forecast into the user-facing narrative.
// Unlike classification there is no fallback here: a generation failure is a
// session error for the caller to record.
func (service *GeminiService) SummarizeForecast(ctx context.Context, query string, intent *models.Intent, bucket *models.BucketedForecast) (string, error) {
	if bucket == nil || bucket.Size() == 0 {
		return "", models.NewValidationError("EMPTY_BUCKET", "interpretation requires a bucketed forecast")
	}

	start := time.Now()

	req := &GenerationRequest{
		Prompt:      service.buildInterpretationPrompt(query, intent, bucket),
		Temperature: &[]float32{0.6}[0],
		SystemRole:  "You are an expert meteorologist and agricultural advisor who explains rainfall forecasts in plain language.",
		MaxTokens:   400,
	}

	resp, err := service.GenerateContent(ctx, req)
	if err != nil {
		return "", err
	}

	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return "", models.WrapExternalError("GEMINI", errors.New("empty interpretation response"))
	}

	service.logger.LogAgent("", "interpreter", "summarize_forecast", time.Since(start), map[string]interface{}{
		"mode":           string(bucket.Mode),
		"points":         bucket.Size(),
		"summary_length": len(summary),
		"tokens_used":    resp.TokensUsed,
	}, nil)

	return summary, nil
}

func (service *GeminiService) buildInterpretationPrompt(query string, intent *models.Intent, bucket *models.BucketedForecast) string {
	var lines strings.Builder
	for _, point := range bucket.Points {
		fmt.Fprintf(&lines, "- %s: %.2f mm\n", point.Date, point.Rainfall)
	}

	period := "7-day"
	if bucket.Mode == models.IntentMonthly {
		period = "3-month"
	}

	location := "the requested location"
	if intent != nil && intent.Location != "" {
		location = intent.Location
	}

	asked := ""
	if strings.TrimSpace(query) != "" {
		asked = fmt.Sprintf("The user asked: %q\n\n", query)
	}

	return fmt.Sprintf(`%sHere is the %s rainfall forecast for %s:

%s
Explain this forecast to the user in plain language. Point out notably wet or dry stretches and give one or two practical suggestions for planning around the rain. Never invent numbers that are not in the forecast. Keep the answer under four short paragraphs.`,
		asked, period, location, lines.String())
}

// FallbackResponse is the canned reply for queries the pipeline does not
// answer. It never calls the model.
func (service *GeminiService) FallbackResponse() string {
	return "I can only help with rainfall forecasts. Ask me about rain for the coming days or months, for example: \"Will it rain this week?\" or \"How much rain should we expect next month?\""
}

func (service *GeminiService) HealthCheck(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := service.backend.generate(checkCtx, service.config.Model, genai.Text("Hello"), nil)
	if err != nil {
		return fmt.Errorf("gemini health check failed: %w", err)
	}
	return nil
}

func (service *GeminiService) Close() error {
	service.logger.Info("Gemini service closed")
	return nil
}
