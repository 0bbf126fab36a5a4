package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sports-prediction/internal/models"
)

// GeminiEvaluator scores events with the Gemini generateContent API
type GeminiEvaluator struct {
	httpClient *http.Client
	baseURL    string
	model      string
	apiKey     string
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// evaluationPayload is the JSON object the prompt asks the model to return.
// Missing criteria fall back to their default value.
type evaluationPayload struct {
	Quality           *float64           `json:"quality_score"`
	Demand            *float64           `json:"demand_score"`
	Reputation        *float64           `json:"reputation_score"`
	Novelty           *float64           `json:"novelty_score"`
	Economic          *float64           `json:"economic_score"`
	QualityDetails    map[string]float64 `json:"quality_details"`
	DemandDetails     map[string]float64 `json:"demand_details"`
	ReputationDetails map[string]float64 `json:"reputation_details"`
	NoveltyDetails    map[string]float64 `json:"novelty_details"`
	EconomicDetails   map[string]float64 `json:"economic_details"`
	Reasoning         string             `json:"ai_reasoning"`
}

// NewGeminiEvaluator creates a new Gemini evaluator
func NewGeminiEvaluator(apiKey, model, baseURL string, timeout time.Duration) *GeminiEvaluator {
	return &GeminiEvaluator{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
	}
}

// Evaluate implements Evaluator
func (g *GeminiEvaluator) Evaluate(ctx context.Context, in EvaluationInput) (*Evaluation, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}

	reqBody, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: buildScoringPrompt(in)}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     0.3,
			TopK:            40,
			TopP:            0.95,
			MaxOutputTokens: 2048,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.model, url.QueryEscape(g.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call gemini: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var gr geminiResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	return parseEvaluation(gr.Candidates[0].Content.Parts[0].Text)
}

// parseEvaluation extracts the JSON object between the first '{' and the
// last '}' of the model output.
func parseEvaluation(text string) (*Evaluation, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end < start {
		return nil, fmt.Errorf("no JSON object in evaluator output")
	}

	var p evaluationPayload
	if err := json.Unmarshal([]byte(text[start:end+1]), &p); err != nil {
		return nil, fmt.Errorf("failed to parse evaluator output: %w", err)
	}

	def := DefaultEvaluation().Scores
	pick := func(v *float64, fallback float64) float64 {
		if v == nil {
			return fallback
		}
		return *v
	}

	reasoning := p.Reasoning
	if reasoning == "" {
		reasoning = "evaluation completed"
	}

	return &Evaluation{
		Scores: models.SubScores{
			Quality:    pick(p.Quality, def.Quality),
			Demand:     pick(p.Demand, def.Demand),
			Reputation: pick(p.Reputation, def.Reputation),
			Novelty:    pick(p.Novelty, def.Novelty),
			Economic:   pick(p.Economic, def.Economic),
		},
		Details: models.ScoreDetails{
			Quality:    p.QualityDetails,
			Demand:     p.DemandDetails,
			Reputation: p.ReputationDetails,
			Novelty:    p.NoveltyDetails,
			Economic:   p.EconomicDetails,
		},
		Reasoning: reasoning,
	}, nil
}

func buildScoringPrompt(in EvaluationInput) string {
	var b strings.Builder
	b.WriteString("You evaluate proposed sports prediction events. Rate the event below from 0 to 100 on ")
	b.WriteString("five criteria and answer only with the JSON object described.\n\n")
	b.WriteString("[Event]\n")
	fmt.Fprintf(&b, "- Game ID: %s\n", in.GameID)
	fmt.Fprintf(&b, "- Prediction: %s\n", in.Statement)
	fmt.Fprintf(&b, "- Option A: %s\n", in.OptionA)
	fmt.Fprintf(&b, "- Option B: %s\n", in.OptionB)
	fmt.Fprintf(&b, "- Proposer activity days: %d\n", in.CreatorActivityDays)
	fmt.Fprintf(&b, "- Proposer acceptance rate: %.2f\n\n", in.CreatorContribution)
	b.WriteString("[Criteria]\n")
	b.WriteString("1. quality: clarity, reliability of the resolution source, clear end time\n")
	b.WriteString("2. demand: topic popularity, trends, timeliness\n")
	b.WriteString("3. reputation: proposer history, past contributions and success rate\n")
	b.WriteString("4. novelty: overlap with existing predictions, first-mover advantage\n")
	b.WriteString("5. economic: expected participation, oracle cost and risk\n\n")
	b.WriteString("[Output]\n")
	b.WriteString(`{
  "quality_score": 0,
  "demand_score": 0,
  "reputation_score": 0,
  "novelty_score": 0,
  "economic_score": 0,
  "quality_details": {"clarity": 0, "data_source": 0, "timeframe": 0, "compliance": 0},
  "demand_details": {"trend_indicators": 0, "topic_popularity": 0, "timing": 0},
  "reputation_details": {"loyalty": 0, "success_history": 0, "bond_size": 0},
  "novelty_details": {"first_mover": 0, "uniqueness": 0},
  "economic_details": {"liquidity": 0, "volatility": 0, "oracle_cost": 0},
  "ai_reasoning": "one sentence summarising the key reason"
}`)
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
