package annotate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/responses"
	"go.uber.org/zap"
)

// BatchAnnotator produces one untrusted partial label per batch message.
// A nil result is a soft failure: the caller falls back to heuristics-only
// labels for the whole batch. Implementations never return an error; every
// failure mode is soft by contract.
type BatchAnnotator interface {
	AnnotateBatch(ctx context.Context, msgs []Message) []PartialLabel
}

const llmMaxRetries = 3

var rateLimitWaits = []time.Duration{15 * time.Second, 30 * time.Second, 60 * time.Second}
var serverErrorWaits = []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second}

// batchLabelShape is reflected into the JSON schema embedded in the batch
// prompt. The reply itself is a top-level array (one element per message),
// which strict structured outputs cannot express, so the schema rides in the
// instructions and the reply is scanned for the terminal array.
type batchLabelShape struct {
	Polarity         float64  `json:"polarity"`
	EmotionPrimary   string   `json:"emotion_primary"`
	EmotionSummary   string   `json:"emotion_summary"`
	StressScore      float64  `json:"stress_score"`
	UncertaintyScore float64  `json:"uncertainty_score"`
	HelpRequest      bool     `json:"help_request"`
	Helpfulness      float64  `json:"helpfulness"`
	Gratitude        bool     `json:"gratitude"`
	ToxicityScore    float64  `json:"toxicity_score"`
	InfoDrop         bool     `json:"info_drop"`
	EvidenceTerms    []string `json:"evidence_terms"`
}

var batchInstructions = composeBatchInstructions()

// OpenAIBatchAnnotator sends one Responses API call per batch and parses the
// terminal JSON array out of the reply text.
type OpenAIBatchAnnotator struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

func NewOpenAIBatchAnnotator(client *openai.Client, model string, logger *zap.Logger) *OpenAIBatchAnnotator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIBatchAnnotator{client: client, model: model, logger: logger}
}

// AnnotateBatch tries up to llmMaxRetries attempts. Transport failures,
// missing arrays, and length mismatches all count as failed attempts;
// exhausting them returns nil (heuristics-only fallback). A successful parse
// is final even if individual elements are malformed — those decode to empty
// partials and the heuristic engine fills every gap.
func (a *OpenAIBatchAnnotator) AnnotateBatch(ctx context.Context, msgs []Message) []PartialLabel {
	if a.client == nil || len(msgs) == 0 {
		return nil
	}

	params := responses.ResponseNewParams{
		Model:           a.model,
		MaxOutputTokens: openai.Int(4000),
		Instructions:    openai.String(batchInstructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(buildBatchPrompt(msgs), responses.EasyInputMessageRoleUser),
			},
		},
	}

	var lastErr error
	for attempt := 0; attempt < llmMaxRetries; attempt++ {
		resp, err := a.client.Responses.New(ctx, params)
		if err != nil {
			lastErr = err
			a.logger.Warn("llm batch call failed",
				zap.Int("attempt", attempt+1),
				zap.Int("batch_len", len(msgs)),
				zap.Error(err))
			if attempt < llmMaxRetries-1 {
				waitForRetry(ctx, err, attempt)
			}
			continue
		}

		partials, err := parseBatchArray(resp.OutputText(), len(msgs))
		if err != nil {
			lastErr = err
			a.logger.Warn("llm batch parse failed",
				zap.Int("attempt", attempt+1),
				zap.Int("batch_len", len(msgs)),
				zap.Error(err))
			continue
		}
		return partials
	}

	a.logger.Error("llm batch ultimately failed, falling back to heuristics",
		zap.Int("batch_len", len(msgs)),
		zap.Error(lastErr))
	return nil
}

// buildBatchPrompt renders the batch as numbered lines with JSON-quoted text
// and reactions so Hebrew punctuation survives intact.
func buildBatchPrompt(msgs []Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Annotate the following %d messages. Return a JSON ARRAY of %d objects in the same order.\n\n", len(msgs), len(msgs))
	for i, m := range msgs {
		text, _ := json.Marshal(m.Body)
		reacts := m.Reactions
		if reacts == nil {
			reacts = []Reaction{}
		}
		reactsJSON, _ := json.Marshal(reacts)
		fmt.Fprintf(&b, "%d) id=%q time=%q text=%s reactions=%s\n", i+1, m.MessageID, m.Datetime, text, reactsJSON)
	}
	return b.String()
}

// parseBatchArray extracts the trailing JSON array from the reply and checks
// its length against the batch. Elements that are not objects become empty
// partials; object elements keep whatever recognized fields decode cleanly.
func parseBatchArray(content string, want int) ([]PartialLabel, error) {
	raw := jsonArrayRe.FindString(strings.TrimSpace(content))
	if raw == "" {
		return nil, errors.New("no JSON array found in response")
	}
	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &elems); err != nil {
		return nil, fmt.Errorf("parse JSON array: %w", err)
	}
	if len(elems) != want {
		return nil, fmt.Errorf("array length %d does not match batch size %d", len(elems), want)
	}

	partials := make([]PartialLabel, len(elems))
	for i, elem := range elems {
		trimmed := strings.TrimSpace(string(elem))
		if !strings.HasPrefix(trimmed, "{") {
			continue
		}
		// Type mismatches on individual fields leave the rest decoded;
		// the heuristic engine tolerates any gap.
		_ = json.Unmarshal(elem, &partials[i])
	}
	return partials, nil
}

func waitForRetry(ctx context.Context, err error, attempt int) {
	var wait time.Duration
	if isRateLimitError(err) {
		wait = rateLimitWaits[attempt]
	} else if isServerError(err) {
		wait = serverErrorWaits[attempt]
	} else {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

func isServerError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "server_error")
}

func composeBatchInstructions() string {
	schemaJSON, err := json.MarshalIndent(reflectLabelSchema(), "", "  ")
	if err != nil {
		panic(err)
	}
	return `You are a precise annotator for academic WhatsApp group chats (Hebrew & English).
Return a JSON ARRAY where each element corresponds to ONE input message in the same order.
Each element must be an object matching this JSON schema:

` + string(schemaJSON) + `

Guidelines:
- polarity is overall pleasantness in [-1, +1]; scores are in [0, 1].
- emotion_primary is one of {stress, gratitude, confusion, neutral_info, humor, anger, excitement, other}.
- emotion_summary is 1-2 free-form words (e.g. "stressed", "thankful", "calm").
- evidence_terms are up to 5 short spans copied from the message.
- Questions aren't inherently negative; use stress/uncertainty unless toxic.
- Gratitude implies positive polarity.
- Humor (laughing emoji / lol) is mildly positive but not "gratitude".
- Output strictly a JSON ARRAY of objects, no prose, no trailing commentary.`
}

func reflectLabelSchema() map[string]interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	schema := reflector.Reflect(batchLabelShape{})
	b, err := schema.MarshalJSON()
	if err != nil {
		panic(err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		panic(err)
	}
	return m
}
