// Package significance rates how important a piece of text is to remember.
package significance

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"strconv"
	"strings"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/phrazzld/judith/pkg/adapter"
	"github.com/phrazzld/judith/pkg/model"
	"github.com/phrazzld/judith/pkg/utils/logging"
	"google.golang.org/genai"
)

//go:embed prompt/classify.md
var classifyPromptRaw string

var classifyPromptTmpl = template.Must(template.New("classify").Parse(classifyPromptRaw))

type response struct {
	Significance *float64 `json:"significance"`
}

// Classifier asks Gemini for a 1-10 significance score
type Classifier struct {
	gemini adapter.Gemini
	config *genai.GenerateContentConfig
}

// New creates a Classifier
func New(gemini adapter.Gemini) (*Classifier, error) {
	schema, err := convertJSONSchemaToGenai(responseSchema)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build response schema")
	}

	temperature := float32(0)
	thinkingBudget := int32(0)
	return &Classifier{
		gemini: gemini,
		config: &genai.GenerateContentConfig{
			Temperature:      &temperature,
			MaxOutputTokens:  32,
			ResponseMIMEType: "application/json",
			ResponseSchema:   schema,
			ThinkingConfig: &genai.ThinkingConfig{
				IncludeThoughts: false,
				ThinkingBudget:  &thinkingBudget,
			},
		},
	}, nil
}

// Classify returns the significance of text in [1,10]. A nil result with nil
// error means the model answered but the answer could not be used; callers
// store the memory without significance. A transport failure is returned as
// model.ErrClassification.
func (c *Classifier) Classify(ctx context.Context, kind model.MemoryKind, text string) (*int, error) {
	if strings.TrimSpace(text) == "" {
		return nil, goerr.Wrap(model.ErrEmptyText, "cannot classify empty text")
	}

	var buf bytes.Buffer
	if err := classifyPromptTmpl.Execute(&buf, map[string]any{
		"Kind": kind,
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to execute classify prompt template")
	}

	config := *c.config
	config.SystemInstruction = genai.NewContentFromText(buf.String(), "")

	contents := []*genai.Content{
		genai.NewContentFromText(text, genai.RoleUser),
	}

	resp, err := c.gemini.GenerateContent(ctx, contents, &config)
	if err != nil {
		return nil, goerr.Wrap(model.ErrClassification, "gemini classification failed", goerr.V("cause", err.Error()))
	}

	return parseResponse(ctx, resp), nil
}

func parseResponse(ctx context.Context, resp *genai.GenerateContentResponse) *int {
	logger := logging.From(ctx)

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		logger.Warn("empty significance response")
		return nil
	}

	var raw string
	for _, part := range resp.Candidates[0].Content.Parts {
		raw += part.Text
	}
	raw = strings.TrimSpace(raw)

	var v float64
	var out response
	if err := json.Unmarshal([]byte(raw), &out); err == nil && out.Significance != nil {
		v = *out.Significance
	} else if n, err := strconv.ParseFloat(raw, 64); err == nil {
		// bare number when the model ignores the response schema
		v = n
	} else {
		logger.Warn("non-numeric significance response", "raw", raw)
		return nil
	}

	if v != float64(int(v)) || v < model.MinSignificance || v > model.MaxSignificance {
		logger.Warn("significance out of range", "value", v)
		return nil
	}

	s := int(v)
	return &s
}
