package extract

import (
	"fmt"
	"strings"

	"github.com/northstar-labs/northstar/internal/ollama"
)

const systemPromptTemplate = `You are a strategic-objective extraction engine. Analyze the provided text and identify the goals, initiatives, and objectives it describes, plus the relationships between them. Your output must be ONLY a single valid JSON object that conforms to the provided schema. Do not include any other text, prose, or markdown.

Objectives:
- One entry per distinct goal or initiative. Give each a short unique key like "OBJ_1".
- "statement" is a single self-contained sentence describing the goal.
- Fill "status", "priority", "timeframe", "owner", "category" only when the text states or strongly implies them.
- "confidence" is your certainty (0 to 1) that the statement is really an objective.
- "metrics" lists measurable success criteria mentioned for the objective.
- "source_excerpt" quotes the text span the objective came from.

Relationships:
- "source" and "target" reference objective keys from this extraction.
- "type" is one of: supports, depends_on, relates_to, blocks, informs.
- Only include relationships the text actually supports. Never relate an objective to itself.`

// BuildPrompt constructs the Ollama chat messages for objective extraction.
func BuildPrompt(text, title string) []ollama.Message {
	var sb strings.Builder
	sb.WriteString("Extract objectives and relationships from the following text.")
	if title != "" {
		fmt.Fprintf(&sb, "\n\n[Title]\n%s", title)
	}
	fmt.Fprintf(&sb, "\n\n[Text]\n%s", text)

	return []ollama.Message{
		{Role: "system", Content: systemPromptTemplate},
		{Role: "user", Content: sb.String()},
	}
}

// extractionSchema returns the Ollama JSON schema for structured
// extraction output.
func extractionSchema() *ollama.Schema {
	objectiveProps := map[string]ollama.SchemaProperty{
		"key":            {Type: "string", Description: "Short unique key for this objective within the batch, e.g. OBJ_1"},
		"statement":      {Type: "string", Description: "One self-contained sentence describing the goal"},
		"context":        {Type: "string", Description: "Surrounding context that motivates the objective"},
		"category":       {Type: "string", Description: "Domain category, e.g. revenue, product, hiring"},
		"timeframe":      {Type: "string", Description: "Stated timeframe, e.g. Q3 2026"},
		"owner":          {Type: "string", Description: "Person or team responsible, if named"},
		"status":         {Type: "string", Description: "Stated progress, e.g. proposed, planned, in progress, blocked, done"},
		"priority":       {Type: "string", Description: "Stated importance, e.g. high, medium, low"},
		"confidence":     {Type: "number", Description: "Certainty from 0 to 1 that this is an objective"},
		"metrics":        {Type: "array", Description: "Measurable success criteria", Items: &ollama.SchemaProperty{Type: "string"}},
		"tags":           {Type: "array", Description: "Topic tags for search", Items: &ollama.SchemaProperty{Type: "string"}},
		"source_excerpt": {Type: "string", Description: "Text span the objective came from"},
	}

	relationshipProps := map[string]ollama.SchemaProperty{
		"source":    {Type: "string", Description: "Objective key of the edge source"},
		"target":    {Type: "string", Description: "Objective key of the edge target"},
		"type":      {Type: "string", Description: "One of: supports, depends_on, relates_to, blocks, informs"},
		"rationale": {Type: "string", Description: "Why this relationship holds"},
		"weight":    {Type: "number", Description: "Strength of the relationship from 0 to 1"},
	}

	return &ollama.Schema{
		Type: "object",
		Properties: map[string]ollama.SchemaProperty{
			"objectives": {
				Type: "array",
				Items: &ollama.SchemaProperty{
					Type:       "object",
					Properties: objectiveProps,
					Required:   []string{"key", "statement"},
				},
			},
			"relationships": {
				Type: "array",
				Items: &ollama.SchemaProperty{
					Type:       "object",
					Properties: relationshipProps,
					Required:   []string{"source", "target", "type"},
				},
			},
		},
		Required: []string{"objectives", "relationships"},
	}
}
