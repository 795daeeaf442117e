package openai

import (
	"fmt"
	"strings"
	"time"

	"github.com/poiesic/recollect/ai"
)

const entityResponseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "entities": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "type": {"type": "string"}
        },
        "required": ["name", "type"],
        "additionalProperties": false
      }
    }
  },
  "required": ["entities"],
  "additionalProperties": false
}`

const entityPromptTemplate = `Extract the named entities mentioned in the given text and return them as JSON.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
greeting, or acknowledgment. Start your response directly with the opening brace { and end with the closing
brace }. Your output must exactly follow this schema:

%s

Rules:
- Use the name exactly as written in the text.
- Type field must match exactly one of the listed values: %s.
- Include only entities that are explicitly mentioned. Do not hallucinate.
- Generic nouns ("the meeting", "someone") are not entities.
- If no entities can be identified, return "entities": [].
- The JSON must parse without errors; no trailing commas, no extra keys, and no extraneous text outside the object.

Example:
Input: "Lunch with Priya from Acme at Bar Tartine on Friday."
Output:
{
  "entities": [
    {"name":"Priya","type":"person"},
    {"name":"Acme","type":"organization"},
    {"name":"Bar Tartine","type":"place"}
  ]
}

Example (informal):
Input: "weather is nice today"
Output:
{
  "entities": []
}`

const commitmentSystemPrompt = `Extract the commitments stated in the given text and return them as JSON.

A commitment is a promise, obligation, or agreed action: something someone will do, must do, or has agreed to do.
Plans without an owner and statements of fact are not commitments.

Output ONLY valid JSON of the form:

{"commitments":[{"text":"...","due":"...","assignee":"..."}]}

Rules:
- "text" restates the action in a short imperative phrase.
- "due" is the deadline exactly as written in the text ("by Friday", "2025-03-01"), or "" when none is given.
- "assignee" is who owes the action; use "me" for the author and "" when unknown.
- If there are no commitments, return "commitments": [].
- No trailing commas, no extra keys, and no text outside the object.

Example:
Input: "I will send the report to John by Friday."
Output:
{"commitments":[{"text":"send the report to John","due":"by Friday","assignee":"me"}]}`

// entitySystemPrompt creates the system prompt with entity types embedded.
func entitySystemPrompt() string {
	return fmt.Sprintf(entityPromptTemplate,
		entityResponseSchema,
		strings.Join(ai.EntityTypes, ", "))
}

// buildCommitmentUserPrompt prefixes text with the date it was received so
// relative deadlines can be read correctly.
func buildCommitmentUserPrompt(text string, receivedAt time.Time) string {
	if receivedAt.IsZero() {
		return text
	}
	return fmt.Sprintf("Received: %s\n\n%s", receivedAt.Format("Monday, 2006-01-02"), text)
}
