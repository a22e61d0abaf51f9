package config

const (
	// DefaultExtractionSchema is the JSON shape the enrichment model must
	// return. Responses that do not validate against it are discarded.
	DefaultExtractionSchema = `{
  "type": "object",
  "required": ["keyFacts", "summary"],
  "properties": {
    "keyFacts": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["claim", "confidence"],
        "properties": {
          "claim": {"type": "string"},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1},
          "category": {"type": "string", "enum": ["statistic", "claim", "quote", "definition", "relationship"]},
          "entities": {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "summary": {"type": "string"},
    "credibilityAssessment": {"type": "number", "minimum": 0, "maximum": 1},
    "mainTopics": {"type": "array", "items": {"type": "string"}},
    "sentiment": {"type": "string", "enum": ["positive", "negative", "neutral", "mixed"]}
  }
}`

	// DefaultExtractionInstructions is the system prompt for structured fact
	// extraction.
	DefaultExtractionInstructions = `You extract verifiable facts from web content for a research synthesis
pipeline. Read the supplied text and respond with a single JSON object
matching the provided schema. Rules:
- Every claim must be stated in the text; never infer beyond it.
- Prefer statistics, direct quotes, definitions, and causal relationships.
- Confidence reflects how explicitly the text supports the claim.
- List organisations, people, and places mentioned by each fact in entities.
- Keep the summary under three sentences.
Respond with JSON only, no prose and no code fences.`
)
