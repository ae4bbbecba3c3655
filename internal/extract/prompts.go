package extract

import (
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/program-crawler/internal/crawler"
	"github.com/JakeFAU/program-crawler/internal/llm"
)

const extractionSystemPrompt = "You are a precise data extraction assistant. " +
	"Extract information from the supplied page text according to the supplied JSON schema and output only the JSON object."

const validationSystemPrompt = "You are a meticulous data validator comparing a JSON object against a schema (including its structure) and the source text. " +
	"Respond with True or False, a reason, and, when False, a corrected schema-compliant JSON object."

func extractionMessages(text string) []llm.Message {
	user := fmt.Sprintf(`Extract the programme information from the page text below and format it strictly according to this JSON schema:
`+"```json\n%s\n```"+`
Make sure the extracted information is accurate and complete. Output only the JSON object that satisfies the schema, with no explanation or extra markup.

Page text:
`+"```markdown\n%s\n```", ProgramSchema, text)
	return []llm.Message{llm.System(extractionSystemPrompt), llm.User(user)}
}

func validationMessages(text string, candidate crawler.ProgramInfo) ([]llm.Message, error) {
	candidateJSON, err := json.MarshalIndent(candidate, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal candidate: %w", err)
	}
	user := fmt.Sprintf(`You are given a target JSON schema, a page text, and a JSON object extracted from the text according to the schema.

Target JSON schema:
`+"```json\n%s\n```"+`

Your task:
1. Compare the JSON object with the information in the page text.
2. Decide whether the JSON object accurately and completely represents the information defined by the schema. Ignore fields the schema does not define.
3. Check that the JSON object's hierarchy and format follow the schema exactly.
4. Output only "True" or "False" on the first line.
5. On the second line, give a one-sentence reason.
6. If the first line is "False", output the corrected JSON object from the third line on, using the page text to fix only schema fields.

Page text:
`+"```markdown\n%s\n```"+`

JSON to validate:
`+"```json\n%s\n```"+`

Does the JSON correctly represent the information defined in the schema, including hierarchy and format? Start your response with True or False.`,
		ProgramSchema, text, candidateJSON)
	return []llm.Message{llm.System(validationSystemPrompt), llm.User(user)}, nil
}
