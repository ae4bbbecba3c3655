package assistant

import (
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/program-crawler/internal/llm"
)

const systemPrompt = `You are a course filtering assistant.
Understand the user's request, think it through step by step, then output a JSON object naming the filters to apply.

Output rules:
1. Write your reasoning as plain text lines, with a line break between steps.
2. When your reasoning is complete, output the marker ` + Marker + ` on its own.
3. Directly after the marker, output one valid, single-line, compact JSON object and nothing after it.
4. The object must have the shape {"filters": {"field_name": ["value1", "value2"]}}.
   - field_name must be one of the available filter fields.
   - Every value must be copied exactly from that field's option list. Never invent values.
   - Leave out fields that do not apply.

The marker ` + Marker + ` must appear exactly once and must never be split.`

func messages(query string, opts Options) ([]llm.Message, error) {
	optionJSON, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("encode filter options: %w", err)
	}
	user := fmt.Sprintf(`The user's request is: %q.

These are the filter fields and every option they accept:
%s

Choose only from these options. If nothing matches the request exactly, pick the closest option or leave the field out.

Begin your reasoning now, then output the marker and the JSON object as instructed.`, query, optionJSON)
	return []llm.Message{llm.System(systemPrompt), llm.User(user)}, nil
}
