package search

import (
	"fmt"

	"github.com/JakeFAU/program-crawler/internal/llm"
)

const weightSystemPrompt = "You analyze search intent for an education program search engine."

const weightPromptTemplate = `Analyze the query below and output the best field weights for ranking programs.

Query: %q

Available fields:
- program_name: the program title
- discipline: broad area such as Business or IT
- sub_discipline: narrower area such as Finance or Computer Science
- university: the awarding university
- academic_level: Bachelor, Master and so on
- programme_type: full-time or part-time
- introduction: the program description text
- fee_range: the tuition fee range
- admission_requirements: entry requirements

Work out the main intent of the query (a subject, a type of program, a specific university) and give every relevant field a weight from 1.0 to 5.0.

Output only JSON, with no explanation:
{"field": weight, ...}`

func weightMessages(query string) []llm.Message {
	return []llm.Message{
		llm.System(weightSystemPrompt),
		llm.User(fmt.Sprintf(weightPromptTemplate, query)),
	}
}
