package extract

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/JakeFAU/program-crawler/internal/crawler"
)

var fencePattern = regexp.MustCompile("(?is)^```(?:json)?\\s*(.*?)\\s*```$")

// StripCodeFence removes a surrounding ```json or ``` fence, if any.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	if len(s) >= 6 && strings.HasPrefix(s, "```") && strings.HasSuffix(s, "```") {
		return strings.TrimSpace(s[3 : len(s)-3])
	}
	return s
}

// ParseProgram decodes model output into a ProgramInfo after stripping any
// code fence. Failures are *crawler.ParseError carrying the offending text.
func ParseProgram(content string) (crawler.ProgramInfo, error) {
	cleaned := StripCodeFence(content)
	if cleaned == "" {
		return crawler.ProgramInfo{}, &crawler.ParseError{Input: content, Err: errors.New("empty model response")}
	}
	var program crawler.ProgramInfo
	if err := json.Unmarshal([]byte(cleaned), &program); err != nil {
		return crawler.ProgramInfo{}, &crawler.ParseError{Input: cleaned, Err: err}
	}
	return program, nil
}

// Verdict is one validation round's outcome.
type Verdict struct {
	Valid     bool
	Reason    string
	Corrected *crawler.ProgramInfo
}

const noReason = "No reason provided."

// ParseVerdict reads a validation response: "true"/"false" on the first line,
// a reason on the second, and for "false" a corrected JSON document in the
// remainder, starting at the first '{' or '['. A non-empty code reports why
// the response could not be used; the returned Verdict still carries the reason.
func ParseVerdict(content string) (Verdict, FailureCode) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Verdict{}, CodeEmptyResponse
	}
	lines := strings.SplitN(content, "\n", 3)
	head := strings.ToLower(strings.TrimSpace(lines[0]))
	verdict := Verdict{Reason: noReason}
	if len(lines) > 1 {
		verdict.Reason = strings.TrimSpace(lines[1])
	}

	switch head {
	case "true":
		verdict.Valid = true
		return verdict, ""
	case "false":
	default:
		return verdict, CodeInvalidVerdict
	}

	if len(lines) < 3 {
		return verdict, CodeMissingCorrection
	}
	raw := strings.TrimSpace(lines[2])
	start := strings.IndexAny(raw, "{[")
	if start < 0 {
		return verdict, CodeMissingCorrection
	}
	candidate := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw[start:]), "```"))
	var corrected crawler.ProgramInfo
	if err := json.Unmarshal([]byte(candidate), &corrected); err != nil {
		return verdict, CodeInvalidCorrection
	}
	verdict.Corrected = &corrected
	return verdict, ""
}
