package crawler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TaskState represents the lifecycle state of a crawl task.
type TaskState string

// Task state values tracked by the orchestrator.
const (
	TaskPending           TaskState = "pending"
	TaskRunning           TaskState = "running"
	TaskSucceeded         TaskState = "succeeded"
	TaskRequeued          TaskState = "requeued"
	TaskPermanentlyFailed TaskState = "permanently_failed"
)

const permanentFailureFormat = "Failed after %d global retry attempts"

// Terminal reports whether no further transitions are possible.
func (s TaskState) Terminal() bool {
	return s == TaskSucceeded || s == TaskPermanentlyFailed
}

// Listing is one row of the program listing CSV.
type Listing struct {
	DataID           string `json:"data_id" csv:"data_id"`
	ProgramName      string `json:"program_name" csv:"program_name"`
	University       string `json:"university" csv:"university"`
	Discipline       string `json:"discipline" csv:"discipline"`
	SubDiscipline    string `json:"sub_discipline" csv:"sub_discipline"`
	Tags             string `json:"tags" csv:"tags"`
	AcademicLevel    string `json:"academic_level" csv:"academic_level"`
	ProgrammeType    string `json:"programme_type" csv:"programme_type"`
	ApplicationDates string `json:"application_dates" csv:"application_dates"`
	FeeRange         string `json:"fee_range" csv:"fee_range"`
	ProgramLink      string `json:"program_link" csv:"program_link"`
}

// ExtractionTarget carries a page through normalization.
type ExtractionTarget struct {
	URL            string
	RawHTML        []byte
	NormalizedText string
	FetchedAt      time.Time
	StatusCode     int
}

// ProgramInfo is the structured document extracted from a program page.
type ProgramInfo struct {
	ProgramName           string                            `json:"program_name"`
	University            string                            `json:"university"`
	Introduction          string                            `json:"introduction"`
	AcademicLevel         string                            `json:"academic_level"`
	ProgrammeType         string                            `json:"programme_type"`
	DomesticTotalFee      FlexString                        `json:"domestic_total_fee"`
	InternationalTotalFee FlexString                        `json:"international_total_fee"`
	ApplicationPeriod     FlexString                        `json:"application_period"`
	CourseModules         []CourseModule                    `json:"course_modules"`
	AdmissionRequirements map[string][]AdmissionRequirement `json:"admission_requirements"`

	// emitted holds the top-level keys of the decoded JSON, so a merge only
	// overrides what the model actually returned.
	emitted map[string]json.RawMessage
}

// UnmarshalJSON decodes the typed view and remembers which keys were present.
func (p *ProgramInfo) UnmarshalJSON(data []byte) error {
	type plain ProgramInfo
	var typed plain
	if err := json.Unmarshal(data, &typed); err != nil {
		return err
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	*p = ProgramInfo(typed)
	p.emitted = keys
	return nil
}

// Fields returns the document as a flat field map. A decoded document keeps
// exactly the keys it was decoded from, known fields in normalized form and
// unknown ones as decoded. A document built in code omits zero values.
func (p ProgramInfo) Fields() (map[string]any, error) {
	typed, err := toFields(p)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(typed))
	if p.emitted != nil {
		for key, raw := range p.emitted {
			if v, ok := typed[key]; ok {
				out[key] = v
				continue
			}
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, fmt.Errorf("decode %s: %w", key, err)
			}
			out[key] = v
		}
		return out, nil
	}
	for key, v := range typed {
		if !isZeroField(v) {
			out[key] = v
		}
	}
	return out, nil
}

func isZeroField(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	default:
		return false
	}
}

// CourseModule groups courses under a named module.
type CourseModule struct {
	ModuleName string   `json:"module_name"`
	Courses    []Course `json:"course_modules"`
}

// Course is a single course inside a module.
type Course struct {
	CourseName        string `json:"course_name"`
	CourseDescription string `json:"course_description"`
}

// AdmissionRequirement describes one requirement for an applicant category.
type AdmissionRequirement struct {
	RequirementType        string         `json:"requirement_type"`
	RequirementDescription string         `json:"requirement_description"`
	SpecificRequirements   map[string]any `json:"specific_requirements"`
}

// MissingRequiredFields lists the identifying fields a document lacks.
func (p ProgramInfo) MissingRequiredFields() []string {
	var missing []string
	if strings.TrimSpace(p.ProgramName) == "" {
		missing = append(missing, "program_name")
	}
	if strings.TrimSpace(p.University) == "" {
		missing = append(missing, "university")
	}
	return missing
}

// FlexString decodes a JSON string, number, or null into a string. Models
// regularly answer fee fields with bare numbers.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode flex string: %w", err)
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode flex string: %w", err)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return fmt.Errorf("decode flex string: %w", err)
	}
	*f = FlexString(n.String())
	return nil
}

// CrawlTask is one unit of orchestrator work.
type CrawlTask struct {
	URL     string
	Listing Listing
	Attempt int
	State   TaskState
	LastErr error
}

// PermanentFailureMessage is the error text recorded once the attempt cap is hit.
func PermanentFailureMessage(maxAttempts int) string {
	return fmt.Sprintf(permanentFailureFormat, maxAttempts)
}

// RunSummary reports the outcome of an orchestrator run.
type RunSummary struct {
	RunID     string        `json:"run_id"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Waves     int           `json:"waves"`
	Duration  time.Duration `json:"duration"`
}
