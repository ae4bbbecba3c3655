package extract

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/program-crawler/internal/crawler"
	"github.com/JakeFAU/program-crawler/internal/llm"
	"github.com/JakeFAU/program-crawler/internal/metrics"
)

// DefaultMaxRounds bounds validation rounds per refinement loop.
const DefaultMaxRounds = 3

// FailureCode distinguishes why a refinement loop failed.
type FailureCode string

// Refinement failure codes.
const (
	CodeAPIError          FailureCode = "api_error"
	CodeEmptyResponse     FailureCode = "empty_response"
	CodeInvalidVerdict    FailureCode = "invalid_verdict"
	CodeMissingCorrection FailureCode = "missing_correction"
	CodeInvalidCorrection FailureCode = "invalid_correction"
	CodeExhausted         FailureCode = "exhausted"
	CodeSchemaMismatch    FailureCode = "schema_mismatch"
)

// RefineError is returned for every failed loop. Last is the candidate held
// when the loop stopped.
type RefineError struct {
	Code   FailureCode
	Reason string
	Rounds int
	Last   crawler.ProgramInfo
	Err    error
}

func (e *RefineError) Error() string {
	msg := fmt.Sprintf("refine failed (%s) after %d round(s)", e.Code, e.Rounds)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RefineError) Unwrap() error {
	return e.Err
}

// Exhausted reports whether the loop ran out of rounds without acceptance.
func (e *RefineError) Exhausted() bool {
	return e.Code == CodeExhausted
}

// Refiner runs the validate-and-correct loop.
type Refiner struct {
	model       Completer
	maxRounds   int
	maxTokens   int
	schemaCheck bool
	logger      *zap.Logger
}

// RefinerConfig tunes a Refiner.
type RefinerConfig struct {
	MaxRounds int
	MaxTokens int
	// SchemaCheck rejects an accepted candidate that lacks program_name or
	// university.
	SchemaCheck bool
}

// NewRefiner builds a Refiner.
func NewRefiner(model Completer, cfg RefinerConfig, logger *zap.Logger) *Refiner {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refiner{
		model:       model,
		maxRounds:   cfg.MaxRounds,
		maxTokens:   cfg.MaxTokens,
		schemaCheck: cfg.SchemaCheck,
		logger:      logger,
	}
}

// Refine validates candidate against text for at most MaxRounds rounds,
// replacing it with each correction the model supplies. It returns the
// accepted document or a *RefineError.
func (r *Refiner) Refine(ctx context.Context, text string, candidate crawler.ProgramInfo) (crawler.ProgramInfo, error) {
	reason := ""
	for round := 1; round <= r.maxRounds; round++ {
		messages, err := validationMessages(text, candidate)
		if err != nil {
			return r.fail(CodeAPIError, reason, round, candidate, err)
		}
		content, err := r.model.Chat(ctx, llm.ChatRequest{
			Messages:    messages,
			Temperature: 0,
			MaxTokens:   r.maxTokens,
		})
		if err != nil {
			return r.fail(CodeAPIError, reason, round, candidate, err)
		}

		verdict, code := ParseVerdict(content)
		if verdict.Reason != "" {
			reason = verdict.Reason
		}
		if code != "" {
			return r.fail(code, reason, round, candidate, nil)
		}

		if verdict.Valid {
			if r.schemaCheck {
				if missing := candidate.MissingRequiredFields(); len(missing) > 0 {
					return r.fail(CodeSchemaMismatch, "accepted document is missing "+strings.Join(missing, ", "), round, candidate, nil)
				}
			}
			r.logger.Debug("candidate accepted", zap.Int("round", round), zap.String("reason", reason))
			metrics.ObserveRefine(round, "")
			return candidate, nil
		}

		r.logger.Debug("candidate corrected", zap.Int("round", round), zap.String("reason", reason))
		candidate = *verdict.Corrected
	}
	return r.fail(CodeExhausted, reason, r.maxRounds, candidate, nil)
}

func (r *Refiner) fail(code FailureCode, reason string, rounds int, last crawler.ProgramInfo, err error) (crawler.ProgramInfo, error) {
	metrics.ObserveRefine(rounds, string(code))
	r.logger.Debug("refinement failed",
		zap.String("code", string(code)),
		zap.Int("rounds", rounds),
		zap.String("reason", reason),
		zap.Error(err),
	)
	return crawler.ProgramInfo{}, &RefineError{Code: code, Reason: reason, Rounds: rounds, Last: last, Err: err}
}
