package crawler

import (
	"encoding/json"
	"fmt"
)

// Record is one entry of the result store: the listing row overlaid with the
// extracted program, or the listing row plus an error annotation.
type Record struct {
	Listing Listing
	Program *ProgramInfo
	Error   string
}

// NewSuccessRecord merges a listing row with its extracted program.
func NewSuccessRecord(listing Listing, program ProgramInfo) Record {
	return Record{Listing: listing, Program: &program}
}

// NewFailureRecord annotates a listing row with a permanent failure.
func NewFailureRecord(listing Listing, errText string) Record {
	return Record{Listing: listing, Error: errText}
}

// Failed reports whether the record is a permanent failure.
func (r Record) Failed() bool {
	return r.Error != ""
}

// Fields flattens the record into a single key space. Extracted program
// values replace listing values that share a key; keys the program does not
// carry keep the listing value.
func (r Record) Fields() (map[string]any, error) {
	out, err := toFields(r.Listing)
	if err != nil {
		return nil, fmt.Errorf("flatten listing: %w", err)
	}
	if r.Program != nil {
		extracted, err := r.Program.Fields()
		if err != nil {
			return nil, fmt.Errorf("flatten program: %w", err)
		}
		for k, v := range extracted {
			out[k] = v
		}
	}
	if r.Error != "" {
		out["error"] = r.Error
	}
	return out, nil
}

// MarshalJSON implements json.Marshaler.
func (r Record) MarshalJSON() ([]byte, error) {
	fields, err := r.Fields()
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return data, nil
}

func toFields(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	out := make(map[string]any)
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return out, nil
}
