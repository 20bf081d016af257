package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// ResponseKind discriminates the answer union.
type ResponseKind string

const (
	ResponseMCQ       ResponseKind = "mcq"
	ResponseTrueFalse ResponseKind = "true_false"
	ResponseText      ResponseKind = "text"
)

// Response is a student's answer to a single question. Exactly one payload
// field is set, matching Kind.
type Response struct {
	Kind        ResponseKind `json:"type"`
	ChosenIndex *int         `json:"chosen_index,omitempty"`
	Value       *string      `json:"value,omitempty"`
	Text        *string      `json:"text,omitempty"`
}

// MCQResponse builds a multiple-choice answer.
func MCQResponse(index int) Response {
	return Response{Kind: ResponseMCQ, ChosenIndex: &index}
}

// TrueFalseResponse builds a true/false answer.
func TrueFalseResponse(value string) Response {
	return Response{Kind: ResponseTrueFalse, Value: &value}
}

// TextResponse builds a free-text answer.
func TextResponse(text string) Response {
	return Response{Kind: ResponseText, Text: &text}
}

// Validate checks the union is well formed.
func (r Response) Validate() error {
	switch r.Kind {
	case ResponseMCQ:
		if r.ChosenIndex == nil || r.Value != nil || r.Text != nil {
			return fmt.Errorf("mcq response requires chosen_index only")
		}
		if *r.ChosenIndex < 0 {
			return fmt.Errorf("chosen_index must not be negative")
		}
	case ResponseTrueFalse:
		if r.Value == nil || r.ChosenIndex != nil || r.Text != nil {
			return fmt.Errorf("true_false response requires value only")
		}
	case ResponseText:
		if r.Text == nil || r.ChosenIndex != nil || r.Value != nil {
			return fmt.Errorf("text response requires text only")
		}
	default:
		return fmt.Errorf("unknown response type %q", r.Kind)
	}
	return nil
}

// Accepts reports whether the response kind fits the question type.
func (r Response) Accepts(t QuestionType) bool {
	switch t {
	case QuestionMCQ:
		return r.Kind == ResponseMCQ
	case QuestionTrueFalse:
		return r.Kind == ResponseTrueFalse
	case QuestionFillBlank, QuestionShortAnswer, QuestionEssay:
		return r.Kind == ResponseText
	}
	return false
}

// Responses maps question ids to answers.
type Responses map[string]Response

// Merge returns a copy of r overlaid with update.
func (r Responses) Merge(update Responses) Responses {
	out := make(Responses, len(r)+len(update))
	for k, v := range r {
		out[k] = v
	}
	for k, v := range update {
		out[k] = v
	}
	return out
}

// Value marshals responses for a JSONB column.
func (r Responses) Value() (driver.Value, error) {
	if r == nil {
		r = Responses{}
	}
	return marshalJSONColumn(map[string]Response(r), "responses")
}

// Scan unmarshals responses from a JSONB column.
func (r *Responses) Scan(value interface{}) error {
	*r = Responses{}
	return scanJSONColumn(value, r, "responses")
}

// UnmarshalJSON rejects malformed union members.
func (r *Response) UnmarshalJSON(data []byte) error {
	type alias Response
	var decoded alias
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	candidate := Response(decoded)
	if err := candidate.Validate(); err != nil {
		return err
	}
	*r = candidate
	return nil
}
