package scoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Score is the score value as sent by the service: a JSON number or string.
// Numbers keep their literal form so 82 renders as "82" and 82.5 as "82.5".
type Score struct {
	text    string
	numeric bool
}

// NumberScore builds a numeric score from its literal text.
func NumberScore(literal string) Score {
	return Score{text: literal, numeric: true}
}

// TextScore builds a string score.
func TextScore(value string) Score {
	return Score{text: value}
}

// String returns the display text for the score.
func (s Score) String() string { return s.text }

// IsNumber reports whether the service sent the score as a JSON number.
func (s Score) IsNumber() bool { return s.numeric }

// UnmarshalJSON accepts JSON numbers and strings.
func (s *Score) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return errors.New("empty score")
	}
	switch trimmed[0] {
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return err
		}
		*s = TextScore(text)
		return nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var num json.Number
		if err := json.Unmarshal(trimmed, &num); err != nil {
			return err
		}
		*s = NumberScore(num.String())
		return nil
	default:
		return fmt.Errorf("unsupported score value %s", trimmed)
	}
}

// Response is the decoded scoring payload. Nil pointers mark keys that were
// absent or null.
type Response struct {
	Score      *Score
	Reason     *string
	Summary    *string
	StatusCode int
}

// HasScore reports whether a score was present.
func (r Response) HasScore() bool { return r.Score != nil }

// HasReason reports whether a reason was present.
func (r Response) HasReason() bool { return r.Reason != nil }

// decodeResponse accepts any well-formed JSON body. Keys that are missing,
// null or of an unexpected type are left absent so display defaults apply.
// A top-level null, like a body that is not JSON at all, is an error.
func decodeResponse(body []byte) (Response, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Response{}, errors.New("empty body")
	}
	if !json.Valid(trimmed) {
		return Response{}, errors.New("body is not valid JSON")
	}
	if bytes.Equal(trimmed, []byte("null")) {
		return Response{}, errors.New("body is null")
	}
	if trimmed[0] != '{' {
		return Response{}, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return Response{}, err
	}

	var resp Response
	if raw, ok := fields["score"]; ok {
		var score Score
		if err := json.Unmarshal(raw, &score); err == nil {
			resp.Score = &score
		}
	}
	resp.Reason = optionalString(fields["reason"])
	resp.Summary = optionalString(fields["goals_summary"])
	return resp, nil
}

func optionalString(raw json.RawMessage) *string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return nil
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err != nil {
		return nil
	}
	return &text
}
