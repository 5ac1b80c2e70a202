package recognizer

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrMalformedResult is returned when engine output is not a JSON object.
var ErrMalformedResult = errors.New("recognizer: malformed engine result")

// Status classifies a parsed result.
type Status int

const (
	// StatusOK means at least one hypothesis was parsed.
	StatusOK Status = iota
	// StatusEmpty means the output was valid but held no usable alternatives.
	StatusEmpty
	// StatusMalformed means the output could not be parsed at all.
	StatusMalformed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEmpty:
		return "empty"
	default:
		return "malformed"
	}
}

// Result is one finalized utterance: hypotheses in engine rank order.
type Result struct {
	Status     Status
	Hypotheses []Hypothesis
}

// Top returns the best ranked hypothesis text, or "".
func (r Result) Top() string {
	if len(r.Hypotheses) == 0 {
		return ""
	}
	return r.Hypotheses[0].Text
}

type Hypothesis struct {
	Text       string
	Confidence float64
	Words      []Word
}

// Word is per-word detail, present when the engine was asked for it.
type Word struct {
	Text       string
	Confidence float64
	Start      float64 // seconds from utterance start
	End        float64
}

// ParseResult decodes engine output of the form
//
//	{"alternatives":[{"text":"clip that","confidence":0.9,"result":[{"word":"clip","conf":1,"start":0.1,"end":0.4}]}]}
//
// A missing or non-array "alternatives" section, or alternatives that are not
// objects, produce StatusEmpty rather than an error.
func ParseResult(raw []byte) (Result, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return Result{Status: StatusMalformed}, fmt.Errorf("%w: %.64q", ErrMalformedResult, raw)
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return Result{Status: StatusMalformed}, fmt.Errorf("%w: not an object", ErrMalformedResult)
	}

	alts := root.Get("alternatives")
	if !alts.IsArray() {
		return Result{Status: StatusEmpty}, nil
	}

	var hyps []Hypothesis
	alts.ForEach(func(_, alt gjson.Result) bool {
		if !alt.IsObject() {
			return true
		}
		h := Hypothesis{
			Text:       alt.Get("text").String(),
			Confidence: alt.Get("confidence").Float(),
		}
		alt.Get("result").ForEach(func(_, w gjson.Result) bool {
			h.Words = append(h.Words, Word{
				Text:       w.Get("word").String(),
				Confidence: w.Get("conf").Float(),
				Start:      w.Get("start").Float(),
				End:        w.Get("end").Float(),
			})
			return true
		})
		hyps = append(hyps, h)
		return true
	})

	if len(hyps) == 0 {
		return Result{Status: StatusEmpty}, nil
	}
	return Result{Status: StatusOK, Hypotheses: hyps}, nil
}
