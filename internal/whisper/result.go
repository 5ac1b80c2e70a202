package whisper

import (
	"encoding/json"
	"strings"
	"time"
	"unicode"
)

// segment and token mirror the parts of whisper.cpp output we use.
type segment struct {
	Text   string
	Tokens []token
}

type token struct {
	Text  string
	P     float32
	Start time.Duration
	End   time.Duration
}

type resultJSON struct {
	Alternatives []alternativeJSON `json:"alternatives"`
}

type alternativeJSON struct {
	Confidence float64    `json:"confidence"`
	Result     []wordJSON `json:"result,omitempty"`
	Text       string     `json:"text"`
}

type wordJSON struct {
	Word  string  `json:"word"`
	Conf  float64 `json:"conf"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// buildResult renders segments as ranked alternatives: the whole utterance
// first, then each segment on its own when there is more than one.
func buildResult(segments []segment, maxAlternatives int, words bool) []byte {
	if maxAlternatives < 1 {
		maxAlternatives = 1
	}

	var (
		texts  []string
		tokens []token
		parts  []alternativeJSON
	)
	for _, seg := range segments {
		if isAnnotation(seg.Text) {
			continue
		}
		text := normalize(seg.Text)
		if text == "" {
			continue
		}
		texts = append(texts, text)
		tokens = append(tokens, seg.Tokens...)
		parts = append(parts, alternativeJSON{Text: text, Confidence: meanP(seg.Tokens)})
	}

	full := alternativeJSON{Text: strings.Join(texts, " "), Confidence: meanP(tokens)}
	if words {
		full.Result = mergeWords(tokens)
	}

	out := resultJSON{Alternatives: []alternativeJSON{full}}
	if len(parts) > 1 {
		out.Alternatives = append(out.Alternatives, parts...)
	}
	if len(out.Alternatives) > maxAlternatives {
		out.Alternatives = out.Alternatives[:maxAlternatives]
	}

	data, _ := json.Marshal(out)
	return data
}

// mergeWords joins sub-word tokens into words. A token starting with a space
// opens a new word. Special tokens such as [_BEG_] are dropped.
func mergeWords(tokens []token) []wordJSON {
	var out []wordJSON
	for _, tok := range tokens {
		if isSpecial(tok.Text) {
			continue
		}
		piece := normalize(tok.Text)
		if piece == "" {
			continue
		}
		startsWord := strings.HasPrefix(tok.Text, " ") || len(out) == 0
		if startsWord {
			out = append(out, wordJSON{
				Word:  piece,
				Conf:  float64(tok.P),
				Start: tok.Start.Seconds(),
				End:   tok.End.Seconds(),
			})
			continue
		}
		w := &out[len(out)-1]
		w.Word += piece
		w.End = tok.End.Seconds()
		if float64(tok.P) < w.Conf {
			w.Conf = float64(tok.P)
		}
	}
	return out
}

func meanP(tokens []token) float64 {
	var sum float64
	var n int
	for _, tok := range tokens {
		if isSpecial(tok.Text) {
			continue
		}
		sum += float64(tok.P)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// isAnnotation matches non-speech markers such as [BLANK_AUDIO] or (music).
func isAnnotation(text string) bool {
	t := strings.TrimSpace(text)
	if len(t) < 2 {
		return false
	}
	return (t[0] == '[' && t[len(t)-1] == ']') || (t[0] == '(' && t[len(t)-1] == ')')
}

func isSpecial(text string) bool {
	t := strings.TrimSpace(text)
	return strings.HasPrefix(t, "[_") || strings.HasPrefix(t, "<|")
}

// normalize lowercases text and strips punctuation except apostrophes, so
// "Clip that!" becomes "clip that".
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '\'':
			b.WriteRune(r)
		case r == '’':
			b.WriteRune('\'')
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
