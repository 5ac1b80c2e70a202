// Package keyword detects trigger phrases in recognition results.
package keyword

import (
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/petems/voiceclip/internal/recognizer"
)

// clipTerms is the clip trigger and the ways the recognizer tends to mishear it.
var clipTerms = []string{
	"clip that",
	"quebec",
	"hope that",
	"could that",
	"cop that",
}

// Matcher reports the phrase found in text.
type Matcher interface {
	Match(text string) (phrase string, ok bool)
}

// Set is an immutable list of trigger phrases matched by case-sensitive
// substring containment. Engines emit lowercase text, so phrases are lowercase.
type Set struct {
	phrases []string
}

func NewSet(phrases ...string) *Set {
	return &Set{phrases: append([]string(nil), phrases...)}
}

// Default returns the clip trigger set.
func Default() *Set {
	return NewSet(clipTerms...)
}

// Match returns the first phrase, in set order, contained in text.
func (s *Set) Match(text string) (string, bool) {
	for _, p := range s.phrases {
		if strings.Contains(text, p) {
			return p, true
		}
	}
	return "", false
}

// Phrases returns a copy of the set's phrases.
func (s *Set) Phrases() []string {
	return append([]string(nil), s.phrases...)
}

// Match describes a detected trigger.
type Match struct {
	Channel string
	Phrase  string
	Text    string // hypothesis that contained Phrase
	Rank    int    // zero-based position of the hypothesis
	At      time.Time
}

// Action is fired once per utterance that contains a trigger.
type Action func(Match)

// Interpreter scans results for trigger phrases.
type Interpreter struct {
	matcher Matcher
	action  Action
	log     zerolog.Logger
	now     func() time.Time
}

func NewInterpreter(m Matcher, action Action, log zerolog.Logger) *Interpreter {
	return &Interpreter{
		matcher: m,
		action:  action,
		log:     log.With().Str("component", "interpreter").Logger(),
		now:     time.Now,
	}
}

// Interpret walks the hypotheses of r in rank order, skipping blank ones. The
// first hypothesis that contains a trigger fires the action and ends the scan;
// later hypotheses are never examined. It reports whether the action fired.
func (in *Interpreter) Interpret(channel string, r recognizer.Result) (fired bool) {
	defer func() {
		if rec := recover(); rec != nil {
			in.log.Error().Interface("panic", rec).Bytes("stack", debug.Stack()).Msg("Error handling voice result")
		}
	}()

	for rank, h := range r.Hypotheses {
		if strings.TrimSpace(h.Text) == "" {
			continue
		}

		in.log.Debug().Str("channel", channel).Int("rank", rank).Str("text", h.Text).Msg("Hypothesis")

		phrase, ok := in.matcher.Match(h.Text)
		if !ok {
			continue
		}

		in.log.Info().Str("channel", channel).Str("phrase", phrase).Str("text", h.Text).Msg("Trigger detected")
		in.action(Match{
			Channel: channel,
			Phrase:  phrase,
			Text:    h.Text,
			Rank:    rank,
			At:      in.now(),
		})
		return true
	}
	return false
}
