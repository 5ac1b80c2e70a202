// Package action carries out what happens after a trigger phrase is heard:
// saving a highlight and confirming it to the user. Work runs off the
// recognition path on an ordered background worker.
package action

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/petems/voiceclip/internal/config"
	"github.com/petems/voiceclip/internal/keyword"
)

// Trigger turns keyword matches into a highlight followed by feedback.
type Trigger struct {
	Highlighter Highlighter
	Announcer   Announcer
	Group       string
	Tag         string
	Feedback    string

	dispatcher *Dispatcher
	log        zerolog.Logger
}

// New builds a Trigger from config. A webhook URL selects the webhook
// highlighter, otherwise highlights are only logged.
func New(cfg config.ActionsConfig, log zerolog.Logger) *Trigger {
	log = log.With().Str("component", "action").Logger()

	var h Highlighter = LogHighlighter{Log: log}
	if cfg.WebhookURL != "" {
		h = &WebhookHighlighter{URL: cfg.WebhookURL}
	}

	var a Announcer
	switch cfg.Feedback {
	case config.FeedbackSay:
		a = SayAnnouncer{}
	case config.FeedbackNone:
		a = NopAnnouncer{}
	default:
		a = NotifyAnnouncer{Title: "VoiceClip"}
	}

	return NewTrigger(h, a, cfg, log)
}

func NewTrigger(h Highlighter, a Announcer, cfg config.ActionsConfig, log zerolog.Logger) *Trigger {
	return &Trigger{
		Highlighter: h,
		Announcer:   a,
		Group:       cfg.HighlightGroup,
		Tag:         cfg.HighlightTag,
		Feedback:    cfg.FeedbackText,
		dispatcher:  NewDispatcher(16, log),
		log:         log,
	}
}

// Fire queues the highlight and feedback for m. It never blocks.
func (t *Trigger) Fire(m keyword.Match) {
	h := Highlight{
		Group:   t.Group,
		Tag:     t.Tag,
		Manual:  true,
		Channel: m.Channel,
		Phrase:  m.Phrase,
		Text:    m.Text,
		At:      m.At,
	}
	t.dispatcher.Dispatch("clip", func(ctx context.Context) error {
		if err := t.Highlighter.SaveHighlight(ctx, h); err != nil {
			return err
		}
		if t.Feedback == "" {
			return nil
		}
		if err := t.Announcer.Announce(ctx, t.Feedback); err != nil {
			return fmt.Errorf("feedback: %w", err)
		}
		return nil
	})
}

// Close drains queued actions.
func (t *Trigger) Close(ctx context.Context) error {
	return t.dispatcher.Close(ctx)
}
