package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Highlight is a request to mark the current moment as a clip.
type Highlight struct {
	Group   string    `json:"group"`
	Tag     string    `json:"tag"`
	Manual  bool      `json:"manual"`
	Channel string    `json:"channel"`
	Phrase  string    `json:"phrase"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// Highlighter persists highlights.
type Highlighter interface {
	SaveHighlight(ctx context.Context, h Highlight) error
}

// WebhookHighlighter POSTs each highlight as JSON to a URL, for recorders
// that expose a "save replay" endpoint.
type WebhookHighlighter struct {
	URL    string
	Client *http.Client
}

func (w *WebhookHighlighter) SaveHighlight(ctx context.Context, h Highlight) error {
	body, err := json.Marshal(h)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("save highlight: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("save highlight: HTTP %d", resp.StatusCode)
	}
	return nil
}

// LogHighlighter only records highlights in the log.
type LogHighlighter struct {
	Log zerolog.Logger
}

func (l LogHighlighter) SaveHighlight(_ context.Context, h Highlight) error {
	l.Log.Info().
		Str("group", h.Group).
		Str("tag", h.Tag).
		Str("channel", h.Channel).
		Str("phrase", h.Phrase).
		Time("at", h.At).
		Msg("Highlight saved")
	return nil
}
