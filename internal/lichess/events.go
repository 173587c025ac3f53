package lichess

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/park285/Cheese-lichess-bot/internal/session"
)

type wireUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type wireChallenge struct {
	ID         string          `json:"id"`
	Variant    json.RawMessage `json:"variant"`
	Speed      string          `json:"speed"`
	Rated      bool            `json:"rated"`
	Challenger *wireUser       `json:"challenger"`
}

type wireGame struct {
	ID     string `json:"id"`
	GameID string `json:"gameId"`
	Color  string `json:"color"`
}

type wireEvent struct {
	Type      string         `json:"type"`
	Challenge *wireChallenge `json:"challenge"`
	Game      *wireGame      `json:"game"`
}

// DecodeEvent turns one event-stream line into a session.Event. Unknown types become EventOther.
func DecodeEvent(raw []byte) (session.Event, error) {
	raw = bytes.TrimSpace(raw)
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return session.Event{}, fmt.Errorf("%w: %v", session.ErrMalformedEvent, err)
	}

	ev := session.Event{Raw: string(raw)}
	switch w.Type {
	case "challenge":
		if w.Challenge == nil {
			return session.Event{}, fmt.Errorf("%w: challenge event without challenge", session.ErrMalformedEvent)
		}
		ev.Type = session.EventChallenge
		ref := &session.ChallengeRef{
			ID:      w.Challenge.ID,
			Variant: variantKey(w.Challenge.Variant),
			Speed:   w.Challenge.Speed,
			Rated:   w.Challenge.Rated,
		}
		if w.Challenge.Challenger != nil {
			ref.Challenger = firstNonEmpty(w.Challenge.Challenger.Name, w.Challenge.Challenger.ID)
		}
		ev.Challenge = ref
	case "gameStart", "gameFinish":
		if w.Game == nil {
			return session.Event{}, fmt.Errorf("%w: %s event without game", session.ErrMalformedEvent, w.Type)
		}
		ev.Type = session.EventType(w.Type)
		ev.Game = &session.GameRef{
			ID:    firstNonEmpty(w.Game.GameID, w.Game.ID),
			Color: w.Game.Color,
		}
	default:
		ev.Type = session.EventOther
	}
	return ev, nil
}

// variantKey accepts both {"key":"standard",...} and a bare string.
func variantKey(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Key
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
