package archive

import (
	"fmt"
	"strings"
	"time"
)

func mapResultToPGN(result string) string {
	switch strings.ToLower(strings.TrimSpace(result)) {
	case "white":
		return "1-0"
	case "black":
		return "0-1"
	case "draw":
		return "1/2-1/2"
	default:
		return "*"
	}
}

// resultOf derives white/black/draw from the final status. Aborted and unknown endings stay "".
func resultOf(winner, reason string) string {
	switch strings.ToLower(strings.TrimSpace(winner)) {
	case "white":
		return "white"
	case "black":
		return "black"
	}
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case "draw", "stalemate":
		return "draw"
	}
	return ""
}

func buildPGN(g *GameRecord, botName string) string {
	if g == nil {
		return ""
	}
	date := g.Ended
	if date.IsZero() {
		date = time.Now()
	}
	white, black := "?", "?"
	if name := sanitizePGN(botName); name != "" {
		if g.Color == "black" {
			black = name
		} else {
			white = name
		}
	}
	pgnResult := mapResultToPGN(g.Result)

	var b strings.Builder
	b.WriteString("[Event \"Lichess bot game\"]\n")
	b.WriteString(fmt.Sprintf("[Site \"https://lichess.org/%s\"]\n", sanitizePGN(g.GameID)))
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", white))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", black))
	if strings.TrimSpace(g.Reason) != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(strings.ToLower(g.Reason))))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", pgnResult))

	moves := g.MovesSAN
	if len(moves) == 0 {
		moves = g.MovesUCI
	}
	for i := 0; i < len(moves); i += 2 {
		b.WriteString(fmt.Sprintf("%d. %s", i/2+1, strings.TrimSpace(moves[i])))
		if i+1 < len(moves) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(moves[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(pgnResult)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
