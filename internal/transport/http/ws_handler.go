package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"chronos-cypher-service/internal/app"
	"chronos-cypher-service/internal/domain"
	"chronos-cypher-service/internal/engine"
	"github.com/gorilla/websocket"
)

// WSHandler drives one team's gameplay over a websocket: level attempts,
// answers, hints, the one-second timer tick, and leaderboard updates.
type WSHandler struct {
	service  *app.GameService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GameService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type beginLevelPayload struct {
	Level int `json:"level"`
}

type answerPayload struct {
	Answer string `json:"answer"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type blockedPayload struct {
	Message  string `json:"message"`
	ReadOnly bool   `json:"readOnly"`
}

// questionPayload is the client-safe question view: no answer, no hint.
type questionPayload struct {
	Level   int                 `json:"level"`
	Index   int                 `json:"index"`
	Total   int                 `json:"total"`
	ID      string              `json:"id"`
	Prompt  string              `json:"prompt"`
	Kind    domain.QuestionKind `json:"kind"`
	Options []domain.Option     `json:"options,omitempty"`
}

type answerResultPayload struct {
	Correct       bool `json:"correct"`
	QuestionIndex int  `json:"questionIndex"`
	LevelComplete bool `json:"levelComplete"`
}

type timerPayload struct {
	Status    engine.TimerStatus `json:"status"`
	Remaining string             `json:"remaining"`
}

type hintPayload struct {
	Hint string `json:"hint"`
}

func publicQuestion(level domain.Level, index int, q domain.Question) questionPayload {
	return questionPayload{
		Level:   level.Number,
		Index:   index,
		Total:   len(level.Questions),
		ID:      q.ID,
		Prompt:  q.Prompt,
		Kind:    q.Kind,
		Options: q.Options,
	}
}

// ServeWS upgrades HTTP requests to websockets and wires them into the game
// use cases. The connection is scoped to one team code.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	teamCode := r.URL.Query().Get("teamCode")
	if teamCode == "" {
		http.Error(w, "missing teamCode", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	team, err := h.service.GetTeam(ctx, teamCode)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrTeamNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancelUpdates, err := h.service.Subscribe(ctx)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancelUpdates()
	defer h.service.ReleaseSession(teamCode)

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	pumpDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	// Fan leaderboard updates and the one-second timer tick into the writer.
	go func() {
		defer close(pumpDone)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		expiredSent := false
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "leaderboard", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-ticker.C:
				snap, err := h.service.Timer(ctx, teamCode)
				if err != nil {
					continue
				}
				if snap.Status == engine.TimerNotStarted {
					continue
				}
				msg := outboundMessage[any]{Type: "timer", Payload: timerPayload{
					Status:    snap.Status,
					Remaining: snap.Formatted,
				}}
				if snap.Status == engine.TimerExpired {
					if expiredSent {
						continue
					}
					expiredSent = true
					msg.Type = "game_over"
				}
				select {
				case send <- msg:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "team", Payload: team}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(ctx, teamCode, inbound, send)
	}

	close(closeSignals)
	<-pumpDone
	close(send)
	<-writerDone
}

func (h *WSHandler) dispatch(ctx context.Context, teamCode string, inbound inboundMessage, send chan<- outboundMessage[any]) {
	fail := func(err error) {
		send <- blockedOrError(err)
	}

	switch inbound.Type {
	case "start_game":
		team, err := h.service.StartGame(ctx, teamCode)
		if err != nil {
			fail(err)
			return
		}
		send <- outboundMessage[any]{Type: "team", Payload: team}

	case "begin_level":
		var payload beginLevelPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			fail(errors.New("invalid begin_level payload"))
			return
		}
		question, err := h.service.BeginLevel(ctx, teamCode, payload.Level)
		if err != nil {
			fail(err)
			return
		}
		_, index, level, qErr := h.service.CurrentQuestion(teamCode)
		if qErr != nil {
			fail(qErr)
			return
		}
		send <- outboundMessage[any]{Type: "question", Payload: publicQuestion(level, index, question)}

	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			fail(errors.New("invalid answer payload"))
			return
		}
		outcome, err := h.service.SubmitAnswer(ctx, teamCode, payload.Answer)
		h.sendOutcome(teamCode, outcome, err, send)

	case "skip":
		outcome, err := h.service.SkipQuestion(ctx, teamCode)
		h.sendOutcome(teamCode, outcome, err, send)

	case "hint":
		hint, err := h.service.RequestHint(ctx, teamCode)
		if err != nil {
			fail(err)
			return
		}
		send <- outboundMessage[any]{Type: "hint", Payload: hintPayload{Hint: hint}}

	case "finish":
		breakdown, err := h.service.FinishLevel(ctx, teamCode)
		if err != nil {
			fail(err)
			return
		}
		send <- outboundMessage[any]{Type: "level_complete", Payload: breakdown}

	case "timer":
		snap, err := h.service.Timer(ctx, teamCode)
		if err != nil {
			fail(err)
			return
		}
		send <- outboundMessage[any]{Type: "timer", Payload: timerPayload{
			Status:    snap.Status,
			Remaining: snap.Formatted,
		}}

	default:
		fail(errors.New("unsupported message type"))
	}
}

func (h *WSHandler) sendOutcome(teamCode string, outcome app.AnswerOutcome, err error, send chan<- outboundMessage[any]) {
	if err != nil && !outcome.LevelComplete {
		send <- blockedOrError(err)
		return
	}

	send <- outboundMessage[any]{Type: "answer_result", Payload: answerResultPayload{
		Correct:       outcome.Correct,
		QuestionIndex: outcome.QuestionIndex,
		LevelComplete: outcome.LevelComplete,
	}}

	if err != nil {
		// The level finished locally but the commit failed; tell the client to
		// retry with "finish" so the computed score is not lost.
		send <- blockedOrError(err)
		return
	}

	if outcome.LevelComplete {
		send <- outboundMessage[any]{Type: "level_complete", Payload: *outcome.Breakdown}
		return
	}
	if outcome.NextQuestion != nil {
		_, index, level, qErr := h.service.CurrentQuestion(teamCode)
		if qErr == nil {
			send <- outboundMessage[any]{Type: "question", Payload: publicQuestion(level, index, *outcome.NextQuestion)}
		}
	}
}

func blockedOrError(err error) outboundMessage[any] {
	switch {
	case errors.Is(err, domain.ErrLevelMismatch):
		return outboundMessage[any]{Type: "blocked", Payload: blockedPayload{Message: err.Error()}}
	case errors.Is(err, domain.ErrLevelCompleted):
		return outboundMessage[any]{Type: "blocked", Payload: blockedPayload{Message: err.Error(), ReadOnly: true}}
	case errors.Is(err, domain.ErrTimerExpired):
		return outboundMessage[any]{Type: "game_over", Payload: timerPayload{Status: engine.TimerExpired, Remaining: "00:00:00"}}
	default:
		return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
	}
}
