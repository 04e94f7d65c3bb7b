package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/eduquiz/quizforge/internal/quiz"
)

const (
	// Per-subscriber buffer; a subscriber this far behind starts dropping
	// snapshots. Every snapshot is complete, so dropped ones are harmless.
	subscriberBuffer = 8

	wsWriteTimeout = 10 * time.Second
)

// rankingUpdate is one websocket frame pushed to subscribers.
type rankingUpdate struct {
	Scope   string              `json:"scope"`
	Entries []quiz.RankingEntry `json:"entries"`
}

// RankingHub fans ranking snapshots out to websocket subscribers. It
// implements quiz.RankingNotifier.
type RankingHub struct {
	mu   sync.RWMutex
	subs map[string]map[chan rankingUpdate]bool
}

// NewRankingHub creates an empty hub.
func NewRankingHub() *RankingHub {
	return &RankingHub{
		subs: make(map[string]map[chan rankingUpdate]bool),
	}
}

// Publish sends a snapshot to every subscriber of the scope. It never
// blocks: slow subscribers miss snapshots instead of stalling scoring.
func (h *RankingHub) Publish(scope string, entries []quiz.RankingEntry) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[scope] {
		select {
		case ch <- rankingUpdate{Scope: scope, Entries: entries}:
		default:
		}
	}
}

// Subscribers returns how many connections are subscribed to a scope.
func (h *RankingHub) Subscribers(scope string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[scope])
}

func (h *RankingHub) subscribe(scope string) (chan rankingUpdate, func()) {
	ch := make(chan rankingUpdate, subscriberBuffer)

	h.mu.Lock()
	if h.subs[scope] == nil {
		h.subs[scope] = make(map[chan rankingUpdate]bool)
	}
	h.subs[scope][ch] = true
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.subs[scope], ch)
		if len(h.subs[scope]) == 0 {
			delete(h.subs, scope)
		}
		h.mu.Unlock()
	}
}

func validScope(scope string) bool {
	rest, ok := strings.CutPrefix(scope, "quiz:")
	if !ok {
		rest, ok = strings.CutPrefix(scope, "group:")
	}
	return ok && rest != ""
}

// handleSubscribe upgrades the request and streams ranking snapshots for
// the requested scope until the client disconnects.
func (h *RankingHub) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	scope := r.URL.Query().Get("scope")
	if !validScope(scope) {
		http.Error(w, "scope must be quiz:<id> or group:<id>", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ch, cancel := h.subscribe(scope)
	defer cancel()

	// Subscribers are write-only; CloseRead surfaces disconnects on ctx.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case update := <-ch:
			writeCtx, cancelWrite := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(writeCtx, conn, update)
			cancelWrite()
			if err != nil {
				return
			}
		}
	}
}
