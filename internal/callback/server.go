// Package callback serves the VK Callback API endpoint, the push-based
// alternative to wall polling.
package callback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"rent_bot/internal/model"
	"rent_bot/internal/notify"
	"rent_bot/internal/storage"
)

const maxEventSize = 1 << 20

// Server handles Callback API events for one community. VK expects the plain
// body "ok" for every accepted event and the confirmation code in response to
// a confirmation request.
type Server struct {
	store        storage.Storage
	dispatcher   *notify.Dispatcher
	groupID      int64
	confirmation string
	secret       string
	log          *slog.Logger
}

// New creates a Server. secret may be empty, in which case the secret check
// is skipped.
func New(store storage.Storage, dispatcher *notify.Dispatcher, groupID int64, confirmation, secret string, log *slog.Logger) *Server {
	return &Server{
		store:        store,
		dispatcher:   dispatcher,
		groupID:      groupID,
		confirmation: confirmation,
		secret:       secret,
		log:          log,
	}
}

type event struct {
	Type    string `json:"type"`
	GroupID int64  `json:"group_id"`
	Secret  string `json:"secret"`
	Object  struct {
		ID   int64  `json:"id"`
		Text string `json:"text"`
		Date int64  `json:"date"`
	} `json:"object"`
}

// Handler returns the HTTP handler for the callback endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /callback", s.handleEvent)
	return mux
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventSize))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	var ev event
	if err := json.Unmarshal(body, &ev); err != nil {
		s.log.Warn("malformed callback event", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if s.secret != "" && ev.Secret != s.secret {
		s.log.Warn("callback secret mismatch", "type", ev.Type)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if ev.GroupID != 0 && ev.GroupID != s.groupID {
		s.log.Warn("callback for unknown group", "group_id", ev.GroupID)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	switch ev.Type {
	case "confirmation":
		fmt.Fprint(w, s.confirmation)
	case "wall_post_new":
		s.handleWallPost(r.Context(), ev)
		fmt.Fprint(w, "ok")
	default:
		// Unhandled event types are acknowledged so VK stops retrying.
		s.log.Debug("ignoring callback event", "type", ev.Type)
		fmt.Fprint(w, "ok")
	}
}

func (s *Server) handleWallPost(ctx context.Context, ev event) {
	post := model.Post{ID: ev.Object.ID, Text: ev.Object.Text, Date: ev.Object.Date}
	s.log.Info("wall post event", "post_id", post.ID)

	subs, err := s.store.ListActiveSubscriptions(ctx)
	if err != nil {
		s.log.Error("list active subscriptions", "error", err)
		return
	}
	if len(subs) == 0 {
		return
	}
	s.dispatcher.ProcessPost(ctx, post, subs)
}

// Run serves the callback endpoint on addr until ctx is cancelled, then
// shuts the server down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("callback server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("callback server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown callback server: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
