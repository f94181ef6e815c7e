package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/session"
)

// SessionHeader identifies the shopper session on every API request.
const SessionHeader = "X-Session-ID"

type sessionKey struct{}

// withSession resolves the X-Session-ID header to a live session. Missing or
// malformed ids are rejected with 400.
func (h *Handler) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(SessionHeader)
		s, err := h.sessions.Get(r.Context(), id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey{}, s)
		ctx = zctx.With(ctx, zap.String("session_id", s.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(ctx context.Context) *session.Session {
	return ctx.Value(sessionKey{}).(*session.Session)
}

// SetToken stores the shopper's bearer token for later commerce API calls.
// An empty token logs the shopper out.
func (h *Handler) SetToken(w http.ResponseWriter, r *http.Request) {
	var token string
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key == "token" {
			return str(d, &token)
		}
		return d.Skip()
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	s := sessionFrom(r.Context())
	if err := h.sessions.SetToken(r.Context(), s.ID, token); err != nil {
		h.fail(w, r, errors.Wrap(err, "set token"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteToken forgets the shopper's bearer token.
func (h *Handler) DeleteToken(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	if err := h.sessions.DeleteToken(r.Context(), s.ID); err != nil {
		h.fail(w, r, errors.Wrap(err, "delete token"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
