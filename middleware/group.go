package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/puoklam/groupchat/conversation"
)

type GroupFinder interface {
	GroupSummary(ctx context.Context, groupID string) (*conversation.Summary, error)
}

// WithGroup loads the group named by the groupID URL parameter.
func WithGroup(logger *slog.Logger, groups GroupFinder) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			gid := chi.URLParam(r, "groupID")
			if gid == "" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			g, err := groups.GroupSummary(r.Context(), gid)
			if err != nil {
				if errors.Is(err, conversation.ErrNotFound) {
					w.WriteHeader(http.StatusNotFound)
				} else {
					logger.Error("Cannot load group", "group_id", gid, "error", err)
					w.WriteHeader(http.StatusInternalServerError)
				}
				return
			}
			ctx := context.WithValue(r.Context(), groupKey, g)
			h.ServeHTTP(w, r.WithContext(ctx))
		}
		return http.HandlerFunc(fn)
	}
}

func Group(ctx context.Context) *conversation.Summary {
	g, _ := ctx.Value(groupKey).(*conversation.Summary)
	return g
}
