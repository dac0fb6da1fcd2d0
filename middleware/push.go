package middleware

import (
	"context"
	"net/http"
)

const pushTokenHeader = "X-Expo-Push-Token"

func WithExpoPushToken(h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		t := r.Header.Get(pushTokenHeader)
		if t == "" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("missing header: " + pushTokenHeader))
			return
		}
		ctx := context.WithValue(r.Context(), pushTokenKey, t)
		h.ServeHTTP(w, r.WithContext(ctx))
	}
	return http.HandlerFunc(fn)
}

func ExpoPushToken(ctx context.Context) string {
	t, _ := ctx.Value(pushTokenKey).(string)
	return t
}
