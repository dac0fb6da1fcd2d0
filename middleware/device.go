package middleware

import (
	"context"
	"net"
	"net/http"
)

func WithDeviceInfo(h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		ctx := context.WithValue(r.Context(), deviceIPKey, ip)
		h.ServeHTTP(w, r.WithContext(ctx))
	}
	return http.HandlerFunc(fn)
}

func DeviceIP(ctx context.Context) string {
	ip, _ := ctx.Value(deviceIPKey).(string)
	return ip
}
