package api

import (
	"net/http"
	"os"
	"strconv"

	"golang.org/x/time/rate"
)

// RateLimitMiddleware applies a global token-bucket limit, configured with
// RATE_RPS and RATE_BURST. RATE_RPS unset or <= 0 disables limiting.
func RateLimitMiddleware(next http.Handler) http.Handler {
	rps := envFloat("RATE_RPS", 0)
	if rps <= 0 {
		return next
	}
	burst := int(envFloat("RATE_BURST", rps*2))
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded", r.URL.Path)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
