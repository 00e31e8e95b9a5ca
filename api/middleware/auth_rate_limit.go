package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ppetrack/ppetrack-backend/api/responses"
	pkgerrors "github.com/ppetrack/ppetrack-backend/pkg/errors"
	"github.com/ppetrack/ppetrack-backend/pkg/logger"
)

const maxAuthBody = 64 << 10

type rateLimiterStore interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// AuthRateLimitPolicy throttles one auth surface (login, register) per client
// IP and per submitted email. A zero limit disables that dimension.
type AuthRateLimitPolicy struct {
	name       string
	window     time.Duration
	ipLimit    int
	emailLimit int
}

func NewAuthRateLimitPolicy(name string, window time.Duration, ipLimit, emailLimit int) AuthRateLimitPolicy {
	p := AuthRateLimitPolicy{
		name:       strings.ToLower(strings.TrimSpace(name)),
		window:     window,
		ipLimit:    ipLimit,
		emailLimit: emailLimit,
	}
	if p.name == "" {
		p.name = "auth"
	}
	return p
}

func (p AuthRateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.emailLimit > 0)
}

// rateSubject is one counter consulted for a request.
type rateSubject struct {
	dimension string
	value     string
	limit     int
}

func (p AuthRateLimitPolicy) scope(s rateSubject) string {
	return p.name + ":" + s.dimension + ":" + s.value
}

// subjects lists the counters that apply to r. The body is buffered and
// restored when the email dimension is enabled.
func (p AuthRateLimitPolicy) subjects(r *http.Request) ([]rateSubject, error) {
	var out []rateSubject
	if ip := clientIP(r); p.ipLimit > 0 && ip != "" {
		out = append(out, rateSubject{dimension: "ip", value: ip, limit: p.ipLimit})
	}
	if p.emailLimit <= 0 {
		return out, nil
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxAuthBody))
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if email := emailFrom(raw); email != "" {
		sum := sha256.Sum256([]byte(email))
		out = append(out, rateSubject{dimension: "email", value: hex.EncodeToString(sum[:]), limit: p.emailLimit})
	}
	return out, nil
}

// AuthRateLimit answers 429 once any counter for the request passes its
// limit. Store failures surface as dependency errors.
func AuthRateLimit(policy AuthRateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			subjects, err := policy.subjects(r)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
				return
			}
			for _, s := range subjects {
				allowed, count, err := store.FixedWindowAllow(ctx, policy.scope(s), int64(s.limit), policy.window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if allowed {
					continue
				}
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{
						"policy":   policy.name,
						"scope":    s.dimension,
						"attempts": count,
						"limit":    s.limit,
						"window":   policy.window.String(),
					}), "auth.rate_limit.blocked")
				}
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts, try again later"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// socket address.
func clientIP(r *http.Request) string {
	if first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func emailFrom(raw []byte) string {
	var body struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(raw, &body) != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(body.Email))
}
