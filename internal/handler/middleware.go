package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/event-registration/internal/config"
	"github.com/Shivanand-hulikatti/event-registration/internal/model"
)

// ─── Access log ───────────────────────────────────────────────────────────────

// Logger writes one structured line per request. The level follows the
// response status.
func Logger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("request_id", chimiddleware.GetReqID(r.Context())),
				zap.Int("status", status),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", r.URL.RawQuery),
				zap.String("ip", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()),
				zap.Duration("latency", time.Since(start)),
				zap.Int("body_size", ww.BytesWritten()),
			}

			switch {
			case status >= 500:
				log.Error("server error", fields...)
			case status >= 400:
				log.Warn("client error", fields...)
			default:
				log.Info("request completed", fields...)
			}
		})
	}
}

// ─── CORS ─────────────────────────────────────────────────────────────────────

var (
	corsMethods = strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions,
	}, ", ")
	corsHeaders       = "Accept, Authorization, Content-Type, X-Request-ID"
	corsExposeHeaders = "Content-Length, Content-Type, X-Request-ID"
)

// CORS answers preflight requests and sets the allow headers. An empty list
// or a leading "*" allows every origin.
func CORS(allowed []string) func(http.Handler) http.Handler {
	allowAll := len(allowed) == 0 || allowed[0] == "*"
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			h := w.Header()
			switch {
			case allowAll:
				h.Set("Access-Control-Allow-Origin", "*")
			case origin != "":
				if _, ok := set[origin]; ok {
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			h.Set("Access-Control-Allow-Methods", corsMethods)
			h.Set("Access-Control-Allow-Headers", corsHeaders)
			h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
			h.Set("Access-Control-Max-Age", strconv.Itoa(int((24 * time.Hour).Seconds())))

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ─── Authentication ───────────────────────────────────────────────────────────

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims are the bearer token claims. The subject is the actor ID.
type Claims struct {
	Role model.Role `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens and resolves them to actors.
type Authenticator struct {
	secret []byte
	issuer string
}

// NewAuthenticator constructs an Authenticator from the auth config.
func NewAuthenticator(cfg config.AuthConfig) *Authenticator {
	return &Authenticator{secret: []byte(cfg.JWTSecret), issuer: cfg.Issuer}
}

// Issue signs a token for the actor, valid for ttl.
func (a *Authenticator) Issue(actor model.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify parses a token and returns the actor it names.
func (a *Authenticator) Verify(token string) (model.Actor, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.Actor{}, ErrExpiredToken
		}
		return model.Actor{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return model.Actor{}, ErrInvalidToken
	}
	switch claims.Role {
	case model.RoleUser, model.RoleOrganizer, model.RoleAdmin:
	case "":
		claims.Role = model.RoleUser
	default:
		return model.Actor{}, ErrInvalidToken
	}
	return model.Actor{ID: claims.Subject, Role: claims.Role}, nil
}

// Identify attaches the bearer token's actor to the request context. Requests
// without an Authorization header pass through anonymously; a bad token is
// rejected with 401.
func (a *Authenticator) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, ErrInvalidToken.Error())
			return
		}
		actor, err := a.Verify(strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// RequireActor rejects anonymous requests with 401.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := ActorFrom(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, model.ErrUnauthenticated.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

type actorKey struct{}

// WithActor returns a context carrying the actor.
func WithActor(ctx context.Context, actor model.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the request's actor, if one was authenticated.
func ActorFrom(ctx context.Context) (model.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(model.Actor)
	return actor, ok
}

func actorOf(r *http.Request) model.Actor {
	actor, _ := ActorFrom(r.Context())
	return actor
}
