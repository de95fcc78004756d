package middleware

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/GregMSThompson/moneyloop/internal/config"
	"github.com/GregMSThompson/moneyloop/internal/errs"
	"github.com/GregMSThompson/moneyloop/internal/response"
	"github.com/GregMSThompson/moneyloop/pkg/logger"
)

type Middleware struct {
	secret     []byte
	jwks       *jwksKeys
	cookieName string
	parser     *jwt.Parser
	resp       response.ResponseHandler
}

// NewMiddleware accepts HS256 sessions signed with the project secret and,
// when a JWKS URL is configured, ES256 and RS256 sessions signed with the
// project's published keys.
func NewMiddleware(cfg config.SupabaseConfig, resp response.ResponseHandler) *Middleware {
	m := &Middleware{
		cookieName: cfg.CookieName,
		resp:       resp,
	}
	var methods []string
	if cfg.JWTSecret != "" {
		m.secret = []byte(cfg.JWTSecret)
		methods = append(methods, jwt.SigningMethodHS256.Alg())
	}
	if cfg.JWKSURL != "" {
		m.jwks = newJWKSKeys(cfg.JWKSURL)
		methods = append(methods, jwt.SigningMethodES256.Alg(), jwt.SigningMethodRS256.Alg())
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithExpirationRequired(),
	}
	if cfg.JWTAudience != "" {
		opts = append(opts, jwt.WithAudience(cfg.JWTAudience))
	}
	m.parser = jwt.NewParser(opts...)
	return m
}

type contextKey string

const UIDKey contextKey = "uid"

// SupabaseAuth resolves the caller's Supabase session and stores the user id
// in the request context. Requests without a valid session get a 401.
func (m *Middleware) SupabaseAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, err := m.authenticate(r)
		if err != nil {
			logger.FromContext(r.Context()).Debug("session rejected", "reason", err.Error())
			m.resp.HandleError(w, r, errs.NewUnauthenticatedError(), "")
			return
		}

		_, ctx := logger.With(r.Context(), "uid", uid)
		next.ServeHTTP(w, r.WithContext(WithUID(ctx, uid)))
	})
}

func (m *Middleware) authenticate(r *http.Request) (string, error) {
	tok := sessionToken(r, m.cookieName)
	if tok == "" {
		return "", errors.New("no session token")
	}

	claims := &jwt.RegisteredClaims{}
	_, err := m.parser.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return m.verificationKey(r.Context(), t)
	})
	if err != nil {
		return "", err
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", errors.New("subject is not a user id")
	}
	return claims.Subject, nil
}

func (m *Middleware) verificationKey(ctx context.Context, t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); ok {
		if len(m.secret) == 0 {
			return nil, errors.New("no shared secret configured")
		}
		return m.secret, nil
	}
	if m.jwks == nil {
		return nil, errors.New("no signing keys configured")
	}
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("missing kid in token header")
	}
	return m.jwks.key(ctx, kid)
}

// sessionToken returns the access token from the Authorization header or,
// failing that, from the Supabase auth cookies.
func sessionToken(r *http.Request, cookieName string) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.Fields(h)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
		return ""
	}

	if cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
			if tok := tokenFromCookieValue(c.Value); tok != "" {
				return tok
			}
		}
	}

	for _, v := range authTokenCookies(r.Cookies()) {
		if tok := tokenFromCookieValue(v); tok != "" {
			return tok
		}
	}
	return ""
}

// authTokenCookies returns the values of sb-<ref>-auth-token cookies with
// chunked cookies (.0, .1, ...) joined back together in order.
func authTokenCookies(cookies []*http.Cookie) []string {
	whole := map[string]string{}
	chunks := map[string]map[int]string{}

	for _, c := range cookies {
		if !strings.HasPrefix(c.Name, "sb-") {
			continue
		}
		name, idx, chunked := strings.Cut(c.Name, ".")
		if !strings.HasSuffix(name, "-auth-token") {
			continue
		}
		if !chunked {
			whole[name] = c.Value
			continue
		}
		n, err := strconv.Atoi(idx)
		if err != nil {
			continue
		}
		if chunks[name] == nil {
			chunks[name] = map[int]string{}
		}
		chunks[name][n] = c.Value
	}

	for name, parts := range chunks {
		if _, ok := whole[name]; ok {
			continue
		}
		idx := make([]int, 0, len(parts))
		for i := range parts {
			idx = append(idx, i)
		}
		sort.Ints(idx)
		var b strings.Builder
		for want, i := range idx {
			if i != want {
				break
			}
			b.WriteString(parts[i])
		}
		whole[name] = b.String()
	}

	names := make([]string, 0, len(whole))
	for name := range whole {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, whole[name])
	}
	return out
}

// tokenFromCookieValue accepts a bare JWT, a session JSON object, the legacy
// JSON array form, or either JSON form behind the "base64-" prefix.
func tokenFromCookieValue(v string) string {
	if rest, ok := strings.CutPrefix(v, "base64-"); ok {
		decoded, err := decodeBase64(rest)
		if err != nil {
			return ""
		}
		v = string(decoded)
	} else if unescaped, err := url.QueryUnescape(v); err == nil {
		v = unescaped
	}
	v = strings.TrimSpace(v)

	switch {
	case strings.HasPrefix(v, "{"):
		var session struct {
			AccessToken string `json:"access_token"`
		}
		if json.Unmarshal([]byte(v), &session) != nil {
			return ""
		}
		return session.AccessToken
	case strings.HasPrefix(v, "["):
		var parts []*string
		if json.Unmarshal([]byte(v), &parts) != nil || len(parts) == 0 || parts[0] == nil {
			return ""
		}
		return *parts[0]
	case strings.Count(v, ".") == 2:
		return v
	}
	return ""
}

func decodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.RawURLEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.StdEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, errors.New("invalid base64 cookie")
}

func WithUID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, UIDKey, uid)
}

// UID returns the authenticated user id, or "" outside SupabaseAuth.
func UID(ctx context.Context) string {
	uid, _ := ctx.Value(UIDKey).(string)
	return uid
}
