package auth

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

const (
	// DefaultCookieName carries the session token.
	DefaultCookieName = "app_session"
	// DefaultRealm is used in challenges when none is configured.
	DefaultRealm = "restricted"

	// IdentityContextKey is the request-local key holding the resolved
	// identity after a successful authorization.
	IdentityContextKey = "identity"

	headerAuthorization   = "Authorization"
	headerWWWAuthenticate = "WWW-Authenticate"
)

// ParseAuthorization extracts Basic or Bearer carriers from the raw
// Authorization header value. A Basic pair with an empty email or
// password means no carrier at all, not an error; Bearer tokens pass
// through verbatim.
func ParseAuthorization(raw string) Carriers {
	carriers := Carriers{}
	if raw == "" {
		return carriers
	}

	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "basic "):
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw[len("basic "):]))
		if err != nil {
			return carriers
		}
		email, password, found := strings.Cut(string(decoded), ":")
		if !found || email == "" || password == "" {
			return carriers
		}
		carriers.BasicEmail = email
		carriers.BasicPassword = password
	case strings.HasPrefix(lower, "bearer "):
		carriers.BearerToken = strings.TrimSpace(raw[len("bearer "):])
	}
	return carriers
}

// RouteGuard wires the authorizer into go-router handlers: it collects
// carriers from the request, runs the decision, manages the session
// cookie, and writes challenge headers on rejection.
type RouteGuard struct {
	auth       *Authorizer
	cfg        Config
	cookieName string
	realm      string
	sessionTTL time.Duration

	Logger       Logger
	ErrorHandler func(c router.Context, err error) error
}

func NewRouteGuard(auther *Authorizer, cfg Config) *RouteGuard {
	cookieName := cfg.GetCookieName()
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	realm := cfg.GetRealm()
	if realm == "" {
		realm = DefaultRealm
	}

	g := &RouteGuard{
		auth:       auther,
		cfg:        cfg,
		cookieName: cookieName,
		realm:      realm,
		sessionTTL: ParseTTL(cfg.GetSessionTTL()),
		Logger:     defLogger{},
	}
	g.ErrorHandler = g.defaultErrHandler
	return g
}

// Carriers collects every credential carrier present on the request.
func (g *RouteGuard) Carriers(c router.Context) Carriers {
	carriers := ParseAuthorization(c.GetString(headerAuthorization, ""))
	carriers.SessionToken = strings.TrimSpace(c.Cookies(g.cookieName))
	return carriers
}

// Protect authorizes every request before the wrapped handler runs. On
// success the resolved identity is stored under IdentityContextKey; on
// a Basic login the issued session cookie is set so the browser can
// drop to the cookie carrier on its next request.
func (g *RouteGuard) Protect() router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			carriers := g.Carriers(c)

			result, err := g.auth.Authorize(c.Context(), carriers)
			if err != nil {
				return g.ErrorHandler(c, err)
			}

			switch result.Decision {
			case DecisionBootstrapAllowed:
				return c.Next()
			case DecisionAuthenticated:
				if result.SessionToken != "" && result.SessionToken != carriers.SessionToken {
					g.SetSessionCookie(c, result.SessionToken)
				}
				c.Locals(IdentityContextKey, result.Identity)
				return c.Next()
			case DecisionForbidden:
				return g.ErrorHandler(c, ErrForbidden)
			default:
				g.WriteChallenge(c, result.Challenge)
				return g.ErrorHandler(c, ErrNotAuthenticated)
			}
		}
	}
}

// SetSessionCookie binds the session token to the browser.
func (g *RouteGuard) SetSessionCookie(c router.Context, token string) {
	c.Cookie(&router.Cookie{
		Name:     g.cookieName,
		Value:    token,
		Expires:  time.Now().Add(g.sessionTTL),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

// ClearSessionCookie removes the session binding on logout or
// revocation.
func (g *RouteGuard) ClearSessionCookie(c router.Context) {
	c.Cookie(&router.Cookie{
		Name:     g.cookieName,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

// WriteChallenge sets the WWW-Authenticate header for a rejection.
// Bearer failures advertise the Bearer scheme with the request host;
// everything else invites Basic re-authentication.
func (g *RouteGuard) WriteChallenge(c router.Context, challenge Challenge) {
	c.SetHeader(headerWWWAuthenticate, g.challengeValue(c, challenge))
}

func (g *RouteGuard) challengeValue(c router.Context, challenge Challenge) string {
	if challenge == ChallengeBearer {
		host := c.GetString("Host", g.realm)
		return fmt.Sprintf("Bearer realm=%q", host)
	}
	return fmt.Sprintf("Basic realm=%q, charset=\"UTF-8\"", g.realm)
}

// StatusFromError maps the package error kinds onto HTTP statuses:
// 401 for credential failures, 403 for disabled identities, 422 for
// policy rejections, 500 for everything unexpected.
func StatusFromError(err error) int {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return errors.CodeInternal
	}
	if richErr.Code > 0 {
		return richErr.Code
	}
	switch richErr.Category {
	case errors.CategoryAuth:
		return errors.CodeUnauthorized
	case errors.CategoryAuthz:
		return errors.CodeForbidden
	case errors.CategoryValidation:
		return 422
	default:
		return errors.CodeInternal
	}
}

func (g *RouteGuard) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	g.Logger.Info("route guard error: %s category=%s details=%s",
		richErr.Message, richErr.Category, print.MaybePrettyJSON(richErr.Metadata))

	status := StatusFromError(richErr)
	body := map[string]any{
		"error":     richErr.Message,
		"text_code": richErr.TextCode,
	}
	if errors.Is(richErr, ErrPasswordStrength) {
		body["policy"] = DefaultPasswordPolicy().Describe()
	}
	if status >= 500 {
		// Never leak credential or store detail on server failures.
		body = map[string]any{"error": "Internal Server Error"}
	}
	return c.JSON(status, body)
}
