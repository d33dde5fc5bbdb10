package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// FiberGuard adapts the authorizer to plain fiber handlers for apps
// that wire fiber directly instead of the router abstraction.
type FiberGuard struct {
	auth       *Authorizer
	cookieName string
	realm      string
	sessionTTL time.Duration

	Logger Logger
}

func NewFiberGuard(auther *Authorizer, cfg Config) *FiberGuard {
	cookieName := cfg.GetCookieName()
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	realm := cfg.GetRealm()
	if realm == "" {
		realm = DefaultRealm
	}

	return &FiberGuard{
		auth:       auther,
		cookieName: cookieName,
		realm:      realm,
		sessionTTL: ParseTTL(cfg.GetSessionTTL()),
		Logger:     defLogger{},
	}
}

// Protect authorizes every request before the next handler runs.
func (g *FiberGuard) Protect() fiber.Handler {
	return func(c *fiber.Ctx) error {
		carriers := ParseAuthorization(c.Get(fiber.HeaderAuthorization))
		carriers.SessionToken = strings.TrimSpace(c.Cookies(g.cookieName))

		result, err := g.auth.Authorize(c.UserContext(), carriers)
		if err != nil {
			g.Logger.Error("authorization failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Internal Server Error",
			})
		}

		switch result.Decision {
		case DecisionBootstrapAllowed:
			return c.Next()
		case DecisionAuthenticated:
			if result.SessionToken != "" && result.SessionToken != carriers.SessionToken {
				g.setSessionCookie(c, result.SessionToken)
			}
			c.Locals(IdentityContextKey, result.Identity)
			return c.Next()
		case DecisionForbidden:
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":     ErrForbidden.Message,
				"text_code": ErrForbidden.TextCode,
			})
		default:
			c.Set(headerWWWAuthenticate, g.challengeValue(c, result.Challenge))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":     ErrNotAuthenticated.Message,
				"text_code": ErrNotAuthenticated.TextCode,
			})
		}
	}
}

// GetIdentity returns the identity stored by Protect, or nil when the
// request went through the bootstrap bypass.
func GetIdentity(c *fiber.Ctx) *Identity {
	identity, _ := c.Locals(IdentityContextKey).(*Identity)
	return identity
}

// Logout revokes the presented session and clears the cookie.
func (g *FiberGuard) Logout(c *fiber.Ctx, tokens *TokenStore) error {
	if session := strings.TrimSpace(c.Cookies(g.cookieName)); session != "" {
		if err := tokens.Revoke(c.UserContext(), session); err != nil && !IsNotAuthenticated(err) {
			return err
		}
	}
	g.clearSessionCookie(c)
	return nil
}

func (g *FiberGuard) setSessionCookie(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     g.cookieName,
		Value:    token,
		Expires:  time.Now().Add(g.sessionTTL),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (g *FiberGuard) clearSessionCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     g.cookieName,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (g *FiberGuard) challengeValue(c *fiber.Ctx, challenge Challenge) string {
	if challenge == ChallengeBearer {
		host := c.Hostname()
		if host == "" {
			host = g.realm
		}
		return fmt.Sprintf("Bearer realm=%q", host)
	}
	return fmt.Sprintf("Basic realm=%q, charset=\"UTF-8\"", g.realm)
}
