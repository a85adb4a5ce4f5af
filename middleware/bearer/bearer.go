// Package bearer resolves bearer tokens on fiber routes.
package bearer

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-tokenauth"
)

const (
	defaultTokenLookup = "header:" + fiber.HeaderAuthorization
	defaultAuthScheme  = "Bearer"
	DefaultContextKey  = "user"
	DefaultClaimsKey   = "claims"
)

// ErrMissingToken no token was found in any of the configured places
var ErrMissingToken = goerrors.New("not authenticated", goerrors.CategoryAuth).
	WithTextCode("TOKEN_MISSING").
	WithCode(goerrors.CodeUnauthorized)

type Config struct {
	// Filter skips the middleware when it returns true
	Filter func(*fiber.Ctx) bool
	// Resolver is required
	Resolver *auth.Resolver
	// Gate evaluates Requirements. Defaults to a gate without sinks.
	Gate *auth.Gate
	// Scopes every token must carry
	Scopes []string
	// Requirements run after the identity is resolved
	Requirements []auth.Requirement
	// TokenLookup is a comma separated list of source:name pairs,
	// e.g. "header:Authorization,cookie:access_token,query:token"
	TokenLookup string
	AuthScheme  string
	// ContextKey stores the auth.Identity in c.Locals
	ContextKey string
	// ClaimsKey stores the *auth.JWTClaims in c.Locals
	ClaimsKey      string
	SuccessHandler fiber.Handler
	ErrorHandler   fiber.ErrorHandler
}

// New returns the bearer middleware. It panics when Resolver is missing.
func New(config ...Config) fiber.Handler {
	cfg := GetDefaultConfig(config...)
	extractors := GetExtractors(cfg.TokenLookup, cfg.AuthScheme)

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		raw, err := ExtractRawToken(c, extractors)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		identity, claims, err := cfg.Resolver.ResolveClaims(c.UserContext(), raw, cfg.Scopes...)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		if len(cfg.Requirements) > 0 {
			if err := cfg.Gate.Require(c.UserContext(), identity, cfg.Requirements...); err != nil {
				return cfg.ErrorHandler(c, err)
			}
		}

		c.Locals(cfg.ContextKey, identity)
		c.Locals(cfg.ClaimsKey, claims)

		ctx := auth.WithClaimsContext(c.UserContext(), claims)
		c.SetUserContext(auth.WithIdentity(ctx, identity))

		return cfg.SuccessHandler(c)
	}
}

// Require checks requirements against the identity stored by New.
func Require(gate *auth.Gate, requirements ...auth.Requirement) fiber.Handler {
	if gate == nil {
		gate = auth.NewGate()
	}
	return func(c *fiber.Ctx) error {
		identity, _ := IdentityFromLocals(c, DefaultContextKey)
		if err := gate.Require(c.UserContext(), identity, requirements...); err != nil {
			return DefaultErrorHandler(c, err)
		}
		return c.Next()
	}
}

// IdentityFromLocals returns the identity stored under key.
func IdentityFromLocals(c *fiber.Ctx, key string) (auth.Identity, bool) {
	if key == "" {
		key = DefaultContextKey
	}
	identity, ok := c.Locals(key).(auth.Identity)
	return identity, ok && identity != nil
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Resolver == nil {
		panic("AUTH: bearer middleware configuration: Resolver is required.")
	}

	if cfg.Gate == nil {
		cfg.Gate = auth.NewGate()
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = DefaultErrorHandler
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = defaultAuthScheme
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}

	if cfg.ClaimsKey == "" {
		cfg.ClaimsKey = DefaultClaimsKey
	}

	return cfg
}

// StatusFor maps an auth error to an HTTP status using the code the error carries.
func StatusFor(err error) int {
	if err == nil {
		return fiber.StatusOK
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return fiber.StatusInternalServerError
	}

	if richErr.Code != 0 {
		return richErr.Code
	}

	switch richErr.Category {
	case goerrors.CategoryAuth:
		return fiber.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return fiber.StatusForbidden
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return fiber.StatusBadRequest
	case goerrors.CategoryNotFound:
		return fiber.StatusNotFound
	case goerrors.CategoryConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// DefaultErrorHandler writes {"detail", "reason"} with the mapped status.
// Internal errors never leak their message.
func DefaultErrorHandler(c *fiber.Ctx, err error) error {
	status := StatusFor(err)

	detail := "internal server error"
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && status < fiber.StatusInternalServerError {
		detail = richErr.Message
	}

	if status == fiber.StatusUnauthorized {
		c.Set(fiber.HeaderWWWAuthenticate, defaultAuthScheme)
	}

	return c.Status(status).JSON(fiber.Map{
		"detail": detail,
		"reason": string(auth.ReasonOf(err)),
	})
}

type Extractor func(c *fiber.Ctx) (string, error)

// ExtractRawToken returns the first token any extractor finds.
func ExtractRawToken(c *fiber.Ctx, extractors []Extractor) (string, error) {
	for _, extractor := range extractors {
		raw, err := extractor(c)
		if raw != "" && err == nil {
			return raw, nil
		}
	}
	return "", ErrMissingToken
}

func GetExtractors(tokenLookup string, authScheme string) []Extractor {
	extractors := make([]Extractor, 0)

	// header:Authorization,cookie:access_token,query:token
	for _, rootPart := range strings.Split(tokenLookup, ",") {
		source, name, found := strings.Cut(strings.TrimSpace(rootPart), ":")
		if !found {
			continue
		}
		source = strings.TrimSpace(source)
		name = strings.TrimSpace(name)

		switch source {
		case "header":
			extractors = append(extractors, fromHeader(name, authScheme))
		case "query":
			extractors = append(extractors, fromQuery(name))
		case "param":
			extractors = append(extractors, fromParam(name))
		case "cookie":
			extractors = append(extractors, fromCookie(name))
		}
	}

	return extractors
}

func fromHeader(header string, authScheme string) Extractor {
	authScheme = strings.TrimSpace(authScheme)
	return func(c *fiber.Ctx) (string, error) {
		a := c.Get(header)
		l := len(authScheme)
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) && a[l] == ' ' {
			return strings.TrimSpace(a[l:]), nil
		}
		return "", ErrMissingToken
	}
}

func fromQuery(param string) Extractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Query(param)
		if token == "" {
			return "", ErrMissingToken
		}
		return token, nil
	}
}

func fromParam(param string) Extractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Params(param)
		if token == "" {
			return "", ErrMissingToken
		}
		return token, nil
	}
}

func fromCookie(name string) Extractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrMissingToken
		}
		return token, nil
	}
}
