package main

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	goerrors "github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-tokenauth"
	"github.com/goliatone/go-tokenauth/middleware/bearer"
	"github.com/goliatone/go-tokenauth/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// resetNotifier delivers a password reset token to its owner.
type resetNotifier func(ctx context.Context, email, token string) error

type server struct {
	users         *store.Users
	authenticator *auth.Authenticator
	resolver      *auth.Resolver
	gate          *auth.Gate
	policy        auth.PasswordPolicy
	activity      auth.ActivitySink
	registry      *prometheus.Registry
	notify        resetNotifier
	log           *logrus.Logger
}

type userResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FullName  string `json:"full_name,omitempty"`
	Role      string `json:"role"`
	Active    bool   `json:"is_active"`
	Superuser bool   `json:"is_superuser"`
}

func newUserResponse(user *store.User) userResponse {
	return userResponse{
		ID:        user.ID.String(),
		Username:  user.Username,
		Email:     user.Email,
		FullName:  user.FullName,
		Role:      user.Role,
		Active:    user.Active,
		Superuser: user.Superuser,
	}
}

func (s *server) routes(app *fiber.App) {
	if s.notify == nil {
		s.notify = func(_ context.Context, email, _ string) error {
			s.log.WithField("email", email).Warn("no reset notifier configured, reset token dropped")
			return nil
		}
	}

	app.Post("/login/access-token", s.login)
	app.Post("/users/signup", s.signup)
	app.Post("/password-recovery/:email", s.recoverPassword)
	app.Post("/reset-password", s.resetPassword)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	protected := app.Group("/users", bearer.New(bearer.Config{
		Resolver: s.resolver,
		Gate:     s.gate,
	}))
	protected.Get("/me", s.me)
	protected.Patch("/me/password", s.changePassword)
	protected.Delete("/me", s.deleteMe)
	protected.Get("/:id", s.getUser)
	protected.Patch("/:id/active", bearer.Require(s.gate, auth.MustBeSuperuser()), s.setActive)
	protected.Delete("/:id", s.deleteUser)
}

// login follows the OAuth2 password grant form: username, password and an
// optional space separated scope.
func (s *server) login(c *fiber.Ctx) error {
	scopes := strings.Fields(c.FormValue("scope"))
	token, _, err := s.authenticator.Login(c.UserContext(), c.FormValue("username"), c.FormValue("password"), scopes...)
	if err != nil {
		return bearer.DefaultErrorHandler(c, err)
	}
	return c.JSON(fiber.Map{
		"access_token": token,
		"token_type":   "bearer",
	})
}

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

func (s *server) signup(c *fiber.Ctx) error {
	var req signupRequest
	if err := c.BodyParser(&req); err != nil {
		return bearer.DefaultErrorHandler(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request body"))
	}

	if err := s.policy.Validate(req.Password); err != nil {
		return bearer.DefaultErrorHandler(c, err)
	}

	hash, err := s.authenticator.Hasher().HashPassword(req.Password)
	if err != nil {
		return bearer.DefaultErrorHandler(c, err)
	}

	username := req.Username
	if username == "" {
		username = req.Email
	}

	user, err := s.users.Register(c.UserContext(), &store.User{
		Username:     username,
		Email:        req.Email,
		FullName:     req.FullName,
		PasswordHash: hash,
		Active:       true,
	})
	if err != nil {
		return bearer.DefaultErrorHandler(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(newUserResponse(user))
}

func (s *server) me(c *fiber.Ctx) error {
	identity, _ := bearer.IdentityFromLocals(c, bearer.DefaultContextKey)
	user, err := s.users.GetByID(c.UserContext(), identity.ID())
	if err != nil {
		return bearer.DefaultErrorHandler(c, err)
	}
	return c.JSON(newUserResponse(user))
}

func (s *server) getUser(c *fiber.Ctx) error {
	identity, _ := bearer.IdentityFromLocals(c, bearer.DefaultContextKey)
	target := c.Params("id")

	if err := s.gate.Require(c.UserContext(), identity, auth.MustBeSelfOrSuperuser(target)); err != nil {
		return bearer.DefaultErrorHandler(c, err)
	}

	user, err := s.users.GetByID(c.UserContext(), target)
	if err != nil {
		return bearer.DefaultErrorHandler(c, err)
	}
	return c.JSON(newUserResponse(user))
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (s *server) changePassword(c *fiber.Ctx) error {
	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return bearer.DefaultErrorHandler(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request body"))
	}

	identity, _ := bearer.IdentityFromLocals(c, bearer.DefaultContextKey)
	handler := auth.NewChangePasswordHandler(s.users, s.authenticator.Hasher()).
		WithPolicy(s.policy).
		WithActivitySink(s.activity).
		WithLogger(auth.NewLogrusLogger(s.log))

	err := handler.Execute(c.UserContext(), auth.ChangePasswordMessage{
		Identity:        identity,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		return bearer.DefaultErrorHandler(c, err)
	}

	return c.JSON(fiber.Map{"msg": "Password updated successfully"})
}

func (s *server) deleteMe(c *fiber.Ctx) error {
	identity, _ := bearer.IdentityFromLocals(c, bearer.DefaultContextKey)
	return s.removeUser(c, identity, identity.ID())
}

func (s *server) deleteUser(c *fiber.Ctx) error {
	identity, _ := bearer.IdentityFromLocals(c, bearer.DefaultContextKey)
	target := c.Params("id")

	if err := s.gate.Require(c.UserContext(), identity, auth.MustBeSuperuser()); err != nil {
		return bearer.DefaultErrorHandler(c, err)
	}
	return s.removeUser(c, identity, target)
}

func (s *server) removeUser(c *fiber.Ctx, identity auth.Identity, target string) error {
	if err := s.gate.Require(c.UserContext(), identity, auth.SuperuserSelfRemoval(target)); err != nil {
		return bearer.DefaultErrorHandler(c, err)
	}

	if err := s.users.Delete(c.UserContext(), target); err != nil {
		return bearer.DefaultErrorHandler(c, err)
	}

	return c.JSON(fiber.Map{"msg": "User deleted successfully"})
}

type setActiveRequest struct {
	Active bool `json:"is_active"`
}

func (s *server) setActive(c *fiber.Ctx) error {
	var req setActiveRequest
	if err := c.BodyParser(&req); err != nil {
		return bearer.DefaultErrorHandler(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request body"))
	}

	target := c.Params("id")
	if !req.Active {
		identity, _ := bearer.IdentityFromLocals(c, bearer.DefaultContextKey)
		if err := s.gate.Require(c.UserContext(), identity, auth.SuperuserSelfDeactivation(target)); err != nil {
			return bearer.DefaultErrorHandler(c, err)
		}
	}

	if err := s.users.SetActive(c.UserContext(), target, req.Active); err != nil {
		return bearer.DefaultErrorHandler(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// recoverPassword answers the same way whether or not the email is known.
func (s *server) recoverPassword(c *fiber.Ctx) error {
	ctx := c.UserContext()
	email := c.Params("email")

	identity, err := s.users.BySubject(ctx, email)
	switch {
	case err == nil && identity != nil && identity.IsActive():
		token, err := s.authenticator.IssuePasswordResetToken(ctx, identity)
		if err != nil {
			return bearer.DefaultErrorHandler(c, err)
		}
		if err := s.notify(ctx, identity.Email(), token); err != nil {
			s.log.WithError(err).Error("failed to deliver reset token")
		}
	case err != nil && !goerrors.IsNotFound(err):
		return bearer.DefaultErrorHandler(c, err)
	}

	return c.JSON(fiber.Map{"msg": "Password recovery email sent"})
}

func (s *server) resetPassword(c *fiber.Ctx) error {
	var msg auth.FinalizePasswordResetMessage
	if err := c.BodyParser(&msg); err != nil {
		return bearer.DefaultErrorHandler(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid request body"))
	}

	handler := auth.NewFinalizePasswordResetHandler(s.resolver, s.users, s.authenticator.Hasher()).
		WithPolicy(s.policy).
		WithActivitySink(s.activity).
		WithLogger(auth.NewLogrusLogger(s.log))

	if err := handler.Execute(c.UserContext(), msg); err != nil {
		return bearer.DefaultErrorHandler(c, err)
	}

	return c.JSON(fiber.Map{"msg": "Password updated successfully"})
}
