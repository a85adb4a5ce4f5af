package store

import (
	"context"
	"database/sql"
	"errors"
	"net/mail"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-tokenauth"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ErrUserExists is returned by Register when the username or email is taken
var ErrUserExists = goerrors.New("the user with this email or username already exists", goerrors.CategoryConflict).
	WithTextCode("USER_EXISTS").
	WithCode(goerrors.CodeConflict)

// Users reads and writes the users table.
type Users struct {
	db  bun.IDB
	now func() time.Time
}

var (
	_ auth.IdentityLookup  = (*Users)(nil)
	_ auth.CredentialStore = (*Users)(nil)
)

func NewUsers(db bun.IDB) *Users {
	return &Users{
		db:  db,
		now: time.Now,
	}
}

// BySubject resolves a token subject or login identifier.
func (u *Users) BySubject(ctx context.Context, subject string) (auth.Identity, error) {
	user, err := u.GetByIdentifier(ctx, subject)
	if err != nil {
		return nil, err
	}
	return NewIdentityFromUser(user), nil
}

func (u *Users) ByID(ctx context.Context, id string) (auth.Identity, error) {
	user, err := u.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewIdentityFromUser(user), nil
}

// GetByIdentifier tries id, email and username, in that order.
func (u *Users) GetByIdentifier(ctx context.Context, identifier string) (*User, error) {
	for _, opt := range resolveUserIdentifier(identifier) {
		record := &User{}
		err := u.db.NewSelect().
			Model(record).
			Where("?TableAlias.? = ?", bun.Ident(opt.column), opt.value).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to query user")
		}

		return record, nil
	}

	return nil, notFound(map[string]any{"identifier": identifier})
}

func (u *Users) GetByID(ctx context.Context, id string) (*User, error) {
	uid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return nil, notFound(map[string]any{"id": id})
	}

	record := &User{}
	err = u.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", uid.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(map[string]any{"id": id})
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to query user")
	}

	return record, nil
}

// Register inserts a user whose password hash was computed by the caller.
func (u *Users) Register(ctx context.Context, user *User) (*User, error) {
	if user == nil {
		return nil, goerrors.New("user is required", goerrors.CategoryBadInput)
	}

	if err := validateUser(user); err != nil {
		return nil, goerrors.FromOzzoValidation(err, "invalid user")
	}

	exists, err := u.db.NewSelect().
		Model((*User)(nil)).
		Where("?TableAlias.email = ?", user.Email).
		WhereOr("?TableAlias.username = ?", user.Username).
		Exists(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check existing user")
	}
	if exists {
		return nil, ErrUserExists.Clone().WithMetadata(map[string]any{
			"email":    user.Email,
			"username": user.Username,
		})
	}

	prepareUserDefaults(user, u.now().UTC())

	if _, err := u.db.NewInsert().Model(user).Exec(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to register user")
	}

	return user, nil
}

// PersistCredentialHash replaces the stored password hash.
func (u *Users) PersistCredentialHash(ctx context.Context, identityID, newHash string) error {
	if strings.TrimSpace(newHash) == "" {
		return goerrors.New("password hash is required", goerrors.CategoryBadInput)
	}

	return u.update(ctx, identityID, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("password_hash = ?", newHash)
	})
}

// SetActive activates or deactivates a user.
func (u *Users) SetActive(ctx context.Context, id string, active bool) error {
	return u.update(ctx, id, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("is_active = ?", active)
	})
}

func (u *Users) Delete(ctx context.Context, id string) error {
	uid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return notFound(map[string]any{"id": id})
	}

	res, err := u.db.NewDelete().
		Model((*User)(nil)).
		Where("id = ?", uid.String()).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete user")
	}

	return checkAffected(res, id)
}

func (u *Users) update(ctx context.Context, id string, set func(*bun.UpdateQuery) *bun.UpdateQuery) error {
	uid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return notFound(map[string]any{"id": id})
	}

	q := u.db.NewUpdate().
		Model((*User)(nil)).
		Set("updated_at = ?", u.now().UTC()).
		Where("id = ?", uid.String())

	res, err := set(q).Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user")
	}

	return checkAffected(res, id)
}

func checkAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read affected rows")
	}
	if n == 0 {
		return notFound(map[string]any{"id": id})
	}
	return nil
}

func validateUser(user *User) error {
	roles := make([]any, 0, len(auth.GetAllRoles())+1)
	roles = append(roles, "")
	for _, r := range auth.GetAllRoles() {
		roles = append(roles, string(r))
	}

	return validation.ValidateStruct(user,
		validation.Field(&user.Username, validation.Required, validation.Length(1, 100), validation.By(usernameShape(user.Email))),
		validation.Field(&user.Email, validation.Required, validation.Length(3, 255), is.EmailFormat),
		validation.Field(&user.Role, validation.In(roles...)),
		validation.Field(&user.PasswordHash, validation.Required),
	)
}

// usernameShape keeps usernames from being mistaken for another user's id or
// email when a subject is resolved: no uuid usernames, and an email shaped
// username must be the user's own email.
func usernameShape(email string) validation.RuleFunc {
	return func(value any) error {
		username, _ := value.(string)
		username = strings.TrimSpace(username)
		if _, err := uuid.Parse(username); err == nil {
			return errors.New("must not be a uuid")
		}
		if is.EmailFormat.Validate(username) == nil && !strings.EqualFold(username, strings.TrimSpace(email)) {
			return errors.New("must match the email when shaped like one")
		}
		return nil
	}
}

func notFound(metadata map[string]any) error {
	return auth.ErrIdentityNotFound.Clone().WithMetadata(metadata)
}

type identifierOption struct {
	column string
	value  string
}

func resolveUserIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 3)

	if uid, err := uuid.Parse(trimmed); err == nil {
		options = append(options, identifierOption{
			column: "id",
			value:  uid.String(),
		})
	}

	if _, err := mail.ParseAddress(trimmed); err == nil {
		options = append(options, identifierOption{
			column: "email",
			value:  trimmed,
		})
	}

	options = append(options, identifierOption{
		column: "username",
		value:  trimmed,
	})

	return options
}
