package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"adboard/cmd/security/password"
)

// Hasher hashes and verifies passwords. Verify never fails loudly: a malformed
// hash simply does not match.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(encodedHash, password string) bool
	NeedsRehash(encodedHash string) bool
}

// TokenIssuer mints access tokens for a subject.
type TokenIssuer interface {
	Issue(subject string, issuedAt time.Time) (token string, expiresAt time.Time, err error)
}

// Issued is the result of a successful login.
type Issued struct {
	Token     string
	ExpiresAt time.Time
	Principal Principal
}

// Registration is a request to create a principal.
type Registration struct {
	Username string
	Password string
	Role     Role
}

// Update is a partial profile change. Nil fields are left unchanged.
// Password is plaintext here and is hashed before it reaches the store.
type Update struct {
	Username *string
	Password *string
	Role     *Role
}

// Service implements login, registration and profile management.
type Service struct {
	store  Store
	hasher Hasher
	tokens TokenIssuer
	log    *slog.Logger
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// ServiceOption configures optional Service dependencies.
type ServiceOption func(*Service)

// WithClock overrides the clock used for token issuance.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService builds a Service.
func NewService(store Store, hasher Hasher, tokens TokenIssuer, opts ...ServiceOption) (*Service, error) {
	if store == nil || hasher == nil || tokens == nil {
		return nil, errors.New("identity: service requires store, hasher and token issuer")
	}
	s := &Service{
		store:  store,
		hasher: hasher,
		tokens: tokens,
		log:    slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Login authenticates username/password and issues a token.
// Unknown usernames and wrong passwords both yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, pw string) (Issued, error) {
	const op = "identity.Login"

	p, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if IsNotFound(err) {
			// Keep timing close to the wrong-password path.
			_ = s.hasher.Verify(s.dummy(), pw)
			s.log.InfoContext(ctx, "auth.login.failed", "reason", "not_found")
			return Issued{}, OpError{Op: op, Kind: ErrInvalidCredentials}
		}
		return Issued{}, fmt.Errorf("%s: %w", op, err)
	}

	if !s.hasher.Verify(p.PasswordHash, pw) {
		s.log.InfoContext(ctx, "auth.login.failed", "reason", "bad_password", "user_id", p.ID)
		return Issued{}, OpError{Op: op, Kind: ErrInvalidCredentials}
	}

	if s.hasher.NeedsRehash(p.PasswordHash) {
		p = s.rehash(ctx, p, pw)
	}

	tok, exp, err := s.tokens.Issue(p.Username, s.now())
	if err != nil {
		return Issued{}, fmt.Errorf("%s: issue token: %w", op, err)
	}

	s.log.InfoContext(ctx, "auth.login.ok", "user_id", p.ID)
	return Issued{Token: tok, ExpiresAt: exp, Principal: p}, nil
}

// rehash upgrades a legacy or weak hash. Failures are logged and ignored.
func (s *Service) rehash(ctx context.Context, p Principal, pw string) Principal {
	h, err := s.hasher.Hash(pw)
	if err != nil {
		s.log.WarnContext(ctx, "auth.rehash.skipped", "user_id", p.ID, "err", err)
		return p
	}
	updated, err := s.store.Update(ctx, p.ID, Changes{PasswordHash: &h})
	if err != nil {
		s.log.WarnContext(ctx, "auth.rehash.failed", "user_id", p.ID, "err", err)
		return p
	}
	s.log.InfoContext(ctx, "auth.rehash.ok", "user_id", p.ID)
	return updated
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		if h, err := s.hasher.Hash("dummy-password-for-timing-only"); err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}

// Register creates a principal through the public path.
// Requesting the admin role fails with ErrForbiddenRole before any hashing or store access.
func (s *Service) Register(ctx context.Context, in Registration) (Principal, error) {
	const op = "identity.Register"

	role := in.Role
	if role == "" {
		role = RoleUser
	}
	if role == RoleAdmin {
		s.log.WarnContext(ctx, "auth.register.rejected", "reason", "admin_role")
		return Principal{}, OpError{Op: op, Kind: ErrForbiddenRole, Msg: "admin role cannot be self-assigned"}
	}
	if !role.Valid() {
		return Principal{}, invalid(op, "unknown role")
	}

	in.Role = role
	return s.create(ctx, op, in)
}

// Provision creates a principal with any role, including admin.
// It backs operator tooling and is never reachable through the HTTP API.
func (s *Service) Provision(ctx context.Context, in Registration) (Principal, error) {
	const op = "identity.Provision"

	if in.Role == "" {
		in.Role = RoleUser
	}
	if !in.Role.Valid() {
		return Principal{}, invalid(op, "unknown role")
	}
	return s.create(ctx, op, in)
}

func (s *Service) create(ctx context.Context, op string, in Registration) (Principal, error) {
	username := strings.TrimSpace(in.Username)
	if err := ValidateUsername(username); err != nil {
		return Principal{}, err
	}

	h, err := s.hashPassword(op, in.Password)
	if err != nil {
		return Principal{}, err
	}

	p, err := s.store.Insert(ctx, Principal{
		Username:     username,
		PasswordHash: h,
		Role:         in.Role,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		return Principal{}, s.mapStoreErr(op, err)
	}

	s.log.InfoContext(ctx, "auth.register.ok", "user_id", p.ID, "role", string(p.Role))
	return p, nil
}

// Get returns the principal with id.
func (s *Service) Get(ctx context.Context, id int64) (Principal, error) {
	p, err := s.store.FindByID(ctx, id)
	if err != nil {
		return Principal{}, s.mapStoreErr("identity.Get", err)
	}
	return p, nil
}

// Update applies u to principal id on behalf of actor.
// Only the owner or an admin may update; only an admin may change a role.
func (s *Service) Update(ctx context.Context, actor Principal, id int64, u Update) (Principal, error) {
	const op = "identity.Update"

	if err := Authorize(actor, id); err != nil {
		return Principal{}, err
	}

	var c Changes
	if u.Role != nil {
		if !actor.IsAdmin() {
			return Principal{}, OpError{Op: op, Kind: ErrForbidden, Msg: "role change requires admin"}
		}
		if !u.Role.Valid() {
			return Principal{}, invalid(op, "unknown role")
		}
		r := *u.Role
		c.Role = &r
	}
	if u.Username != nil {
		name := strings.TrimSpace(*u.Username)
		if err := ValidateUsername(name); err != nil {
			return Principal{}, err
		}
		c.Username = &name
	}
	if u.Password != nil {
		h, err := s.hashPassword(op, *u.Password)
		if err != nil {
			return Principal{}, err
		}
		c.PasswordHash = &h
	}

	p, err := s.store.Update(ctx, id, c)
	if err != nil {
		return Principal{}, s.mapStoreErr(op, err)
	}

	s.log.InfoContext(ctx, "user.updated",
		"user_id", p.ID,
		"actor_id", actor.ID,
		"username_changed", c.Username != nil,
		"password_changed", c.PasswordHash != nil,
		"role_changed", c.Role != nil,
	)
	return p, nil
}

// Delete removes principal id on behalf of actor. Their advertisements go with them.
func (s *Service) Delete(ctx context.Context, actor Principal, id int64) error {
	const op = "identity.Delete"

	if err := Authorize(actor, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return s.mapStoreErr(op, err)
	}
	s.log.InfoContext(ctx, "user.deleted", "user_id", id, "actor_id", actor.ID)
	return nil
}

func (s *Service) hashPassword(op, pw string) (string, error) {
	h, err := s.hasher.Hash(pw)
	if err != nil {
		if password.IsPolicyViolation(err) {
			return "", OpError{Op: op, Kind: ErrInvalidInput, Msg: err.Error()}
		}
		return "", fmt.Errorf("%s: hash: %w", op, err)
	}
	return h, nil
}

func (s *Service) mapStoreErr(op string, err error) error {
	var ce ConflictError
	if errors.As(err, &ce) && ce.Field == "username" {
		return OpError{Op: op, Kind: ErrDuplicateUsername, Err: err}
	}
	if IsNotFound(err) || IsInvalidInput(err) || IsConflict(err) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
