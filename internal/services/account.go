package services

import (
	"context"
	"errors"
	"sync"

	"github.com/jjudge-oj/accountserver/internal/apperr"
	"github.com/jjudge-oj/accountserver/internal/events"
	"github.com/jjudge-oj/accountserver/internal/store"
	"github.com/jjudge-oj/accountserver/types"
)

// UserRepository defines persistence operations for users. Create and
// Update must enforce name/email uniqueness atomically and report
// collisions as store.ErrDuplicateName / store.ErrDuplicateEmail.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (types.User, error)
	FindByField(ctx context.Context, field store.Field, value string) (types.User, error)
	List(ctx context.Context) ([]types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, id string, patch types.UserPatch) (types.User, error)
	Delete(ctx context.Context, id string) error
}

// PasswordHasher derives and checks password hashes.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hashed string) (bool, error)
}

// TokenIssuer mints bearer tokens for an account id.
type TokenIssuer interface {
	Issue(subject string) (string, error)
}

// EventEmitter receives account lifecycle events.
type EventEmitter interface {
	Emit(ctx context.Context, event events.Event)
}

// Identity is the caller recovered from a verified token.
type Identity struct {
	Subject string
}

// RegisterInput carries the fields of a new account.
type RegisterInput struct {
	Name        string
	Email       string
	Password    string
	PhoneNumber string
	Address     string
}

// UpdateInput carries the fields to change. Nil fields are left untouched.
type UpdateInput struct {
	Name        *string
	Email       *string
	Password    *string
	PhoneNumber *string
	Address     *string
}

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	User  types.Profile
	Token string
}

var (
	errInvalidCredentials = apperr.New(apperr.KindInvalidCredentials, "invalid credentials")
	errForbidden          = apperr.New(apperr.KindForbidden, "not authorized to modify this account")
	errUserNotFound       = apperr.New(apperr.KindNotFound, "user not found")
)

// AccountService implements registration, login, self-update and
// self-delete on top of the user store.
type AccountService struct {
	repo   UserRepository
	hasher PasswordHasher
	tokens TokenIssuer
	events EventEmitter

	decoyOnce sync.Once
	decoyHash string
}

// NewAccountService constructs an AccountService. emitter may be nil.
func NewAccountService(repo UserRepository, hasher PasswordHasher, tokens TokenIssuer, emitter EventEmitter) *AccountService {
	return &AccountService{
		repo:   repo,
		hasher: hasher,
		tokens: tokens,
		events: emitter,
	}
}

// Register creates an account and returns a token bound to it.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (string, error) {
	// Fast path; the store's unique constraint is what actually decides.
	if _, err := s.repo.FindByField(ctx, store.FieldEmail, in.Email); err == nil {
		return "", duplicateEmail()
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", apperr.Internal(err)
	}

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return "", err
	}

	user, err := s.repo.Create(ctx, types.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hashed,
		PhoneNumber:  in.PhoneNumber,
		Address:      in.Address,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateEmail):
			return "", duplicateEmail()
		case errors.Is(err, store.ErrDuplicateName):
			return "", apperr.New(apperr.KindDuplicateName, "a user with this name already exists")
		default:
			return "", apperr.Internal(err)
		}
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", err
	}
	s.emit(ctx, events.NewEvent(events.TypeRegistered, user.ID))
	return token, nil
}

// Login checks credentials and returns the caller's profile with a fresh
// token. An unknown email and a wrong password fail identically.
func (s *AccountService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	user, err := s.repo.FindByField(ctx, store.FieldEmail, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.verifyDecoy(password)
			return LoginResult{}, errInvalidCredentials
		}
		return LoginResult{}, apperr.Internal(err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return LoginResult{}, err
	}
	if !ok {
		return LoginResult{}, errInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return LoginResult{}, err
	}
	s.emit(ctx, events.NewEvent(events.TypeLoggedIn, user.ID))
	return LoginResult{User: user.Profile(), Token: token}, nil
}

// Update changes the supplied fields of the caller's own account and
// returns a new token. Tokens issued earlier stay valid until they expire.
func (s *AccountService) Update(ctx context.Context, caller Identity, targetID string, in UpdateInput) (string, error) {
	if caller.Subject == "" || caller.Subject != targetID {
		return "", errForbidden
	}

	if _, err := s.repo.GetByID(ctx, targetID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", errUserNotFound
		}
		return "", apperr.Internal(err)
	}

	if err := s.checkAvailable(ctx, targetID, in.Name, in.Email); err != nil {
		return "", err
	}

	patch := types.UserPatch{
		Name:        in.Name,
		Email:       in.Email,
		PhoneNumber: in.PhoneNumber,
		Address:     in.Address,
	}
	if in.Password != nil {
		hashed, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return "", err
		}
		patch.PasswordHash = &hashed
	}

	if patch.Empty() {
		return s.tokens.Issue(targetID)
	}

	if _, err := s.repo.Update(ctx, targetID, patch); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return "", errUserNotFound
		case errors.Is(err, store.ErrDuplicateName):
			return "", apperr.New(apperr.KindConflict, "name is already taken")
		case errors.Is(err, store.ErrDuplicateEmail):
			return "", apperr.New(apperr.KindConflict, "email is already taken")
		default:
			return "", apperr.Internal(err)
		}
	}

	token, err := s.tokens.Issue(targetID)
	if err != nil {
		return "", err
	}
	s.emit(ctx, events.NewEvent(events.TypeUpdated, targetID, patch.Fields()...))
	return token, nil
}

// Delete removes the caller's own account. Outstanding tokens are not
// revoked.
func (s *AccountService) Delete(ctx context.Context, caller Identity, targetID string) error {
	self, err := s.repo.GetByID(ctx, caller.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.KindNotFound, "user does not exist")
		}
		return apperr.Internal(err)
	}
	if self.ID != targetID {
		return errForbidden
	}

	if err := s.repo.Delete(ctx, targetID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.KindNotFound, "user does not exist")
		}
		return apperr.Internal(err)
	}
	s.emit(ctx, events.NewEvent(events.TypeDeleted, targetID))
	return nil
}

// ListSelf returns the caller's own profile.
func (s *AccountService) ListSelf(ctx context.Context, caller Identity) ([]types.Profile, error) {
	user, err := s.repo.GetByID(ctx, caller.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errUserNotFound
		}
		return nil, apperr.Internal(err)
	}
	return []types.Profile{user.Profile()}, nil
}

// ListAll returns every account's public profile.
func (s *AccountService) ListAll(ctx context.Context, caller Identity) ([]types.Profile, error) {
	if caller.Subject == "" {
		return nil, errForbidden
	}
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	profiles := make([]types.Profile, 0, len(users))
	for _, user := range users {
		profiles = append(profiles, user.Profile())
	}
	return profiles, nil
}

// checkAvailable fails with KindConflict if another account holds name or
// email. It runs before any mutation.
func (s *AccountService) checkAvailable(ctx context.Context, selfID string, name, email *string) error {
	nameTaken, err := s.heldByOther(ctx, selfID, store.FieldName, name)
	if err != nil {
		return err
	}
	emailTaken, err := s.heldByOther(ctx, selfID, store.FieldEmail, email)
	if err != nil {
		return err
	}
	switch {
	case nameTaken && emailTaken:
		return apperr.New(apperr.KindConflict, "name and email are already taken")
	case nameTaken:
		return apperr.New(apperr.KindConflict, "name is already taken")
	case emailTaken:
		return apperr.New(apperr.KindConflict, "email is already taken")
	}
	return nil
}

func (s *AccountService) heldByOther(ctx context.Context, selfID string, field store.Field, value *string) (bool, error) {
	if value == nil {
		return false, nil
	}
	other, err := s.repo.FindByField(ctx, field, *value)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, apperr.Internal(err)
	}
	return other.ID != selfID, nil
}

// verifyDecoy spends the same hashing work as a real password check so an
// unknown email costs as much as a wrong password.
func (s *AccountService) verifyDecoy(password string) {
	s.decoyOnce.Do(func() {
		hashed, err := s.hasher.Hash("account-login-decoy")
		if err == nil {
			s.decoyHash = hashed
		}
	})
	if s.decoyHash != "" {
		_, _ = s.hasher.Verify(password, s.decoyHash)
	}
}

func (s *AccountService) emit(ctx context.Context, event events.Event) {
	if s.events != nil {
		s.events.Emit(ctx, event)
	}
}

func duplicateEmail() error {
	return apperr.New(apperr.KindDuplicateEmail, "a user with this email already exists")
}
