package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/atlasbank/swift-portal/internal/model"
	"github.com/atlasbank/swift-portal/internal/ratelimit"
	"github.com/atlasbank/swift-portal/internal/repository"
	"github.com/atlasbank/swift-portal/internal/session"
	"github.com/atlasbank/swift-portal/pkg/prom"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is deliberately identical for unknown
	// identities and wrong passwords so responses do not reveal
	// account existence.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrDuplicateIdentity  = errors.New("username, email or account number already registered")
	ErrLockedOut          = errors.New("too many failed attempts, try again later")
	ErrNoSession          = errors.New("no valid session")
)

// dummyHash keeps the bcrypt comparison on the login path even when no
// matching identity exists, so timing does not reveal account existence.
var dummyHash = []byte("$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW")

type UserRepository interface {
	Create(ctx context.Context, user *model.User) (*model.User, error)
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByCredentialPair(ctx context.Context, username, accountNumber string) (*model.User, error)
	ExistsIdentity(ctx context.Context, username, email, accountNumber string) (bool, error)
}

type EmployeeRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Employee, error)
	GetByEmployeeNumber(ctx context.Context, employeeNumber string) (*model.Employee, error)
}

type AuthService struct {
	userRepo     UserRepository
	employeeRepo EmployeeRepository
	sessions     *session.Store
	lockout      *ratelimit.Lockout
	bcryptCost   int
}

func NewAuthService(userRepo UserRepository, employeeRepo EmployeeRepository, sessions *session.Store, lockout *ratelimit.Lockout, bcryptCost int) *AuthService {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{
		userRepo:     userRepo,
		employeeRepo: employeeRepo,
		sessions:     sessions,
		lockout:      lockout,
		bcryptCost:   bcryptCost,
	}
}

// Register creates a customer identity and opens a session bound to it.
func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (*model.User, *model.Session, error) {
	if err := req.Validate(); err != nil {
		return nil, nil, err
	}

	email := req.InternalEmail()
	exists, err := s.userRepo.ExistsIdentity(ctx, req.Username, email, req.AccountNumber)
	if err != nil {
		return nil, nil, fmt.Errorf("identity lookup: %w", err)
	}
	if exists {
		return nil, nil, ErrDuplicateIdentity
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		Username:      req.Username,
		FullName:      strings.TrimSpace(req.FullName),
		IDNumber:      req.IDNumber,
		AccountNumber: req.AccountNumber,
		Email:         email,
		PasswordHash:  string(hash),
	}

	created, err := s.userRepo.Create(ctx, user)
	if err != nil {
		// The unique indexes close the race between the lookup above and
		// this insert.
		if errors.Is(err, repository.ErrDuplicateIdentity) {
			return nil, nil, ErrDuplicateIdentity
		}
		return nil, nil, fmt.Errorf("create user: %w", err)
	}

	sess, err := s.sessions.Create(created.ID, model.RoleCustomer, created.Username)
	if err != nil {
		return nil, nil, fmt.Errorf("open session: %w", err)
	}

	prom.IncRegistration()
	return created, sess, nil
}

// Login authenticates a customer by username/account pair and password.
// Failures are recorded against the identity regardless of cause.
func (s *AuthService) Login(ctx context.Context, username, accountNumber, password string) (*model.Session, error) {
	identityKey := "customer:" + username

	locked, err := s.lockout.Locked(identityKey)
	if err != nil {
		return nil, fmt.Errorf("lockout lookup: %w", err)
	}
	if locked {
		prom.IncLoginAttempt(string(model.RoleCustomer), "locked")
		return nil, ErrLockedOut
	}

	user, err := s.userRepo.GetByCredentialPair(ctx, username, accountNumber)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// Burn a comparison anyway so the miss costs the same.
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, s.recordFailure(identityKey, model.RoleCustomer)
		}
		return nil, fmt.Errorf("credential lookup: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, s.recordFailure(identityKey, model.RoleCustomer)
	}

	if err := s.lockout.Reset(identityKey); err != nil {
		return nil, fmt.Errorf("lockout reset: %w", err)
	}

	sess, err := s.sessions.Create(user.ID, model.RoleCustomer, user.Username)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	prom.IncLoginAttempt(string(model.RoleCustomer), "success")
	return sess, nil
}

// EmployeeLogin authenticates an employee by employee number.
func (s *AuthService) EmployeeLogin(ctx context.Context, employeeNumber, password string) (*model.Session, error) {
	identityKey := "employee:" + employeeNumber

	locked, err := s.lockout.Locked(identityKey)
	if err != nil {
		return nil, fmt.Errorf("lockout lookup: %w", err)
	}
	if locked {
		prom.IncLoginAttempt(string(model.RoleEmployee), "locked")
		return nil, ErrLockedOut
	}

	employee, err := s.employeeRepo.GetByEmployeeNumber(ctx, employeeNumber)
	if err != nil {
		if errors.Is(err, repository.ErrEmployeeNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, s.recordFailure(identityKey, model.RoleEmployee)
		}
		return nil, fmt.Errorf("credential lookup: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(employee.PasswordHash), []byte(password)); err != nil {
		return nil, s.recordFailure(identityKey, model.RoleEmployee)
	}

	if err := s.lockout.Reset(identityKey); err != nil {
		return nil, fmt.Errorf("lockout reset: %w", err)
	}

	sess, err := s.sessions.Create(employee.ID, model.RoleEmployee, employee.EmployeeNumber)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	prom.IncLoginAttempt(string(model.RoleEmployee), "success")
	return sess, nil
}

// Logout destroys the server-side session state.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.Destroy(sessionID)
}

// CurrentIdentity resolves a session identifier to its principal.
func (s *AuthService) CurrentIdentity(ctx context.Context, sessionID string) (*model.Identity, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	return &model.Identity{
		SubjectID: sess.SubjectID,
		Role:      sess.Role,
		Username:  sess.Username,
	}, nil
}

func (s *AuthService) recordFailure(identityKey string, role model.Role) error {
	count, err := s.lockout.RecordFailure(identityKey)
	if err != nil {
		return fmt.Errorf("lockout record: %w", err)
	}
	prom.IncLoginAttempt(string(role), "failure")
	if count == s.lockout.MaxFailures() {
		prom.IncLockout()
	}
	return ErrInvalidCredentials
}
