package auth

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/iurnickita/paybot/internal/clock"
	"github.com/iurnickita/paybot/internal/ledger"
	"github.com/iurnickita/paybot/internal/model"
)

var (
	ErrInvalidUsername    = errors.New("username must be 3-15 characters: lowercase letters, digits, underscore")
	ErrWeakPassword       = errors.New("password must be at least 8 characters with an uppercase letter, a lowercase letter and a digit")
	ErrInvalidPhone       = errors.New("phone must be 11 digits starting with 03")
	ErrInvalidName        = errors.New("name must be 2 to 30 characters")
	ErrInvalidDateOfBirth = errors.New("date of birth must be a real date in DD-MM-YYYY, age 14 to 55")
	ErrUserExists         = errors.New("username already taken")
	ErrPhoneTaken         = errors.New("phone already registered")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrBanned             = errors.New("account suspended")
)

var (
	usernamePattern = regexp.MustCompile(`^[a-z0-9_]{3,15}$`)
	phonePattern    = regexp.MustCompile(`^03\d{9}$`)

	passwordUpper = regexp.MustCompile(`[A-Z]`)
	passwordLower = regexp.MustCompile(`[a-z]`)
	passwordDigit = regexp.MustCompile(`\d`)
)

const (
	minAge = 14
	maxAge = 55
)

type Registration struct {
	Username    string `json:"login"`
	Password    string `json:"password"`
	FirstName   string `json:"firstName"`
	DateOfBirth string `json:"dob"`
	Phone       string `json:"phone"`
}

// Registrar creates accounts and checks credentials.
type Registrar struct {
	ledger *ledger.Ledger
	clock  clock.Clock
	zaplog *zap.Logger

	// serializes the phone uniqueness check with account creation
	mu sync.Mutex
}

func NewRegistrar(l *ledger.Ledger, c clock.Clock, zaplog *zap.Logger) *Registrar {
	return &Registrar{ledger: l, clock: c, zaplog: zaplog}
}

func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

func ValidatePassword(password string) error {
	if len(password) < 8 || !passwordUpper.MatchString(password) ||
		!passwordLower.MatchString(password) || !passwordDigit.MatchString(password) {
		return ErrWeakPassword
	}
	return nil
}

func NormalizePhone(phone string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(phone))
}

func ValidatePhone(phone string) error {
	if !phonePattern.MatchString(phone) {
		return ErrInvalidPhone
	}
	return nil
}

func ValidateName(name string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	if n < 2 || n > 30 {
		return ErrInvalidName
	}
	return nil
}

// ValidateDateOfBirth accepts an empty value.
func ValidateDateOfBirth(dob string, now time.Time) error {
	if dob == "" {
		return nil
	}
	born, err := time.Parse(clock.DateLayout, dob)
	if err != nil {
		return ErrInvalidDateOfBirth
	}
	age := now.Year() - born.Year()
	if age < minAge || age > maxAge {
		return ErrInvalidDateOfBirth
	}
	return nil
}

func (r *Registrar) Validate(reg Registration) error {
	if err := ValidateUsername(reg.Username); err != nil {
		return err
	}
	if err := ValidatePassword(reg.Password); err != nil {
		return err
	}
	if err := ValidateName(reg.FirstName); err != nil {
		return err
	}
	if err := ValidateDateOfBirth(reg.DateOfBirth, r.clock.Now()); err != nil {
		return err
	}
	return ValidatePhone(NormalizePhone(reg.Phone))
}

func (r *Registrar) Register(ctx context.Context, reg Registration) (model.Account, error) {
	reg.Phone = NormalizePhone(reg.Phone)
	reg.FirstName = strings.TrimSpace(reg.FirstName)
	if err := r.Validate(reg); err != nil {
		return model.Account{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, acc := range r.ledger.List() {
		if acc.Profile.Phone == reg.Phone {
			return model.Account{}, ErrPhoneTaken
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return model.Account{}, err
	}

	acc, err := r.ledger.Register(ctx, reg.Username, model.Profile{
		FirstName:    reg.FirstName,
		DateOfBirth:  reg.DateOfBirth,
		Phone:        reg.Phone,
		PasswordHash: string(hash),
	})
	if err != nil {
		if errors.Is(err, ledger.ErrAccountExists) {
			return model.Account{}, ErrUserExists
		}
		return model.Account{}, err
	}
	return acc, nil
}

func (r *Registrar) Login(username, password string) (model.Account, error) {
	acc, err := r.ledger.Get(username)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return model.Account{}, ErrInvalidCredentials
		}
		return model.Account{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.Profile.PasswordHash), []byte(password)) != nil {
		r.zaplog.Info("login failed", zap.String("account", username))
		return model.Account{}, ErrInvalidCredentials
	}
	if acc.IsBanned {
		return model.Account{}, ErrBanned
	}
	return acc, nil
}
