package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/iurnickita/paybot/internal/auth/config"
	"github.com/iurnickita/paybot/internal/token"
)

type Auth interface {
	Register(w http.ResponseWriter, r *http.Request)
	Login(w http.ResponseWriter, r *http.Request)
	AdminLogin(w http.ResponseWriter, r *http.Request)
	Middleware(h http.HandlerFunc) http.HandlerFunc
	AdminMiddleware(h http.HandlerFunc) http.HandlerFunc
}

const (
	HeaderUserCodeKey = "X-Paybot-User"
	cookieUserToken   = "paybotUserToken"
)

var ErrForbidden = errors.New("forbidden")

type auth struct {
	cfg       config.Config
	registrar *Registrar
	tokens    *token.Issuer
	zaplog    *zap.Logger
}

func NewAuth(cfg config.Config, registrar *Registrar, tokens *token.Issuer, zaplog *zap.Logger) Auth {
	return &auth{cfg: cfg, registrar: registrar, tokens: tokens, zaplog: zaplog}
}

func (a *auth) Register(w http.ResponseWriter, r *http.Request) {
	var reg Registration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	acc, err := a.registrar.Register(r.Context(), reg)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserExists), errors.Is(err, ErrPhoneTaken):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, ErrInvalidUsername), errors.Is(err, ErrWeakPassword),
			errors.Is(err, ErrInvalidPhone), errors.Is(err, ErrInvalidName),
			errors.Is(err, ErrInvalidDateOfBirth):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	a.grant(w, acc.Key, token.RoleUser)
}

type loginJSONRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

func (a *auth) Login(w http.ResponseWriter, r *http.Request) {
	var req loginJSONRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	acc, err := a.registrar.Login(req.Login, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			http.Error(w, err.Error(), http.StatusUnauthorized)
		case errors.Is(err, ErrBanned):
			http.Error(w, err.Error(), http.StatusForbidden)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	a.grant(w, acc.Key, token.RoleUser)
}

func (a *auth) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req loginJSONRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if a.cfg.AdminLogin == "" || req.Login != a.cfg.AdminLogin ||
		bcrypt.CompareHashAndPassword([]byte(a.cfg.AdminPasswordHash), []byte(req.Password)) != nil {
		a.zaplog.Warn("admin login failed", zap.String("login", req.Login))
		http.Error(w, ErrInvalidCredentials.Error(), http.StatusUnauthorized)
		return
	}

	a.grant(w, req.Login, token.RoleAdmin)
}

// токен в куки и в заголовке Authorization
func (a *auth) grant(w http.ResponseWriter, subject string, role token.Role) {
	signed, err := a.tokens.Issue(subject, role)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieUserToken,
		Value:    signed,
		Path:     "/",
		HttpOnly: true,
	})
	w.Header().Set("Authorization", "Bearer "+signed)
	w.WriteHeader(http.StatusOK)
}

func (a *auth) Middleware(h http.HandlerFunc) http.HandlerFunc {
	return a.require(token.RoleUser, h)
}

func (a *auth) AdminMiddleware(h http.HandlerFunc) http.HandlerFunc {
	return a.require(token.RoleAdmin, h)
}

func (a *auth) require(role token.Role, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// получение пользователя из токена
		claims, err := a.getClaims(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		if claims.Role != role {
			http.Error(w, ErrForbidden.Error(), http.StatusForbidden)
			return
		}

		// записываем, поверх того что прислал клиент
		r.Header.Set(HeaderUserCodeKey, claims.Subject)

		// передаём управление хендлеру
		h.ServeHTTP(w, r)
	}
}

func (a *auth) getClaims(r *http.Request) (token.Claims, error) {
	if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return a.tokens.Parse(bearer)
	}
	tokenCookie, err := r.Cookie(cookieUserToken)
	if err != nil {
		return token.Claims{}, err
	}
	return a.tokens.Parse(tokenCookie.Value)
}
