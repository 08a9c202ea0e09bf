package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/iurnickita/paybot/internal/auth/config"
	"github.com/iurnickita/paybot/internal/clock"
	"github.com/iurnickita/paybot/internal/ledger"
	ledgerConfig "github.com/iurnickita/paybot/internal/ledger/config"
	"github.com/iurnickita/paybot/internal/store"
	"github.com/iurnickita/paybot/internal/token"
)

func newTestRegistrar(t *testing.T) (*Registrar, *ledger.Ledger) {
	t.Helper()
	c := &clock.Fixed{T: time.Date(2025, 3, 10, 12, 0, 0, 0, clock.Zone(clock.DefaultOffset))}
	l, err := ledger.New(context.Background(), ledgerConfig.Default(), store.NewMemoryStore(), c, zap.NewNop())
	require.NoError(t, err)
	return NewRegistrar(l, c, zap.NewNop()), l
}

func validRegistration() Registration {
	return Registration{
		Username:    "ali_123",
		Password:    "Secret123",
		FirstName:   " Ali ",
		DateOfBirth: "15-06-1995",
		Phone:       "0300-1234567",
	}
}

func TestRegistrarValidation(t *testing.T) {
	r, _ := newTestRegistrar(t)

	tests := []struct {
		name    string
		mutate  func(*Registration)
		wantErr error
	}{
		{name: "valid", mutate: func(*Registration) {}},
		{name: "uppercase username", mutate: func(r *Registration) { r.Username = "Ali" }, wantErr: ErrInvalidUsername},
		{name: "short username", mutate: func(r *Registration) { r.Username = "al" }, wantErr: ErrInvalidUsername},
		{name: "no digit", mutate: func(r *Registration) { r.Password = "SecretPass" }, wantErr: ErrWeakPassword},
		{name: "short password", mutate: func(r *Registration) { r.Password = "Se1" }, wantErr: ErrWeakPassword},
		{name: "one letter name", mutate: func(r *Registration) { r.FirstName = "A" }, wantErr: ErrInvalidName},
		{name: "too young", mutate: func(r *Registration) { r.DateOfBirth = "01-01-2015" }, wantErr: ErrInvalidDateOfBirth},
		{name: "bad date", mutate: func(r *Registration) { r.DateOfBirth = "31-02-1990" }, wantErr: ErrInvalidDateOfBirth},
		{name: "empty date", mutate: func(r *Registration) { r.DateOfBirth = "" }},
		{name: "bad phone", mutate: func(r *Registration) { r.Phone = "0400123456" }, wantErr: ErrInvalidPhone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := validRegistration()
			tt.mutate(&reg)
			err := r.Validate(reg)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRegistrarRegisterLogin(t *testing.T) {
	ctx := context.Background()
	r, l := newTestRegistrar(t)

	acc, err := r.Register(ctx, validRegistration())
	require.NoError(t, err)
	require.Equal(t, "Ali", acc.Profile.FirstName)
	require.Equal(t, "03001234567", acc.Profile.Phone)
	require.NotEqual(t, "Secret123", acc.Profile.PasswordHash)

	_, err = r.Register(ctx, validRegistration())
	require.ErrorIs(t, err, ErrPhoneTaken)

	other := validRegistration()
	other.Phone = "03007654321"
	_, err = r.Register(ctx, other)
	require.ErrorIs(t, err, ErrUserExists)

	_, err = r.Login("ali_123", "Secret123")
	require.NoError(t, err)
	_, err = r.Login("ali_123", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = r.Login("nobody", "Secret123")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = l.SetBanned(ctx, "ali_123", true)
	require.NoError(t, err)
	_, err = r.Login("ali_123", "Secret123")
	require.ErrorIs(t, err, ErrBanned)
}

func newTestAuth(t *testing.T) Auth {
	t.Helper()
	r, _ := newTestRegistrar(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("admin-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	cfg := config.Config{
		TokenSecret:       "secret",
		TokenTTL:          time.Hour,
		AdminLogin:        "root",
		AdminPasswordHash: string(hash),
	}
	return NewAuth(cfg, r, token.NewIssuer(cfg.TokenSecret, cfg.TokenTTL), zap.NewNop())
}

func post(h http.HandlerFunc, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(raw)))
	return w
}

func TestAuthHandlers(t *testing.T) {
	a := newTestAuth(t)

	w := post(a.Register, validRegistration())
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Header().Get("Authorization"))

	require.Equal(t, http.StatusConflict, post(a.Register, validRegistration()).Code)

	weak := validRegistration()
	weak.Username = "bob_1"
	weak.Phone = "03110000000"
	weak.Password = "weak"
	require.Equal(t, http.StatusBadRequest, post(a.Register, weak).Code)

	require.Equal(t, http.StatusUnauthorized, post(a.Login, loginJSONRequest{Login: "ali_123", Password: "bad"}).Code)
	w = post(a.Login, loginJSONRequest{Login: "ali_123", Password: "Secret123"})
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Equal(t, cookieUserToken, cookies[0].Name)

	require.Equal(t, http.StatusUnauthorized, post(a.AdminLogin, loginJSONRequest{Login: "root", Password: "nope"}).Code)
	require.Equal(t, http.StatusOK, post(a.AdminLogin, loginJSONRequest{Login: "root", Password: "admin-pass"}).Code)
}

func TestAuthMiddleware(t *testing.T) {
	a := newTestAuth(t)
	userToken := post(a.Register, validRegistration()).Header().Get("Authorization")
	adminToken := post(a.AdminLogin, loginJSONRequest{Login: "root", Password: "admin-pass"}).Header().Get("Authorization")

	var seen string
	next := func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(HeaderUserCodeKey)
	}

	tests := []struct {
		name     string
		h        http.HandlerFunc
		authz    string
		wantCode int
		wantUser string
	}{
		{name: "user route with user token", h: a.Middleware(next), authz: userToken, wantCode: http.StatusOK, wantUser: "ali_123"},
		{name: "user route without token", h: a.Middleware(next), wantCode: http.StatusUnauthorized},
		{name: "user route with admin token", h: a.Middleware(next), authz: adminToken, wantCode: http.StatusForbidden},
		{name: "admin route with user token", h: a.AdminMiddleware(next), authz: userToken, wantCode: http.StatusForbidden},
		{name: "admin route with admin token", h: a.AdminMiddleware(next), authz: adminToken, wantCode: http.StatusOK, wantUser: "root"},
		{name: "garbage token", h: a.Middleware(next), authz: "Bearer abc", wantCode: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set(HeaderUserCodeKey, "spoofed")
			if tt.authz != "" {
				r.Header.Set("Authorization", tt.authz)
			}
			w := httptest.NewRecorder()
			tt.h(w, r)
			require.Equal(t, tt.wantCode, w.Code)
			require.Equal(t, tt.wantUser, seen)
		})
	}
}
