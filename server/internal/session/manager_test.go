package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

// carry copies the cookies set on rec onto a new request
func carry(rec *httptest.ResponseRecorder) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		r.AddCookie(c)
	}
	return r
}

func TestLoginStateIsSingleUse(t *testing.T) {
	m := NewManager(testKey, time.Hour, false)

	rec := httptest.NewRecorder()
	require.NoError(t, m.SaveLoginState(httptest.NewRequest(http.MethodGet, "/", nil), rec,
		LoginState{State: "s1", Verifier: "v1", Provider: "google"}))

	req := carry(rec)
	rec2 := httptest.NewRecorder()
	ls, err := m.TakeLoginState(req, rec2)
	require.NoError(t, err)
	assert.Equal(t, LoginState{State: "s1", Verifier: "v1", Provider: "google"}, ls)

	_, err = m.TakeLoginState(carry(rec2), httptest.NewRecorder())
	assert.ErrorIs(t, err, ErrNoLoginState)
}

func TestToken(t *testing.T) {
	m := NewManager(testKey, time.Hour, true)

	_, err := m.GetToken(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Error(t, err)

	rec := httptest.NewRecorder()
	require.NoError(t, m.SetToken(httptest.NewRequest(http.MethodGet, "/", nil), rec, "tok"))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].Secure)
	assert.True(t, cookies[0].HttpOnly)

	token, err := m.GetToken(carry(rec))
	require.NoError(t, err)
	assert.Equal(t, "tok", token)

	rec2 := httptest.NewRecorder()
	require.NoError(t, m.ClearToken(carry(rec), rec2))
	cleared := rec2.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.True(t, cleared[0].MaxAge < 0)
}

func TestForeignCookieIsIgnored(t *testing.T) {
	m := NewManager(testKey, time.Hour, false)
	other := NewManager([]byte("fedcba9876543210fedcba9876543210"), time.Hour, false)

	rec := httptest.NewRecorder()
	require.NoError(t, other.SetToken(httptest.NewRequest(http.MethodGet, "/", nil), rec, "forged"))

	_, err := m.GetToken(carry(rec))
	assert.Error(t, err)
}
