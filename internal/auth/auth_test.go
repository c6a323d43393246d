package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticVerifier(t *testing.T) {
	hash, err := HashToken("open-sesame")
	require.NoError(t, err)
	v := NewStaticVerifier([]StaticUser{
		{Sub: "u1", Name: "Ada", TokenHash: hash},
	})

	info, err := v.Verify(context.Background(), "open-sesame")
	require.NoError(t, err)
	assert.Equal(t, "u1", info.Sub)
	assert.Equal(t, "Ada", info.Name)

	_, err = v.Verify(context.Background(), "wrong")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHTTPVerifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer good-token":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"sub":"u7","name":"Grace","picture":"p.png"}`))
		case "Bearer server-error":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	v := NewHTTPVerifier(srv.URL, 2*time.Second)

	info, err := v.Verify(context.Background(), "good-token")
	require.NoError(t, err)
	assert.Equal(t, "u7", info.Sub)
	assert.Equal(t, "Grace", info.Name)
	assert.Equal(t, "p.png", info.Picture)

	_, err = v.Verify(context.Background(), "bad-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify(context.Background(), "server-error")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidToken)
}

func TestHTTPVerifierRejectsMissingSub(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"NoSub"}`))
	}))
	defer srv.Close()

	v := NewHTTPVerifier(srv.URL, time.Second)
	_, err := v.Verify(context.Background(), "whatever")
	assert.Error(t, err)
}
