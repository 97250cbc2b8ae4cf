package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Token_Round_Trip(t *testing.T) {
	req := require.New(t)
	tokens := NewTokens("signing-key", time.Hour)

	signed, err := tokens.Generate("42")
	req.NoError(err)

	claims, err := tokens.Validate(signed)
	req.NoError(err)
	req.Equal("42", claims.UserID)
	req.Equal("carechat", claims.Issuer)
}

func Test_Validate_Rejects_Wrong_Key(t *testing.T) {
	req := require.New(t)
	signed, err := NewTokens("key-one", time.Hour).Generate("42")
	req.NoError(err)

	_, err = NewTokens("key-two", time.Hour).Validate(signed)
	req.Error(err)
}

func Test_Validate_Rejects_Expired(t *testing.T) {
	req := require.New(t)
	tokens := NewTokens("signing-key", -time.Minute)

	signed, err := tokens.Generate("42")
	req.NoError(err)

	_, err = tokens.Validate(signed)
	req.Error(err)
}

func Test_Middleware_Injects_User(t *testing.T) {
	req := require.New(t)
	tokens := NewTokens("signing-key", time.Hour)

	var seen string
	handler := tokens.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserID(r)
	}))

	signed, err := tokens.Generate("42")
	req.NoError(err)

	t.Run("Bearer_Header", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/conversations", nil)
		request.Header.Set("Authorization", "Bearer "+signed)
		handler.ServeHTTP(recorder, request)
		require.Equal(t, http.StatusOK, recorder.Code)
		require.Equal(t, "42", seen)
	})

	t.Run("Token_Query_Param", func(t *testing.T) {
		seen = ""
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/ws?token="+signed, nil)
		handler.ServeHTTP(recorder, request)
		require.Equal(t, http.StatusOK, recorder.Code)
		require.Equal(t, "42", seen)
	})

	t.Run("Missing_Token", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/conversations", nil)
		handler.ServeHTTP(recorder, request)
		require.Equal(t, http.StatusUnauthorized, recorder.Code)
	})

	t.Run("Garbage_Token", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/conversations", nil)
		request.Header.Set("Authorization", "Bearer not.a.token")
		handler.ServeHTTP(recorder, request)
		require.Equal(t, http.StatusUnauthorized, recorder.Code)
	})
}
