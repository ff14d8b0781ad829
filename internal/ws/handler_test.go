package ws

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeCheckOrigin(t *testing.T) {
	check := makeCheckOrigin([]string{"http://localhost:3000", "https://app.example.com"})

	cases := []struct {
		origin  string
		allowed bool
	}{
		{"http://localhost:3000", true},
		{"HTTP://LOCALHOST:3000", true},
		{"https://app.example.com", true},
		{"https://evil.example.com", false},
		{"http://localhost:9999", false},
		{"", false},
		{"not a url", false},
	}

	for _, tc := range cases {
		r := httptest.NewRequest("GET", "/ws", nil)
		if tc.origin != "" {
			r.Header.Set("Origin", tc.origin)
		}
		assert.Equal(t, tc.allowed, check(r), "origin %q", tc.origin)
	}
}

func TestMakeCheckOriginEmptyList(t *testing.T) {
	check := makeCheckOrigin(nil)
	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "http://localhost:3000")
	assert.False(t, check(r), "no configured origins means nothing is allowed")
}

func TestExtractTokenFromWSRequest(t *testing.T) {
	t.Run("AuthorizationHeader", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		r.Header.Set("Authorization", "Bearer tok123")

		token, err := extractTokenFromWSRequest(r)
		require.NoError(t, err)
		assert.Equal(t, "tok123", token)
	})

	t.Run("SubprotocolHeader", func(t *testing.T) {
		// Browsers cannot set Authorization on websocket upgrades, so the
		// token rides in the subprotocol list: "bearer, <token>".
		r := httptest.NewRequest("GET", "/ws", nil)
		r.Header.Set("Sec-WebSocket-Protocol", "bearer, tok456")

		token, err := extractTokenFromWSRequest(r)
		require.NoError(t, err)
		assert.Equal(t, "tok456", token)
	})

	t.Run("AuthorizationWins", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		r.Header.Set("Authorization", "Bearer fromheader")
		r.Header.Set("Sec-WebSocket-Protocol", "bearer, fromprotocol")

		token, err := extractTokenFromWSRequest(r)
		require.NoError(t, err)
		assert.Equal(t, "fromheader", token)
	})

	t.Run("Missing", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		_, err := extractTokenFromWSRequest(r)
		assert.Error(t, err)
	})

	t.Run("MalformedProtocol", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws", nil)
		r.Header.Set("Sec-WebSocket-Protocol", "chat")
		_, err := extractTokenFromWSRequest(r)
		assert.Error(t, err)
	})
}
