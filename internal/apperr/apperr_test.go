package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{name: "message only", err: New(CodeInvalidInput, "", "missing query"), want: "missing query"},
		{name: "op and message", err: New(CodeConflict, "prepare squid", "held"), want: "prepare squid: held"},
		{name: "cause only", err: &Error{Code: CodeNetwork, Op: "lobstr", Err: cause}, want: "lobstr: boom"},
		{name: "message and cause", err: &Error{Code: CodeProvider, Message: "bad status", Err: cause}, want: "bad status: boom"},
		{name: "code fallback", err: &Error{Code: CodeInternal}, want: "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestIsMatchesByCode(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("launch: %w", New(CodeCreditsExhausted, "lobstr", "no credits left"))
	require.ErrorIs(t, err, ErrCreditsExhausted)
	require.NotErrorIs(t, err, ErrConflict)

	cause := errors.New("root")
	wrapped := Wrap(CodeDatabase, "save", cause)
	require.ErrorIs(t, wrapped, cause)
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := map[Code]int{
		CodeInvalidInput:     http.StatusBadRequest,
		CodeUnauthorized:     http.StatusUnauthorized,
		CodeCreditsExhausted: http.StatusPaymentRequired,
		CodeNotFound:         http.StatusNotFound,
		CodeConflict:         http.StatusConflict,
		CodeProvider:         http.StatusInternalServerError,
	}
	for code, want := range tests {
		require.Equal(t, want, HTTPStatus(New(code, "op", "msg")), code)
	}
	require.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("plain")))
}

func TestDetails(t *testing.T) {
	t.Parallel()

	err := New(CodeProvider, "lobstr", "bad").WithDetail("status", 500)
	require.Equal(t, map[string]any{"status": 500}, DetailsOf(fmt.Errorf("x: %w", err)))
	require.Nil(t, DetailsOf(errors.New("plain")))
	require.Nil(t, Wrap(CodeInternal, "op", nil))
}

func TestProvider(t *testing.T) {
	t.Parallel()

	err := Provider("openrouter", 503, "overloaded", "", `{"error":{}}`)
	require.Equal(t, CodeProvider, err.Code)
	require.Equal(t, "openrouter: provider returned status 503", err.Error())
	require.Equal(t, 503, err.Details["status"])
	require.Equal(t, "overloaded", err.Details["type"])
}
