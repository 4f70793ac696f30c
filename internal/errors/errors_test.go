package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/victornm/emstudy/internal/errors"
)

func TestError_HTTPStatusCode(t *testing.T) {
	tests := map[string]struct {
		code errors.Code
		want int
	}{
		"not found":           {code: errors.CodeNotFound, want: http.StatusNotFound},
		"permission denied":   {code: errors.CodePermissionDenied, want: http.StatusForbidden},
		"failed precondition": {code: errors.CodeFailedPrecondition, want: http.StatusBadRequest},
		"deadline exceeded":   {code: errors.CodeDeadlineExceeded, want: http.StatusGone},
		"unknown code":        {code: errors.Code(codes.DataLoss), want: http.StatusInternalServerError},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, errors.New(tt.code).HTTPStatusCode())
		})
	}
}

func TestIs(t *testing.T) {
	cause := stderrors.New("boom")
	err := fmt.Errorf("submit: %w", errors.New(errors.CodeDeadlineExceeded, errors.WithCause(cause)))

	assert.True(t, errors.Is(err, errors.CodeDeadlineExceeded))
	assert.False(t, errors.Is(err, errors.CodeFailedPrecondition), "deadline must not collapse into failed precondition")
	assert.True(t, stderrors.Is(err, cause))
	assert.False(t, errors.Is(cause, errors.CodeInternal))
}

func TestConvert(t *testing.T) {
	e := errors.Convert(stderrors.New("db down"))
	require.Equal(t, errors.CodeInternal, e.Code)

	wrapped := fmt.Errorf("outer: %w", errors.New(errors.CodeNotFound, errors.WithMessagef("quiz %d not found", 7)))
	e = errors.Convert(wrapped)
	require.Equal(t, errors.CodeNotFound, e.Code)
	require.Equal(t, "quiz 7 not found", e.Message)

	st, ok := status.FromError(e)
	require.True(t, ok)
	require.Equal(t, codes.NotFound, st.Code())
}
