package errors_test

import (
	"errors"
	"fmt"
	"testing"

	berr "github.com/yuanzhaoK/admin-platform-sub004/contract/errors"
)

func TestCodeAndVars(t *testing.T) {
	e := berr.Code(berr.ErrCodePublishFailed)
	if e.Error() != berr.ErrCodePublishFailed {
		t.Fatalf("unexpected error string: %s", e.Error())
	}

	// exported variables must carry their codes
	tests := []struct {
		err  error
		code string
	}{
		{berr.ErrNotConnected, berr.ErrCodeNotConnected},
		{berr.ErrClosed, berr.ErrCodeClosed},
		{berr.ErrHandlerFailed, berr.ErrCodeHandlerFailed},
		{berr.ErrHandlerTimeout, berr.ErrCodeHandlerTimeout},
		{berr.ErrPublishFailed, berr.ErrCodePublishFailed},
		{berr.ErrSerializationFailed, berr.ErrCodeSerializationFailed},
		{berr.ErrInvalidPattern, berr.ErrCodeInvalidPattern},
		{berr.ErrInvalidConfig, berr.ErrCodeInvalidConfig},
		{berr.ErrNotFound, berr.ErrCodeNotFound},
		{berr.ErrPersistence, berr.ErrCodePersistence},
		{berr.ErrUnknownEvent, berr.ErrCodeUnknownEvent},
		{berr.ErrInvalidEvent, berr.ErrCodeInvalidEvent},
		{berr.ErrCascadeDepth, berr.ErrCodeCascadeDepth},
	}

	for _, tc := range tests {
		if !errors.Is(tc.err, berr.Code(tc.code)) {
			t.Fatalf("expected %s to be %s", tc.err, tc.code)
		}
	}
}

func TestCodeSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("get users/u1: %w", errors.Join(berr.ErrNotFound, errors.New("no rows")))

	if !errors.Is(err, berr.ErrNotFound) {
		t.Fatalf("want ErrNotFound in chain, got %v", err)
	}

	if errors.Is(err, berr.ErrPersistence) {
		t.Fatalf("unexpected ErrPersistence in chain: %v", err)
	}
}
