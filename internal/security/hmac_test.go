package security

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aabboodi/edgehub/internal/domain"
)

func TestValidateRequestRoundTrip(t *testing.T) {
	v := NewHMACValidator("shared-secret")
	summary := domain.TaskSummary{TaskID: "task-1", DeviceID: "dev-1"}

	signature := v.Sign("dev-1:task-1")
	require.NoError(t, v.ValidateRequest(context.Background(), summary, "dev-1", signature))
}

func TestValidateRequestRejectsBadSignatures(t *testing.T) {
	v := NewHMACValidator("shared-secret")
	summary := domain.TaskSummary{TaskID: "task-1", DeviceID: "dev-1"}

	cases := []struct {
		name      string
		signature string
	}{
		{"empty", ""},
		{"not hex", "zzzz"},
		{"wrong secret", NewHMACValidator("other-secret").Sign("dev-1:task-1")},
		{"wrong payload", v.Sign("dev-1:task-2")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.ValidateRequest(context.Background(), summary, "dev-1", tc.signature)
			appError, ok := domain.AsAppError(err)
			require.True(t, ok)
			require.Equal(t, domain.CodeUnauthenticated, appError.Code)
		})
	}
}

func TestValidateRequestRejectsDeviceMismatch(t *testing.T) {
	v := NewHMACValidator("shared-secret")
	summary := domain.TaskSummary{TaskID: "task-1", DeviceID: "dev-2"}

	err := v.ValidateRequest(context.Background(), summary, "dev-1", v.Sign("dev-1:task-1"))
	appError, ok := domain.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeInvalidArgument, appError.Code)
}

func TestValidatePolicyUpdateSignsOrderedIDs(t *testing.T) {
	v := NewHMACValidator("shared-secret")
	policies := []domain.Policy{{ID: "p1"}, {ID: "p2"}}

	good := v.Sign("dev-1:p1,p2")
	require.NoError(t, v.ValidatePolicyUpdate(context.Background(), "dev-1", policies, good))

	reordered := v.Sign("dev-1:p2,p1")
	err := v.ValidatePolicyUpdate(context.Background(), "dev-1", policies, reordered)
	appError, ok := domain.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeUnauthenticated, appError.Code)
}

func TestInsecureValidatorStillChecksDeviceMatch(t *testing.T) {
	v := InsecureValidator{}

	require.NoError(t, v.ValidateRequest(context.Background(), domain.TaskSummary{DeviceID: "dev-1"}, "dev-1", ""))

	err := v.ValidateRequest(context.Background(), domain.TaskSummary{DeviceID: "dev-2"}, "dev-1", "")
	appError, ok := domain.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeInvalidArgument, appError.Code)
}
