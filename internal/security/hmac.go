// Package security signs and verifies orchestration requests.
//
// Devices sign each request with HMAC-SHA256 over a canonical payload.
// The server verifies signatures before any policy or strategy work runs,
// so a forged or replayed-for-another-device request never reaches the
// engine.
package security

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/aabboodi/edgehub/internal/domain"
)

// HMACValidator verifies request and policy-update signatures using a
// shared secret. The signature is the lowercase hex HMAC-SHA256 of a
// canonical payload string.
type HMACValidator struct {
	secret []byte
}

func NewHMACValidator(secret string) *HMACValidator {
	return &HMACValidator{secret: []byte(secret)}
}

// ValidateRequest checks the signature over "deviceID:taskID" and that the
// summary belongs to the claimed device.
func (v *HMACValidator) ValidateRequest(ctx context.Context, summary domain.TaskSummary, deviceID, signature string) error {
	if summary.DeviceID != "" && summary.DeviceID != deviceID {
		return domain.InvalidArgument(fmt.Sprintf("task summary device %q does not match request device %q", summary.DeviceID, deviceID))
	}
	return v.verify(deviceID+":"+summary.TaskID, signature)
}

// ValidatePolicyUpdate checks the signature over the device id joined with
// the ordered policy ids.
func (v *HMACValidator) ValidatePolicyUpdate(ctx context.Context, deviceID string, policies []domain.Policy, signature string) error {
	ids := make([]string, 0, len(policies))
	for _, p := range policies {
		ids = append(ids, p.ID)
	}
	return v.verify(deviceID+":"+strings.Join(ids, ","), signature)
}

func (v *HMACValidator) verify(payload, signature string) error {
	if signature == "" {
		return domain.Unauthenticated("missing request signature")
	}
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return domain.Unauthenticated("malformed request signature")
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(payload))
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return domain.Unauthenticated("request signature mismatch")
	}
	return nil
}

// Sign produces the hex signature for a canonical payload. Intended for
// clients and tests.
func (v *HMACValidator) Sign(payload string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// InsecureValidator accepts every request. It exists for local development
// where no signing secret is configured.
type InsecureValidator struct{}

func (InsecureValidator) ValidateRequest(ctx context.Context, summary domain.TaskSummary, deviceID, signature string) error {
	if summary.DeviceID != "" && summary.DeviceID != deviceID {
		return domain.InvalidArgument(fmt.Sprintf("task summary device %q does not match request device %q", summary.DeviceID, deviceID))
	}
	return nil
}

func (InsecureValidator) ValidatePolicyUpdate(ctx context.Context, deviceID string, policies []domain.Policy, signature string) error {
	return nil
}
