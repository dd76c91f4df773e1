package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

const machineTokenPrefix = "et7_"

// GenerateMachineToken creates a token for name.
// Format: et7_<name>_<random_secret>
func GenerateMachineToken(name string) (string, error) {
	if name == "" || strings.Contains(name, "_") {
		return "", fmt.Errorf("token name must be non-empty and contain no underscore")
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}

	return machineTokenPrefix + name + "_" + hex.EncodeToString(secret), nil
}

// machineTokenName extracts the name of a machine token.
func machineTokenName(token string) (string, bool) {
	if !strings.HasPrefix(token, machineTokenPrefix) {
		return "", false
	}
	name, secret, ok := strings.Cut(token[len(machineTokenPrefix):], "_")
	if !ok || name == "" || len(secret) != 64 {
		return "", false
	}
	return name, true
}
