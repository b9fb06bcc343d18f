// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-relyingparty.
//
// go-relyingparty is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package webauthn

import (
	"errors"
	"fmt"
)

// Sentinel errors for ceremony operations.
var (
	// ErrUserNotFound is returned when a user cannot be resolved.
	ErrUserNotFound = errors.New("user not found")

	// ErrNoCredentials is returned when a user has no enrolled authenticators.
	ErrNoCredentials = errors.New("user has no registered credentials")

	// ErrNoPendingChallenge is returned when a ceremony is completed without
	// an outstanding challenge, or against a challenge issued for the other
	// ceremony kind.
	ErrNoPendingChallenge = errors.New("no pending challenge")

	// ErrChallengeExpired is returned when the pending challenge outlived
	// its server-side TTL.
	ErrChallengeExpired = errors.New("challenge expired")

	// ErrChallengeMismatch is returned when the challenge embedded in the
	// client response does not equal the stored challenge byte-for-byte.
	ErrChallengeMismatch = errors.New("challenge mismatch")

	// ErrAttestationRejected is returned when the attestation statement
	// format is anything other than "none".
	ErrAttestationRejected = errors.New("attestation format rejected")

	// ErrCredentialNotFound is returned when the asserted credential is not
	// enrolled for the authenticating user.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrCredentialExists is returned when registering a credential ID that
	// is already enrolled.
	ErrCredentialExists = errors.New("credential already exists")

	// ErrCounterRegression is returned when the asserted signature counter
	// did not advance past the stored value, indicating a possible cloned
	// authenticator.
	ErrCounterRegression = errors.New("signature counter regression")

	// ErrVerificationFailed is returned when a cryptographic check (origin,
	// RP ID binding, signature) fails.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrStorage is returned when the persistence layer fails unexpectedly.
	ErrStorage = errors.New("storage failure")

	// ErrNotConfigured is returned when the service is used before it has
	// been constructed with NewService.
	ErrNotConfigured = errors.New("relying party service not configured")
)

// CeremonyError wraps an error with the operation that produced it.
type CeremonyError struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

// Error returns the error message.
func (e *CeremonyError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *CeremonyError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches.
func (e *CeremonyError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new CeremonyError with the given operation and error.
func NewError(op string, err error) error {
	return &CeremonyError{
		Op:  op,
		Err: err,
	}
}

// WrapError wraps an error with an operation name if it's not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(op, err)
}

// IsUserNotFound returns true if the error indicates a user was not found.
func IsUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

// IsCredentialNotFound returns true if the error indicates the asserted
// credential is not enrolled for the user.
func IsCredentialNotFound(err error) bool {
	return errors.Is(err, ErrCredentialNotFound)
}

// IsCounterRegression returns true if the error indicates a signature
// counter regression.
func IsCounterRegression(err error) bool {
	return errors.Is(err, ErrCounterRegression)
}

// IsVerificationFailure returns true for any error in the verification
// failure family. Callers at the transport boundary collapse all of these
// to a single generic outcome so the failed check is never exposed to the
// client.
func IsVerificationFailure(err error) bool {
	for _, target := range []error{
		ErrNoPendingChallenge,
		ErrChallengeExpired,
		ErrChallengeMismatch,
		ErrAttestationRejected,
		ErrCredentialNotFound,
		ErrCredentialExists,
		ErrCounterRegression,
		ErrVerificationFailed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
