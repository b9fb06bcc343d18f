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
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/jeremyhahn/go-relyingparty/pkg/encoding"
)

// userHandleSize is the length of the random WebAuthn user handle assigned
// on first registration.
const userHandleSize = 32

// Service implements the relying-party registration and authentication
// ceremonies.
type Service struct {
	webauthn       *webauthn.WebAuthn
	config         *Config
	users          UserStore
	authenticators AuthenticatorStore
	challenges     *ChallengeManager
	tokens         TokenGenerator // optional
	logger         *slog.Logger
	userLocks      sync.Map // user ID -> *sync.Mutex
	configured     bool
}

// ServiceParams contains dependencies for creating a ceremony service.
type ServiceParams struct {
	// Config is the relying-party configuration (required).
	Config *Config

	// UserStore is the account persistence layer (required).
	UserStore UserStore

	// AuthenticatorStore is the credential persistence layer (required).
	AuthenticatorStore AuthenticatorStore

	// ChallengeStore holds the per-user pending ceremony (required).
	ChallengeStore ChallengeStore

	// TokenGenerator is an optional post-authentication token minter.
	TokenGenerator TokenGenerator

	// Logger receives internal verification detail. Defaults to
	// slog.Default.
	Logger *slog.Logger
}

// NewService creates a new ceremony service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if params.UserStore == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if params.AuthenticatorStore == nil {
		return nil, fmt.Errorf("authenticator store is required")
	}
	if params.ChallengeStore == nil {
		return nil, fmt.Errorf("challenge store is required")
	}

	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	wa, err := webauthn.New(params.Config.ToWebAuthnConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create webauthn instance: %w", err)
	}

	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		webauthn:       wa,
		config:         params.Config,
		users:          params.UserStore,
		authenticators: params.AuthenticatorStore,
		challenges:     NewChallengeManager(params.ChallengeStore, params.Config.ChallengeTTL),
		tokens:         params.TokenGenerator,
		logger:         logger,
		configured:     true,
	}, nil
}

// BeginRegistration starts the credential enrollment ceremony for an
// existing user resolved by username.
//
// The returned options carry the relying-party identity, the user handle,
// a fresh challenge, and an exclude list built from the user's enrolled
// credentials so the same credential cannot be registered twice for this
// account.
func (s *Service) BeginRegistration(ctx context.Context, username string) (*protocol.CredentialCreation, *User, error) {
	if !s.configured {
		return nil, nil, ErrNotConfigured
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, nil, WrapError("get user", err)
	}

	unlock := s.lockUser(user.ID)
	defer unlock()

	// The user handle is assigned once and is immutable from then on, so
	// credentials enrolled across ceremonies keep resolving to this account.
	if len(user.WebAuthnUserID) == 0 {
		handle := make([]byte, userHandleSize)
		if _, err := rand.Read(handle); err != nil {
			return nil, nil, WrapError("generate user handle", err)
		}
		user.WebAuthnUserID = handle
		if err := s.users.Save(ctx, user); err != nil {
			return nil, nil, WrapError("save user handle", err)
		}
	}

	authenticators, err := s.authenticators.GetByUserID(ctx, user.ID)
	if err != nil {
		return nil, nil, WrapError("get authenticators", err)
	}

	exclusions := make([]protocol.CredentialDescriptor, 0, len(authenticators))
	for _, a := range authenticators {
		descriptor, err := a.Descriptor()
		if err != nil {
			return nil, nil, err
		}
		exclusions = append(exclusions, descriptor)
	}

	options, session, err := s.webauthn.BeginRegistration(
		&ceremonyUser{user: user, authenticators: authenticators},
		webauthn.WithExclusions(exclusions),
		webauthn.WithCredentialParameters(s.config.CredentialParameters()),
	)
	if err != nil {
		return nil, nil, WrapError("begin registration", err)
	}

	if _, err := s.challenges.Issue(ctx, user.ID, CeremonyRegistration, session); err != nil {
		return nil, nil, err
	}

	return options, user, nil
}

// FinishRegistration completes the credential enrollment ceremony.
//
// Verification order: pending challenge lookup, challenge equality, origin
// equality, RP ID hash binding and signature chain (delegated to the
// protocol layer), attestation format. Any terminal outcome, success or
// failure, clears the pending challenge so the same response can never be
// verified twice.
func (s *Service) FinishRegistration(ctx context.Context, userID string, response *protocol.ParsedCredentialCreationData) (*Profile, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	if response == nil {
		return nil, NewError("finish registration", ErrVerificationFailed)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, WrapError("get user", err)
	}

	unlock := s.lockUser(user.ID)
	defer unlock()

	pending, err := s.challenges.Consume(ctx, user.ID, CeremonyRegistration)
	if err != nil {
		return nil, err
	}
	defer func() {
		if clearErr := s.challenges.Clear(ctx, user.ID); clearErr != nil {
			s.logger.Error("failed to clear pending challenge",
				"user_id", user.ID,
				"error", clearErr)
		}
	}()

	if err := s.verifyClientData(&response.Response.CollectedClientData, pending); err != nil {
		s.logFailure(CeremonyRegistration, user.ID, pending.CeremonyID, err)
		return nil, err
	}

	// Only "none" attestation is accepted; trust-chain validation for other
	// formats is out of scope.
	if format := response.Response.AttestationObject.Format; format != "none" {
		s.logFailure(CeremonyRegistration, user.ID, pending.CeremonyID,
			fmt.Errorf("%w: format %q", ErrAttestationRejected, format))
		return nil, ErrAttestationRejected
	}

	authenticators, err := s.authenticators.GetByUserID(ctx, user.ID)
	if err != nil {
		return nil, WrapError("get authenticators", err)
	}

	credential, err := s.webauthn.CreateCredential(
		&ceremonyUser{user: user, authenticators: authenticators},
		pending.Session,
		response,
	)
	if err != nil {
		s.logFailure(CeremonyRegistration, user.ID, pending.CeremonyID, err)
		return nil, ErrVerificationFailed
	}

	authenticator := &Authenticator{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		CredentialID: encoding.EncodeBase64URL(credential.ID),
		PublicKey:    credential.PublicKey,
		SignCount:    credential.Authenticator.SignCount,
		AAGUID:       credential.Authenticator.AAGUID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.authenticators.Save(ctx, authenticator); err != nil {
		s.logFailure(CeremonyRegistration, user.ID, pending.CeremonyID, err)
		return nil, WrapError("save authenticator", err)
	}

	s.logger.Info("credential registered",
		"user_id", user.ID,
		"ceremony_id", pending.CeremonyID,
		"credential_id", authenticator.CredentialID,
		"sign_count", authenticator.SignCount)
	recordCeremonySuccess(CeremonyRegistration)

	profile := user.Profile()
	return &profile, nil
}

// BeginAuthentication starts the login verification ceremony for an
// existing user resolved by username. A user with no enrolled
// authenticators cannot authenticate and no challenge is issued.
func (s *Service) BeginAuthentication(ctx context.Context, username string) (*protocol.CredentialAssertion, *User, error) {
	if !s.configured {
		return nil, nil, ErrNotConfigured
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, nil, WrapError("get user", err)
	}

	unlock := s.lockUser(user.ID)
	defer unlock()

	authenticators, err := s.authenticators.GetByUserID(ctx, user.ID)
	if err != nil {
		return nil, nil, WrapError("get authenticators", err)
	}
	if len(authenticators) == 0 {
		return nil, nil, ErrNoCredentials
	}

	allowList := make([]protocol.CredentialDescriptor, 0, len(authenticators))
	for _, a := range authenticators {
		descriptor, err := a.Descriptor()
		if err != nil {
			return nil, nil, err
		}
		allowList = append(allowList, descriptor)
	}

	options, session, err := s.webauthn.BeginLogin(
		&ceremonyUser{user: user, authenticators: authenticators},
		webauthn.WithAllowedCredentials(allowList),
	)
	if err != nil {
		return nil, nil, WrapError("begin login", err)
	}

	if _, err := s.challenges.Issue(ctx, user.ID, CeremonyAuthentication, session); err != nil {
		return nil, nil, err
	}

	return options, user, nil
}

// FinishAuthentication completes the login verification ceremony.
//
// The asserted credential must be enrolled for the authenticating user;
// a credential belonging to any other account fails with
// ErrCredentialNotFound even when its signature is valid, preventing
// cross-account credential confusion. After the signature verifies, the
// signature counter must advance past the stored value unless both are
// zero (the documented exemption for authenticators that never increment).
//
// The returned token is empty unless a TokenGenerator was configured.
func (s *Service) FinishAuthentication(ctx context.Context, userID string, response *protocol.ParsedCredentialAssertionData) (*Profile, string, error) {
	if !s.configured {
		return nil, "", ErrNotConfigured
	}
	if response == nil {
		return nil, "", NewError("finish authentication", ErrVerificationFailed)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, "", WrapError("get user", err)
	}

	unlock := s.lockUser(user.ID)
	defer unlock()

	pending, err := s.challenges.Consume(ctx, user.ID, CeremonyAuthentication)
	if err != nil {
		return nil, "", err
	}
	defer func() {
		if clearErr := s.challenges.Clear(ctx, user.ID); clearErr != nil {
			s.logger.Error("failed to clear pending challenge",
				"user_id", user.ID,
				"error", clearErr)
		}
	}()

	if err := s.verifyClientData(&response.Response.CollectedClientData, pending); err != nil {
		s.logFailure(CeremonyAuthentication, user.ID, pending.CeremonyID, err)
		return nil, "", err
	}

	credentialID := encoding.EncodeBase64URL(response.RawID)
	authenticator, err := s.authenticators.GetByCredentialID(ctx, credentialID)
	if err != nil {
		s.logFailure(CeremonyAuthentication, user.ID, pending.CeremonyID, err)
		return nil, "", ErrCredentialNotFound
	}
	if authenticator.UserID != user.ID {
		s.logFailure(CeremonyAuthentication, user.ID, pending.CeremonyID,
			fmt.Errorf("%w: enrolled to another account", ErrCredentialNotFound))
		return nil, "", ErrCredentialNotFound
	}

	authenticators, err := s.authenticators.GetByUserID(ctx, user.ID)
	if err != nil {
		return nil, "", WrapError("get authenticators", err)
	}

	if _, err := s.webauthn.ValidateLogin(
		&ceremonyUser{user: user, authenticators: authenticators},
		pending.Session,
		response,
	); err != nil {
		s.logFailure(CeremonyAuthentication, user.ID, pending.CeremonyID, err)
		return nil, "", ErrVerificationFailed
	}

	// Anti-cloning check. The counter must strictly advance; both-zero is
	// the documented exemption for authenticators that never increment.
	stored := authenticator.SignCount
	reported := response.Response.AuthenticatorData.Counter
	if (stored != 0 || reported != 0) && reported <= stored {
		s.logFailure(CeremonyAuthentication, user.ID, pending.CeremonyID,
			fmt.Errorf("%w: stored %d, reported %d", ErrCounterRegression, stored, reported))
		return nil, "", ErrCounterRegression
	}

	if err := s.authenticators.UpdateSignCount(ctx, credentialID, reported); err != nil {
		return nil, "", WrapError("update sign count", err)
	}

	s.logger.Info("authentication verified",
		"user_id", user.ID,
		"ceremony_id", pending.CeremonyID,
		"credential_id", credentialID,
		"sign_count", reported)
	recordCeremonySuccess(CeremonyAuthentication)

	var token string
	if s.tokens != nil {
		token, err = s.tokens.GenerateToken(ctx, user)
		if err != nil {
			return nil, "", WrapError("generate token", err)
		}
	}

	profile := user.Profile()
	return &profile, token, nil
}

// GetUser retrieves a user by account ID.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	return s.users.GetByID(ctx, id)
}

// GetUserByUsername retrieves a user by username.
func (s *Service) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	return s.users.GetByUsername(ctx, username)
}

// GetAuthenticators retrieves all authenticators enrolled for a user.
func (s *Service) GetAuthenticators(ctx context.Context, userID string) ([]*Authenticator, error) {
	if !s.configured {
		return nil, ErrNotConfigured
	}
	return s.authenticators.GetByUserID(ctx, userID)
}

// SweepExpiredChallenges removes expired pending ceremonies. Intended to
// run periodically from the server.
func (s *Service) SweepExpiredChallenges(ctx context.Context) (int, error) {
	if !s.configured {
		return 0, ErrNotConfigured
	}
	removed, err := s.challenges.Sweep(ctx)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		recordSweep(removed)
		s.logger.Debug("swept expired challenges", "removed", removed)
	}
	return removed, nil
}

// Config returns the service configuration.
func (s *Service) Config() *Config {
	return s.config
}

// verifyClientData checks the client-embedded challenge and origin against
// the stored ceremony state. Both comparisons are exact: the challenge must
// match byte-for-byte and the origin must equal the configured expected
// origin.
func (s *Service) verifyClientData(clientData *protocol.CollectedClientData, pending *PendingCeremony) error {
	if string(clientData.Challenge) != pending.Challenge {
		return ErrChallengeMismatch
	}
	if clientData.Origin != s.config.RPOrigin {
		return NewError("origin mismatch", ErrVerificationFailed)
	}
	return nil
}

// lockUser serializes ceremony completion per user so the challenge
// consume/clear pair and the counter compare-and-update are atomic with the
// reads that guard them.
func (s *Service) lockUser(id string) func() {
	value, _ := s.userLocks.LoadOrStore(id, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// logFailure records the specific failed check internally. The transport
// layer only ever reports a generic verification failure to the client.
func (s *Service) logFailure(kind CeremonyKind, userID, ceremonyID string, err error) {
	s.logger.Warn("ceremony verification failed",
		"ceremony", string(kind),
		"user_id", userID,
		"ceremony_id", ceremonyID,
		"error", err)
	recordVerificationFailure(kind, err)
}
