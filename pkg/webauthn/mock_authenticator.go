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
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"math/big"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"

	"github.com/jeremyhahn/go-relyingparty/pkg/encoding"
)

// MockAuthenticator simulates a WebAuthn authenticator for testing. It
// produces attestation and assertion responses that pass the ceremony
// verification pipeline, and exposes enough knobs (sign counter, flags,
// attestation format) to drive the rejection paths too.
type MockAuthenticator struct {
	// AAGUID is the authenticator model identifier (16 bytes).
	AAGUID []byte

	// CredentialID is the credential identifier this authenticator asserts.
	CredentialID []byte

	// SignCount is the signature counter reported on assertions.
	SignCount uint32

	// UserPresent controls the UP flag.
	UserPresent bool

	// UserVerified controls the UV flag.
	UserVerified bool

	// AttestationFormat is the attestation statement format emitted on
	// registration. Default "none"; set to e.g. "packed" to exercise the
	// attestation rejection path.
	AttestationFormat string

	privateKey *ecdsa.PrivateKey
	rpIDHash   []byte
}

// MockAuthenticatorOption configures a MockAuthenticator.
type MockAuthenticatorOption func(*MockAuthenticator)

// WithCredentialID sets a fixed credential ID.
func WithCredentialID(credID []byte) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.CredentialID = credID
	}
}

// WithSignCount sets the initial sign count.
func WithSignCount(count uint32) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.SignCount = count
	}
}

// WithAttestationFormat overrides the attestation statement format.
func WithAttestationFormat(format string) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.AttestationFormat = format
	}
}

// WithUserVerified controls the UV flag.
func WithUserVerified(uv bool) MockAuthenticatorOption {
	return func(m *MockAuthenticator) {
		m.UserVerified = uv
	}
}

// NewMockAuthenticator creates a mock authenticator bound to the given RP ID
// with a fresh P-256 key pair.
func NewMockAuthenticator(rpID string, opts ...MockAuthenticatorOption) (*MockAuthenticator, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	aaguid := make([]byte, 16)
	if _, err := rand.Read(aaguid); err != nil {
		return nil, err
	}

	credID := make([]byte, 32)
	if _, err := rand.Read(credID); err != nil {
		return nil, err
	}

	rpIDHash := sha256.Sum256([]byte(rpID))

	m := &MockAuthenticator{
		AAGUID:            aaguid,
		CredentialID:      credID,
		SignCount:         0,
		UserPresent:       true,
		UserVerified:      true,
		AttestationFormat: "none",
		privateKey:        privateKey,
		rpIDHash:          rpIDHash[:],
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// SetSignCount sets the counter reported on the next assertion, for
// exercising clone detection.
func (m *MockAuthenticator) SetSignCount(count uint32) {
	m.SignCount = count
}

// PublicKeyCOSE returns the credential public key in COSE format.
func (m *MockAuthenticator) PublicKeyCOSE() ([]byte, error) {
	pubKey := m.privateKey.Public().(*ecdsa.PublicKey)

	coseKey := map[int]interface{}{
		1:  2,                          // kty: EC2
		3:  int(webauthncose.AlgES256), // alg: ES256
		-1: 1,                          // crv: P-256
		-2: pubKey.X.Bytes(),
		-3: pubKey.Y.Bytes(),
	}

	return webauthncbor.Marshal(coseKey)
}

// CreateAttestationResponse builds a registration response for the
// base64url challenge issued at ceremony begin.
func (m *MockAuthenticator) CreateAttestationResponse(challenge, origin string) (*protocol.ParsedCredentialCreationData, error) {
	authData, err := m.buildAuthenticatorData(true)
	if err != nil {
		return nil, err
	}

	clientDataJSON := m.buildClientDataJSON(challenge, origin, "webauthn.create")

	attestationObjectBytes, err := webauthncbor.Marshal(map[string]interface{}{
		"authData": authData,
		"fmt":      m.AttestationFormat,
		"attStmt":  map[string]interface{}{},
	})
	if err != nil {
		return nil, err
	}

	pubKeyBytes, err := m.PublicKeyCOSE()
	if err != nil {
		return nil, err
	}

	credentialIDBase64 := encoding.EncodeBase64URL(m.CredentialID)

	return &protocol.ParsedCredentialCreationData{
		ParsedPublicKeyCredential: protocol.ParsedPublicKeyCredential{
			ParsedCredential: protocol.ParsedCredential{
				ID:   credentialIDBase64,
				Type: "public-key",
			},
			RawID:                  m.CredentialID,
			ClientExtensionResults: protocol.AuthenticationExtensionsClientOutputs{},
		},
		Response: protocol.ParsedAttestationResponse{
			CollectedClientData: protocol.CollectedClientData{
				Type:      "webauthn.create",
				Challenge: challenge,
				Origin:    origin,
			},
			AttestationObject: protocol.AttestationObject{
				Format:       m.AttestationFormat,
				AttStatement: map[string]interface{}{},
				RawAuthData:  authData,
				AuthData: protocol.AuthenticatorData{
					RPIDHash: m.rpIDHash,
					Flags:    m.flags(true),
					Counter:  m.SignCount,
					AttData: protocol.AttestedCredentialData{
						AAGUID:              m.AAGUID,
						CredentialID:        m.CredentialID,
						CredentialPublicKey: pubKeyBytes,
					},
				},
			},
			Transports: []protocol.AuthenticatorTransport{protocol.USB},
		},
		Raw: protocol.CredentialCreationResponse{
			PublicKeyCredential: protocol.PublicKeyCredential{
				Credential: protocol.Credential{
					ID:   credentialIDBase64,
					Type: "public-key",
				},
				RawID:                  m.CredentialID,
				ClientExtensionResults: protocol.AuthenticationExtensionsClientOutputs{},
			},
			AttestationResponse: protocol.AuthenticatorAttestationResponse{
				AuthenticatorResponse: protocol.AuthenticatorResponse{
					ClientDataJSON: clientDataJSON,
				},
				AttestationObject: attestationObjectBytes,
				Transports:        []string{"usb"},
			},
		},
	}, nil
}

// CreateAssertionResponse builds an authentication response for the
// base64url challenge issued at ceremony begin. The sign counter is
// incremented first, as a real authenticator would.
func (m *MockAuthenticator) CreateAssertionResponse(challenge, origin string, userHandle []byte) (*protocol.ParsedCredentialAssertionData, error) {
	m.SignCount++
	return m.createAssertion(challenge, origin, userHandle)
}

// CreateAssertionResponseNoIncrement builds an authentication response
// without advancing the counter, simulating a cloned or broken
// authenticator.
func (m *MockAuthenticator) CreateAssertionResponseNoIncrement(challenge, origin string, userHandle []byte) (*protocol.ParsedCredentialAssertionData, error) {
	return m.createAssertion(challenge, origin, userHandle)
}

func (m *MockAuthenticator) createAssertion(challenge, origin string, userHandle []byte) (*protocol.ParsedCredentialAssertionData, error) {
	authData, err := m.buildAuthenticatorData(false)
	if err != nil {
		return nil, err
	}

	clientDataJSON := m.buildClientDataJSON(challenge, origin, "webauthn.get")
	clientDataHash := sha256.Sum256(clientDataJSON)

	// The assertion signs authData || SHA-256(clientDataJSON).
	signedData := append(append([]byte{}, authData...), clientDataHash[:]...)
	signature, err := m.sign(signedData)
	if err != nil {
		return nil, err
	}

	credentialIDBase64 := encoding.EncodeBase64URL(m.CredentialID)

	return &protocol.ParsedCredentialAssertionData{
		ParsedPublicKeyCredential: protocol.ParsedPublicKeyCredential{
			ParsedCredential: protocol.ParsedCredential{
				ID:   credentialIDBase64,
				Type: "public-key",
			},
			RawID:                  m.CredentialID,
			ClientExtensionResults: protocol.AuthenticationExtensionsClientOutputs{},
		},
		Response: protocol.ParsedAssertionResponse{
			CollectedClientData: protocol.CollectedClientData{
				Type:      "webauthn.get",
				Challenge: challenge,
				Origin:    origin,
			},
			AuthenticatorData: protocol.AuthenticatorData{
				RPIDHash: m.rpIDHash,
				Flags:    m.flags(false),
				Counter:  m.SignCount,
			},
			Signature:  signature,
			UserHandle: userHandle,
		},
		Raw: protocol.CredentialAssertionResponse{
			PublicKeyCredential: protocol.PublicKeyCredential{
				Credential: protocol.Credential{
					ID:   credentialIDBase64,
					Type: "public-key",
				},
				RawID:                  m.CredentialID,
				ClientExtensionResults: protocol.AuthenticationExtensionsClientOutputs{},
			},
			AssertionResponse: protocol.AuthenticatorAssertionResponse{
				AuthenticatorResponse: protocol.AuthenticatorResponse{
					ClientDataJSON: clientDataJSON,
				},
				AuthenticatorData: authData,
				Signature:         signature,
				UserHandle:        userHandle,
			},
		},
	}, nil
}

func (m *MockAuthenticator) flags(attestedCredential bool) protocol.AuthenticatorFlags {
	var flags byte
	if m.UserPresent {
		flags |= 0x01 // UP
	}
	if m.UserVerified {
		flags |= 0x04 // UV
	}
	if attestedCredential {
		flags |= 0x40 // AT
	}
	return protocol.AuthenticatorFlags(flags)
}

// buildAuthenticatorData serializes rpIdHash || flags || signCount, plus
// the attested credential data block on registration.
func (m *MockAuthenticator) buildAuthenticatorData(attestedCredential bool) ([]byte, error) {
	var buf bytes.Buffer

	buf.Write(m.rpIDHash)
	buf.WriteByte(byte(m.flags(attestedCredential)))

	signCountBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(signCountBytes, m.SignCount)
	buf.Write(signCountBytes)

	if attestedCredential {
		buf.Write(m.AAGUID)

		credIDLen := make([]byte, 2)
		binary.BigEndian.PutUint16(credIDLen, uint16(len(m.CredentialID)))
		buf.Write(credIDLen)
		buf.Write(m.CredentialID)

		pubKeyBytes, err := m.PublicKeyCOSE()
		if err != nil {
			return nil, err
		}
		buf.Write(pubKeyBytes)
	}

	return buf.Bytes(), nil
}

func (m *MockAuthenticator) buildClientDataJSON(challenge, origin, ceremonyType string) []byte {
	clientData := struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
		Origin    string `json:"origin"`
	}{
		Type:      ceremonyType,
		Challenge: challenge,
		Origin:    origin,
	}

	jsonBytes, _ := json.Marshal(clientData)
	return jsonBytes
}

// sign produces an ASN.1 DER encoded ECDSA signature over SHA-256(data).
func (m *MockAuthenticator) sign(data []byte) ([]byte, error) {
	hash := sha256.Sum256(data)
	r, s, err := ecdsa.Sign(rand.Reader, m.privateKey, hash[:])
	if err != nil {
		return nil, err
	}
	return marshalDERSignature(r, s)
}

func marshalDERSignature(r, s *big.Int) ([]byte, error) {
	rBytes := r.Bytes()
	sBytes := s.Bytes()

	// DER INTEGERs are signed; prepend a zero byte when the high bit is set.
	if len(rBytes) > 0 && rBytes[0] >= 0x80 {
		rBytes = append([]byte{0x00}, rBytes...)
	}
	if len(sBytes) > 0 && sBytes[0] >= 0x80 {
		sBytes = append([]byte{0x00}, sBytes...)
	}

	seqLen := 2 + len(rBytes) + 2 + len(sBytes)

	sig := make([]byte, 0, 2+seqLen)
	sig = append(sig, 0x30, byte(seqLen))
	sig = append(sig, 0x02, byte(len(rBytes)))
	sig = append(sig, rBytes...)
	sig = append(sig, 0x02, byte(len(sBytes)))
	sig = append(sig, sBytes...)

	return sig, nil
}
