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

// Package encoding provides wire encoding utilities for binary WebAuthn
// identifiers.
//
// Credential IDs, user handles, and public keys are binary values that must
// cross the wire as unpadded base64url (RFC 4648 section 5) strings. The
// helpers here guarantee a lossless round-trip in both directions.
package encoding

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidBase64URL is returned when decoding fails or the input carries
// padding characters.
var ErrInvalidBase64URL = errors.New("invalid base64url encoding")

// EncodeBase64URL encodes binary data as an unpadded base64url string.
func EncodeBase64URL(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeBase64URL decodes an unpadded base64url string.
//
// Padded input is rejected rather than silently accepted so that encoded
// identifiers compare byte-for-byte: two encodings of the same credential ID
// must always be the identical string.
func DecodeBase64URL(s string) ([]byte, error) {
	if strings.ContainsRune(s, '=') {
		return nil, fmt.Errorf("%w: padding not allowed", ErrInvalidBase64URL)
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBase64URL, err)
	}
	return data, nil
}
