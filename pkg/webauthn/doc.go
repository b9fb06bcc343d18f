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

// Package webauthn implements the server side of WebAuthn registration and
// authentication ceremonies for a relying party.
//
// The Service is the entry point. Each ceremony is a challenge/response
// exchange: BeginRegistration or BeginAuthentication issues a single-use
// challenge bound to the user, and FinishRegistration or
// FinishAuthentication verifies the authenticator's response against it.
// At most one ceremony per user is in flight at a time; beginning a new
// ceremony invalidates the previous one, and any terminal outcome consumes
// the challenge.
//
// Registration accepts only the "none" attestation format. Authentication
// enforces signature counter advancement for clone detection, exempting
// authenticators that always report zero.
//
// Persistence is pluggable through the UserStore, AuthenticatorStore, and
// ChallengeStore interfaces; in-memory implementations suitable for tests
// and single-node deployments are included.
package webauthn
