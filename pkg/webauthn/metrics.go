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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "relyingparty"

var (
	ceremoniesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ceremonies_total",
			Help:      "Total ceremony completions by ceremony kind and outcome.",
		},
		[]string{"ceremony", "status"},
	)

	verificationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "verification_failures_total",
			Help:      "Total ceremony verification failures by kind and reason.",
		},
		[]string{"ceremony", "reason"},
	)

	pendingChallengesSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "expired_challenges_swept_total",
			Help:      "Total expired pending challenges removed by the sweeper.",
		},
	)
)

// recordCeremonySuccess counts a completed ceremony.
func recordCeremonySuccess(kind CeremonyKind) {
	ceremoniesTotal.WithLabelValues(string(kind), "success").Inc()
}

// recordVerificationFailure counts a failed ceremony and the specific
// rejection reason. The reason label stays server-side; clients only ever
// see a generic failure.
func recordVerificationFailure(kind CeremonyKind, err error) {
	ceremoniesTotal.WithLabelValues(string(kind), "failure").Inc()
	verificationFailuresTotal.WithLabelValues(string(kind), failureReason(err)).Inc()
}

// recordSweep counts expired challenges removed by the sweeper.
func recordSweep(removed int) {
	pendingChallengesSwept.Add(float64(removed))
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrChallengeExpired):
		return "challenge_expired"
	case errors.Is(err, ErrChallengeMismatch):
		return "challenge_mismatch"
	case errors.Is(err, ErrNoPendingChallenge):
		return "no_pending_challenge"
	case errors.Is(err, ErrAttestationRejected):
		return "attestation_rejected"
	case errors.Is(err, ErrCredentialNotFound):
		return "credential_not_found"
	case errors.Is(err, ErrCounterRegression):
		return "counter_regression"
	case errors.Is(err, ErrStorage):
		return "storage"
	default:
		return "verification_failed"
	}
}
