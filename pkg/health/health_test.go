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

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecker_LiveAlwaysHealthy(t *testing.T) {
	checker := NewChecker()
	result := checker.Live(context.Background())
	assert.Equal(t, StatusHealthy, result.Status)
}

func TestChecker_ReadyWithoutChecks(t *testing.T) {
	checker := NewChecker()

	results := checker.Ready(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, StatusHealthy, results[0].Status)
	assert.True(t, checker.IsHealthy(context.Background()))
}

func TestChecker_ReadyWithFailingCheck(t *testing.T) {
	checker := NewChecker()
	checker.RegisterCheck("storage", PingCheck("storage", func(ctx context.Context) error {
		return errors.New("database is locked")
	}))

	results := checker.Ready(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, "storage", results[0].Name)
	assert.Equal(t, StatusUnhealthy, results[0].Status)
	assert.Equal(t, "database is locked", results[0].Error)
	assert.False(t, checker.IsHealthy(context.Background()))
}

func TestChecker_RegisterNilCheckIgnored(t *testing.T) {
	checker := NewChecker()
	checker.RegisterCheck("noop", nil)

	results := checker.Ready(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, "default", results[0].Name)
}

func TestAggregateStatus(t *testing.T) {
	assert.Equal(t, StatusHealthy, AggregateStatus([]CheckResult{
		{Status: StatusHealthy},
		{Status: StatusHealthy},
	}))
	assert.Equal(t, StatusUnhealthy, AggregateStatus([]CheckResult{
		{Status: StatusHealthy},
		{Status: StatusUnhealthy},
	}))
}

func TestLiveHandler(t *testing.T) {
	checker := NewChecker()

	rec := httptest.NewRecorder()
	checker.LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/healthz/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestReadyHandler(t *testing.T) {
	checker := NewChecker()
	healthy := true
	checker.RegisterCheck("storage", PingCheck("storage", func(ctx context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("connection refused")
	}))

	rec := httptest.NewRecorder()
	checker.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/healthz/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	healthy = false
	rec = httptest.NewRecorder()
	checker.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/healthz/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status Status `json:"status"`
		Checks []struct {
			Name  string `json:"name"`
			Error string `json:"error"`
		} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, StatusUnhealthy, body.Status)
	require.Len(t, body.Checks, 1)
	assert.Equal(t, "connection refused", body.Checks[0].Error)
}
