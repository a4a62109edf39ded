package integration

import (
	"context"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testDB *TestDB
	ts     *TestServer
)

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	ctx := context.Background()
	db, err := SetupTestDatabase(ctx)
	if err != nil {
		log.Fatalf("failed to set up test database: %v", err)
	}
	testDB = db
	ts = NewTestServer(db.DB)

	code := m.Run()

	ts.Close()
	if err := testDB.Teardown(ctx); err != nil {
		log.Printf("teardown error: %v", err)
	}
	os.Exit(code)
}

func resetState(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test requires docker")
	}
	require.NoError(t, testDB.CleanupTables(context.Background()))
	ts.Notifier.Sent = nil
}

func TestThrottleFlow_EscalatesToBlock(t *testing.T) {
	resetState(t)

	ip := "198.51.100.10"
	identity := TestIdentity("throttle")

	// Four failures stay under the lowest tier
	for i := 0; i < 4; i++ {
		resp, err := ts.Request(http.MethodPost, "/v1/login/report", map[string]interface{}{
			"ip":       ip,
			"identity": identity,
			"success":  false,
		}, nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	}

	resp, err := ts.Request(http.MethodPost, "/v1/login/precheck", map[string]interface{}{"ip": ip}, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// The fifth failure crosses the threshold
	resp, err = ts.Request(http.MethodPost, "/v1/login/report", map[string]interface{}{
		"ip":       ip,
		"identity": identity,
		"success":  false,
	}, nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = ts.Request(http.MethodPost, "/v1/login/precheck", map[string]interface{}{"ip": ip}, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestThrottleFlow_SeededFailuresCount(t *testing.T) {
	resetState(t)

	ip := "198.51.100.11"
	require.NoError(t, SeedLoginFailures(context.Background(), testDB.Pool, ip, TestIdentity("seeded"), 4, 30*time.Minute))

	// One live failure on top of four seeded ones triggers the block
	resp, err := ts.Request(http.MethodPost, "/v1/login/report", map[string]interface{}{
		"ip":       ip,
		"identity": TestIdentity("seeded"),
		"success":  false,
	}, nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = ts.Request(http.MethodPost, "/v1/login/precheck", map[string]interface{}{"ip": ip}, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestThrottleFlow_TopTierNotifiesOperator(t *testing.T) {
	resetState(t)

	ip := "198.51.100.12"
	for i := 0; i < 20; i++ {
		resp, err := ts.Request(http.MethodPost, "/v1/login/report", map[string]interface{}{
			"ip":       ip,
			"identity": TestIdentity("burst"),
			"success":  false,
		}, nil)
		require.NoError(t, err)
		resp.Body.Close()
	}

	last := ts.Notifier.GetLastNotification()
	require.NotNil(t, last)
	assert.Equal(t, "operator@test.local", last.Recipient)
	assert.Contains(t, last.Body, ip)
}

func TestThrottleFlow_ExpiredSeededBlockAllows(t *testing.T) {
	resetState(t)

	ip := "198.51.100.13"
	expired := time.Now().Add(-1 * time.Minute)
	require.NoError(t, SeedBlockedIP(context.Background(), testDB.Pool, ip, "old incident", false, &expired))

	resp, err := ts.Request(http.MethodPost, "/v1/login/precheck", map[string]interface{}{"ip": ip}, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestFirewallFlow_MaliciousQueryBlocked(t *testing.T) {
	resetState(t)

	resp, err := ts.Request(http.MethodPost, "/v1/login/precheck?q='+OR+1=1--", map[string]interface{}{
		"ip": "198.51.100.14",
	}, ForwardedFor("203.0.113.99"))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "Incident ID"))

	count, err := CountRows(context.Background(), testDB.Pool, "firewall_blocks")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestFirewallFlow_WhitelistedIPBypasses(t *testing.T) {
	resetState(t)

	require.NoError(t, SeedWhitelistEntry(context.Background(), testDB.Pool, "ip", "203.0.113.77"))

	resp, err := ts.Request(http.MethodPost, "/v1/login/precheck?q='+OR+1=1--", map[string]interface{}{
		"ip": "198.51.100.15",
	}, ForwardedFor("203.0.113.77"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestAdminFlow_BlockLifecycle(t *testing.T) {
	resetState(t)

	token, err := ts.AdminToken()
	require.NoError(t, err)

	ip := "198.51.100.16"
	resp, err := ts.RequestWithAuth(http.MethodPost, "/v1/blocks", token, map[string]interface{}{
		"ip":        ip,
		"reason":    "manual escalation",
		"permanent": true,
	})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = ts.Request(http.MethodPost, "/v1/login/precheck", map[string]interface{}{"ip": ip}, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, err = ts.RequestWithAuth(http.MethodDelete, "/v1/blocks/"+ip, token, nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = ts.Request(http.MethodPost, "/v1/login/precheck", map[string]interface{}{"ip": ip}, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestAdminFlow_RequiresToken(t *testing.T) {
	resetState(t)

	resp, err := ts.Request(http.MethodGet, "/v1/blocks", nil, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestProfilerFlow_NewCountryAnomalyRecorded(t *testing.T) {
	resetState(t)

	accountID := "acct-integration-1"
	report := func(ip string) *http.Response {
		resp, err := ts.Request(http.MethodPost, "/v1/login/report", map[string]interface{}{
			"ip":           ip,
			"identity":     "user@example.com",
			"success":      true,
			"account_id":   accountID,
			"account_name": "user@example.com",
			"user_agent":   "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		}, nil)
		require.NoError(t, err)
		return resp
	}

	// First login only seeds the profile
	resp := report("198.51.100.20")
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// The stub resolver answers US for every IP, so a second login from a
	// different IP is a new known IP but not a new country
	resp = report("198.51.100.21")
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	count, err := CountRows(context.Background(), testDB.Pool, "user_profiles")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
