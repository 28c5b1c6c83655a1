package internaldefs

import (
	"strconv"
	"strings"

	"github.com/MrEthical07/stateauth"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   stateauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   stateauth.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the authentication engine.
var CounterDefs = []CounterDef{
	{ID: stateauth.MetricLoginSuccess, Name: "stateauth_login_success_total", Help: "Logins that issued tokens directly."},
	{ID: stateauth.MetricLoginFailure, Name: "stateauth_login_failure_total", Help: "Failed login attempts."},
	{ID: stateauth.MetricLoginPending, Name: "stateauth_login_pending_total", Help: "Logins that stopped at the second-factor step."},
	{ID: stateauth.MetricSecondFactorSuccess, Name: "stateauth_second_factor_success_total", Help: "Completed second-factor verifications."},
	{ID: stateauth.MetricSecondFactorFailure, Name: "stateauth_second_factor_failure_total", Help: "Failed second-factor completions."},
	{ID: stateauth.MetricRefreshSuccess, Name: "stateauth_refresh_success_total", Help: "Successful refresh operations."},
	{ID: stateauth.MetricRefreshFailure, Name: "stateauth_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: stateauth.MetricRefreshConflict, Name: "stateauth_refresh_conflict_total", Help: "Refreshes that lost the session state compare-and-set."},
	{ID: stateauth.MetricSessionCreated, Name: "stateauth_session_created_total", Help: "Created sessions."},
	{ID: stateauth.MetricSessionPromoted, Name: "stateauth_session_promoted_total", Help: "Pending sessions promoted to durable."},
	{ID: stateauth.MetricSessionExpired, Name: "stateauth_session_expired_total", Help: "Pending sessions deleted after their deadline."},
	{ID: stateauth.MetricSecondFactorEnabled, Name: "stateauth_second_factor_enabled_total", Help: "Second-factor enrollments."},
	{ID: stateauth.MetricSecondFactorDisabled, Name: "stateauth_second_factor_disabled_total", Help: "Second-factor removals."},
	{ID: stateauth.MetricFreshnessRejected, Name: "stateauth_freshness_rejected_total", Help: "Requests rejected for a stale second-factor verification."},
	{ID: stateauth.MetricValidateSuccess, Name: "stateauth_validate_success_total", Help: "Accepted access tokens."},
	{ID: stateauth.MetricValidateFailure, Name: "stateauth_validate_failure_total", Help: "Rejected access tokens."},
	{ID: stateauth.MetricReplayRejected, Name: "stateauth_replay_rejected_total", Help: "Second-factor codes rejected as already used."},
	{ID: stateauth.MetricPasswordUpgraded, Name: "stateauth_password_upgraded_total", Help: "Password hashes rewritten with current parameters."},
}

// HistogramDefs is an exported constant or variable used by the authentication engine.
var HistogramDefs = []HistogramDef{
	{ID: stateauth.MetricValidateLatency, Name: "stateauth_validate_latency_seconds", Help: "Access token validation latency."},
}

// BucketCount is the number of histogram buckets including +Inf.
const BucketCount = len(stateauth.HistogramBucketBounds) + 1

// UpperBounds returns the finite bucket bounds in seconds.
func UpperBounds() []float64 {
	out := make([]float64, len(stateauth.HistogramBucketBounds))
	for i, ms := range stateauth.HistogramBucketBounds {
		out[i] = ms / 1000
	}
	return out
}

// BoundSuffixes returns instrument-name-safe labels for every bucket, e.g.
// "0_005" and "inf".
func BoundSuffixes() []string {
	bounds := UpperBounds()
	out := make([]string, 0, BucketCount)
	for _, b := range bounds {
		out = append(out, strings.ReplaceAll(strconv.FormatFloat(b, 'f', -1, 64), ".", "_"))
	}
	return append(out, "inf")
}

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [BucketCount]uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
