package internaldefs

import (
	"github.com/ProjectSCARS/bentoauth"
)

// CounterDef names one engine counter for exposition.
type CounterDef struct {
	ID   bentoauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exposition.
type HistogramDef struct {
	ID   bentoauth.MetricID
	Name string
	Help string
}

// CounterDefs is the full exported counter set, in a stable order.
var CounterDefs = []CounterDef{
	{ID: bentoauth.MetricLoginSuccess, Name: "bentoauth_login_success_total", Help: "Successful login attempts."},
	{ID: bentoauth.MetricLoginFailure, Name: "bentoauth_login_failure_total", Help: "Failed login attempts."},
	{ID: bentoauth.MetricLoginRateLimited, Name: "bentoauth_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: bentoauth.MetricLoginDeactivated, Name: "bentoauth_login_deactivated_total", Help: "Login attempts against deactivated accounts."},
	{ID: bentoauth.MetricRefreshSuccess, Name: "bentoauth_refresh_success_total", Help: "Successful refresh operations."},
	{ID: bentoauth.MetricRefreshFailure, Name: "bentoauth_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: bentoauth.MetricRefreshReuseDetected, Name: "bentoauth_refresh_reuse_detected_total", Help: "Detected refresh token reuses."},
	{ID: bentoauth.MetricRefreshRateLimited, Name: "bentoauth_refresh_rate_limited_total", Help: "Rate-limited refresh attempts."},
	{ID: bentoauth.MetricMFARequired, Name: "bentoauth_mfa_required_total", Help: "Login flows requiring an MFA step-up."},
	{ID: bentoauth.MetricMFASuccess, Name: "bentoauth_mfa_success_total", Help: "Successful MFA verifications."},
	{ID: bentoauth.MetricMFAFailure, Name: "bentoauth_mfa_failure_total", Help: "Failed MFA verifications."},
	{ID: bentoauth.MetricMFAReplayAttempt, Name: "bentoauth_mfa_replay_attempt_total", Help: "Detected MFA code replay attempts."},
	{ID: bentoauth.MetricMFARateLimited, Name: "bentoauth_mfa_rate_limited_total", Help: "Rate-limited MFA verifications."},
	{ID: bentoauth.MetricMFAEnrollmentStarted, Name: "bentoauth_mfa_enrollment_started_total", Help: "MFA enrollments begun."},
	{ID: bentoauth.MetricMFAEnabled, Name: "bentoauth_mfa_enabled_total", Help: "MFA enrollments confirmed."},
	{ID: bentoauth.MetricMFADisabled, Name: "bentoauth_mfa_disabled_total", Help: "MFA disable operations."},
	{ID: bentoauth.MetricAnomalyThresholdCrossed, Name: "bentoauth_anomaly_threshold_crossed_total", Help: "Accounts crossing the failed-login threshold."},
	{ID: bentoauth.MetricAnomalyNotificationSent, Name: "bentoauth_anomaly_notification_sent_total", Help: "Anomaly notifications delivered."},
	{ID: bentoauth.MetricAnomalyNotificationFailed, Name: "bentoauth_anomaly_notification_failed_total", Help: "Anomaly notification delivery failures."},
	{ID: bentoauth.MetricSessionCreated, Name: "bentoauth_session_created_total", Help: "Created sessions."},
	{ID: bentoauth.MetricSessionRevoked, Name: "bentoauth_session_revoked_total", Help: "Revoked sessions."},
	{ID: bentoauth.MetricSessionLimitDenied, Name: "bentoauth_session_limit_denied_total", Help: "Logins denied by the active-session cap."},
	{ID: bentoauth.MetricLogout, Name: "bentoauth_logout_total", Help: "Single-session logout operations."},
	{ID: bentoauth.MetricLogoutAll, Name: "bentoauth_logout_all_total", Help: "Logout-all operations."},
	{ID: bentoauth.MetricAccountCreated, Name: "bentoauth_account_created_total", Help: "Successful account creations."},
	{ID: bentoauth.MetricAccountCreationRejected, Name: "bentoauth_account_creation_rejected_total", Help: "Rejected account creations."},
	{ID: bentoauth.MetricAccountDeactivated, Name: "bentoauth_account_deactivated_total", Help: "Account deactivations."},
	{ID: bentoauth.MetricAccountReactivated, Name: "bentoauth_account_reactivated_total", Help: "Account reactivations."},
	{ID: bentoauth.MetricPasswordChangeSuccess, Name: "bentoauth_password_change_success_total", Help: "Successful password changes."},
	{ID: bentoauth.MetricPasswordChangeInvalidOld, Name: "bentoauth_password_change_invalid_old_total", Help: "Password changes with an invalid current password."},
	{ID: bentoauth.MetricPasswordChangeReuseRejected, Name: "bentoauth_password_change_reuse_rejected_total", Help: "Password changes rejected for reuse."},
	{ID: bentoauth.MetricPasswordRehashed, Name: "bentoauth_password_rehashed_total", Help: "Transparent password hash upgrades on login."},
	{ID: bentoauth.MetricPasswordResetRequested, Name: "bentoauth_password_reset_requested_total", Help: "Password reset requests."},
	{ID: bentoauth.MetricPasswordResetConfirmed, Name: "bentoauth_password_reset_confirmed_total", Help: "Successful password reset confirmations."},
	{ID: bentoauth.MetricPasswordResetRejected, Name: "bentoauth_password_reset_rejected_total", Help: "Failed password reset confirmations."},
	{ID: bentoauth.MetricPasswordResetAttemptsExceeded, Name: "bentoauth_password_reset_attempts_exceeded_total", Help: "Reset challenges burned by the attempt cap."},
	{ID: bentoauth.MetricValidateSuccess, Name: "bentoauth_validate_success_total", Help: "Successful token validations."},
	{ID: bentoauth.MetricValidateFailure, Name: "bentoauth_validate_failure_total", Help: "Failed token validations."},
}

// HistogramDefs is the full exported histogram set.
var HistogramDefs = []HistogramDef{
	{ID: bentoauth.MetricValidateLatency, Name: "bentoauth_validate_latency_seconds", Help: "Validate latency histogram."},
}

// HistogramBounds are the upper bounds, in seconds, of the engine's fixed
// latency buckets. The last bucket is open.
var HistogramBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix gives OTel-safe instrument name suffixes for each
// bucket, including the open one.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form
// Prometheus histograms expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
