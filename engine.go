package bentoauth

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ProjectSCARS/bentoauth/internal/rate"
	"github.com/ProjectSCARS/bentoauth/password"
	"github.com/ProjectSCARS/bentoauth/permission"
	"github.com/ProjectSCARS/bentoauth/token"
)

// Engine is the authentication core. It verifies credentials, issues and
// validates token pairs, enforces the MFA gate, tracks login anomalies,
// and manages the server-side session registry. Construct one with
// [New] and its builder; the zero value is not usable.
type Engine struct {
	config       Config
	registry     *permission.Registry
	roleManager  *permission.RoleManager
	store        Store
	sessions     SessionStore
	rateLimiter  *rate.Limiter
	resetStore   *passwordResetStore
	audit        *auditDispatcher
	metrics      *Metrics
	passwordHash *password.Argon2
	decoyHash    string
	totp         *totpManager
	tokens       *token.Manager
	notifier     Notifier
	logger       *zap.Logger
	now          func() time.Time
}

// Close flushes the audit dispatcher. The engine must not be used after
// Close returns.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were dropped because the
// dispatch buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the current counter values.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Metrics exposes the counter set for exporters.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Validate verifies an access token and resolves the [Principal] behind
// it. ModeInherit resolves to the engine's configured default mode.
func (e *Engine) Validate(ctx context.Context, tokenStr string, routeMode RouteMode) (*Principal, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()
	}

	claims, err := e.tokens.Parse(tokenStr)
	if err != nil {
		e.metricInc(MetricValidateFailure)
		if errors.Is(err, token.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}

	mode, err := e.resolveRouteMode(routeMode)
	if err != nil {
		e.metricInc(MetricValidateFailure)
		return nil, err
	}

	principal := &Principal{
		IdentityID: claims.UID,
		SessionID:  claims.SID,
		RoleLevel:  permission.RoleLevel(claims.Role),
		SchoolID:   claims.School,
	}

	if mode == ModeJWTOnly {
		e.metricInc(MetricValidateSuccess)
		return principal, nil
	}

	// Hybrid and strict both require the identity to still be active.
	identity, err := e.store.GetByID(ctx, claims.UID)
	if err != nil {
		e.metricInc(MetricValidateFailure)
		if errors.Is(err, ErrIdentityNotFound) {
			return nil, ErrTokenMalformed
		}
		return nil, ErrStoreUnavailable
	}
	if identity.Deactivated {
		e.metricInc(MetricValidateFailure)
		return nil, ErrAccountDeactivated
	}

	if mode == ModeStrict {
		sess, err := e.sessions.Get(ctx, claims.SID)
		if err != nil {
			e.metricInc(MetricValidateFailure)
			return nil, e.mapSessionError(err)
		}
		if sess.Revoked() {
			e.metricInc(MetricValidateFailure)
			return nil, ErrTokenRevoked
		}
		if sess.Expired(e.now()) {
			e.metricInc(MetricValidateFailure)
			return nil, ErrTokenExpired
		}
	}

	e.metricInc(MetricValidateSuccess)
	return principal, nil
}

// ValidateAccess validates with the engine-wide default mode.
func (e *Engine) ValidateAccess(ctx context.Context, tokenStr string) (*Principal, error) {
	return e.Validate(ctx, tokenStr, ModeInherit)
}

// HasPermission reports whether the role level carries the named
// permission.
func (e *Engine) HasPermission(role permission.RoleLevel, perm string) bool {
	if e == nil || e.registry == nil || e.roleManager == nil {
		return false
	}
	bit, ok := e.registry.Bit(perm)
	if !ok {
		return false
	}
	mask, ok := e.roleManager.GetMask(role)
	if !ok {
		return false
	}
	return mask.Has(bit)
}

// Permissions lists the permission names granted to the role level.
func (e *Engine) Permissions(role permission.RoleLevel) []string {
	if e == nil || e.registry == nil || e.roleManager == nil {
		return nil
	}
	mask, ok := e.roleManager.GetMask(role)
	if !ok {
		return nil
	}

	var perms []string
	for bit := 0; bit < e.registry.Count(); bit++ {
		if !mask.Has(bit) {
			continue
		}
		if name, ok := e.registry.Name(bit); ok {
			perms = append(perms, name)
		}
	}
	return perms
}

func (e *Engine) resolveRouteMode(routeMode RouteMode) (ValidationMode, error) {
	switch routeMode {
	case ModeInherit:
		switch e.config.ValidationMode {
		case ModeJWTOnly, ModeHybrid, ModeStrict:
			return e.config.ValidationMode, nil
		default:
			return 0, ErrTokenMalformed
		}
	case ModeJWTOnly, ModeHybrid, ModeStrict:
		return routeMode, nil
	default:
		return 0, ErrTokenMalformed
	}
}

func (e *Engine) sessionExpiry(from time.Time) time.Time {
	return from.Add(e.config.Session.RefreshTTL)
}
