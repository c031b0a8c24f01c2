package quota

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kosthub/wifi-portal/internal/cache"
	"github.com/kosthub/wifi-portal/internal/models"
	"github.com/kosthub/wifi-portal/internal/storage"
)

// Denial reasons reported to callers and event logs.
const (
	ReasonHardCap = "hard_cap"
)

// ErrPolicyNotFound means no policy matched the user's roles and no
// default policy exists. Evaluation fails closed on it.
var ErrPolicyNotFound = errors.New("no applicable policy")

// WindowUsage is the usage of one quota window at evaluation time.
type WindowUsage struct {
	LimitBytes int64 `json:"limit_bytes"`
	UsedBytes  int64 `json:"used_bytes"`
}

// Result is the outcome of one quota evaluation. Windows is always fully
// populated for every window the policy defines, including on denial, so
// callers can render a complete usage breakdown.
type Result struct {
	Allowed    bool                   `json:"allowed"`
	Reason     string                 `json:"reason,omitempty"`
	PolicyRole string                 `json:"policy_role"`
	HardCap    *WindowUsage           `json:"hard_cap,omitempty"`
	Windows    map[string]WindowUsage `json:"windows"`
}

// Evaluator decides whether a user may keep consuming bandwidth.
type Evaluator struct {
	store    storage.Store
	cache    *cache.Cache
	cacheTTL time.Duration
	location *time.Location

	// now is swappable for tests.
	now func() time.Time
}

// NewEvaluator creates a quota evaluator. Windows are computed in loc.
func NewEvaluator(store storage.Store, c *cache.Cache, cacheTTL time.Duration, loc *time.Location) *Evaluator {
	if loc == nil {
		loc = time.UTC
	}
	return &Evaluator{
		store:    store,
		cache:    c,
		cacheTTL: cacheTTL,
		location: loc,
		now:      time.Now,
	}
}

// Evaluate resolves the user's policy and checks every limit it defines.
// The hard cap is checked first, then windows in name order, so denial
// reasons are deterministic. A user with no resolvable policy is denied.
func (e *Evaluator) Evaluate(ctx context.Context, userID uuid.UUID) (*Result, error) {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	policy, err := e.resolvePolicy(ctx, user)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Allowed:    true,
		PolicyRole: policy.Role,
		Windows:    make(map[string]WindowUsage),
	}

	now := e.now().In(e.location)

	if policy.Quota.HardCapBytes > 0 {
		used, err := e.store.SumUserUsage(ctx, userID, time.Time{})
		if err != nil {
			return nil, fmt.Errorf("sum lifetime usage: %w", err)
		}
		result.HardCap = &WindowUsage{LimitBytes: policy.Quota.HardCapBytes, UsedBytes: used}
		if used >= policy.Quota.HardCapBytes {
			result.Allowed = false
			result.Reason = ReasonHardCap
		}
	}

	names := make([]string, 0, len(policy.Quota.Windows))
	for name := range policy.Quota.Windows {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		limit := policy.Quota.Windows[name]
		used, err := e.store.SumUserUsage(ctx, userID, windowStart(name, now))
		if err != nil {
			return nil, fmt.Errorf("sum %s usage: %w", name, err)
		}
		result.Windows[name] = WindowUsage{LimitBytes: limit.LimitBytes, UsedBytes: used}
		if used >= limit.LimitBytes && result.Allowed {
			result.Allowed = false
			result.Reason = name
		}
	}

	return result, nil
}

// resolvePolicy finds the highest-priority policy matching the user's
// roles, falling back to the default policy. Resolutions are cached per
// user with a short TTL; policy writes invalidate the whole namespace.
func (e *Evaluator) resolvePolicy(ctx context.Context, user *models.User) (*models.WifiPolicy, error) {
	key := cache.PolicyKey(user.ID)

	var cached models.WifiPolicy
	if err := e.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		log.Warn().Err(err).Str("user_id", user.ID.String()).Msg("Policy cache read failed")
	}

	roles := append([]string{}, user.Roles...)
	policy, err := e.store.ResolvePolicyForRoles(ctx, roles)
	if errors.Is(err, storage.ErrNotFound) {
		policy, err = e.store.ResolvePolicyForRoles(ctx, []string{models.DefaultPolicyRole})
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrPolicyNotFound
		}
	}
	if err != nil {
		return nil, fmt.Errorf("resolve policy: %w", err)
	}

	if err := e.cache.Set(ctx, key, policy, e.cacheTTL); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID.String()).Msg("Policy cache write failed")
	}

	return policy, nil
}
