package analytics

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Report views exposed over HTTP. Every view renders the full report; they
// differ only in the time policy used for bucketing.
const (
	ViewSummary  = "summary"
	ViewDetailed = "detailed"
	ViewOverview = "overview"
	ViewTrends   = "trends"
	ViewUser     = "user"
)

// ErrUnknownView is returned for views that are not registered.
var ErrUnknownView = errors.New("unknown analytics view")

// ViewRegistry maps named views to their time policy.
type ViewRegistry struct {
	policies map[string]TimePolicy
}

// DefaultViewPolicies keeps the summary on the reporting zone and every other view on UTC.
func DefaultViewPolicies() map[string]string {
	return map[string]string{
		ViewSummary:  PolicyLocal,
		ViewDetailed: PolicyUTC,
		ViewOverview: PolicyUTC,
		ViewTrends:   PolicyUTC,
		ViewUser:     PolicyUTC,
	}
}

// NewViewRegistry resolves policy names ("local" or "utc") against the local
// reporting policy. Overrides replace defaults per view.
func NewViewRegistry(local TimePolicy, overrides map[string]string) (*ViewRegistry, error) {
	names := DefaultViewPolicies()
	for view, policy := range overrides {
		names[strings.ToLower(strings.TrimSpace(view))] = policy
	}

	reg := &ViewRegistry{policies: make(map[string]TimePolicy, len(names))}
	for view, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case PolicyLocal:
			p := local
			p.Name = PolicyLocal
			reg.policies[view] = p
		case PolicyUTC:
			reg.policies[view] = UTCPolicy()
		default:
			return nil, fmt.Errorf("view %q: unknown time policy %q", view, name)
		}
	}
	return reg, nil
}

// Policy returns the time policy for a view.
func (r *ViewRegistry) Policy(view string) (TimePolicy, error) {
	p, ok := r.policies[view]
	if !ok {
		return TimePolicy{}, fmt.Errorf("%w: %s", ErrUnknownView, view)
	}
	return p, nil
}

// Views lists the registered views in sorted order.
func (r *ViewRegistry) Views() []string {
	out := make([]string, 0, len(r.policies))
	for v := range r.policies {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// ParseViewPolicies reads "summary=local,detailed=utc" style settings.
func ParseViewPolicies(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		view, policy, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(view) == "" || strings.TrimSpace(policy) == "" {
			return nil, fmt.Errorf("invalid view policy %q", part)
		}
		out[strings.TrimSpace(view)] = strings.TrimSpace(policy)
	}
	return out, nil
}
