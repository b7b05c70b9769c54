package matching

import "towy-backend/models"

// Policy decides whether a provider's service set satisfies a requested
// service type. It is pluggable so the matching rules can change
// without touching the ranking engine.
type Policy func(services []string, requested models.ServiceType) bool

// DefaultPolicy matches when the provider lists the requested tag, one
// of the wildcard tags ("all", "general"), or "towing". The towing rule
// is a deliberate product carve-out: towing providers surface for every
// service type.
func DefaultPolicy(services []string, requested models.ServiceType) bool {
	for _, s := range services {
		switch s {
		case string(requested), models.ServiceTagAll, models.ServiceTagGeneral, string(models.ServiceTowing):
			return true
		}
	}
	return false
}

// StrictPolicy matches only the requested tag and the wildcard tags,
// without the towing carve-out.
func StrictPolicy(services []string, requested models.ServiceType) bool {
	for _, s := range services {
		switch s {
		case string(requested), models.ServiceTagAll, models.ServiceTagGeneral:
			return true
		}
	}
	return false
}

// PolicyByName maps a config value to a policy, defaulting to
// DefaultPolicy.
func PolicyByName(name string) Policy {
	if name == "strict" {
		return StrictPolicy
	}
	return DefaultPolicy
}
