package engine

import "fmt"

// Tier is a named closeness bucket. Each side of a connection labels
// the other with a tier independently.
type Tier string

const (
	TierCore       Tier = "core"
	TierInner      Tier = "inner"
	TierOuter      Tier = "outer"
	TierNaybor     Tier = "naybor"
	TierParasocial Tier = "parasocial"
	TierRolemodel  Tier = "rolemodel"
	TierAcquainted Tier = "acquainted"
)

// Tiers lists every tier in closeness order.
var Tiers = []Tier{
	TierCore, TierInner, TierOuter, TierNaybor,
	TierParasocial, TierRolemodel, TierAcquainted,
}

var validTiers = func() map[Tier]bool {
	m := make(map[Tier]bool, len(Tiers))
	for _, t := range Tiers {
		m[t] = true
	}
	return m
}()

// ParseTier validates a tier name.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if !validTiers[t] {
		return "", fmt.Errorf("%w: unknown tier %q", ErrValidation, s)
	}
	return t, nil
}

// Caps maps tiers to capacity limits. A negative value means the tier
// is uncapped. Injected at construction so tests can vary caps.
type Caps map[Tier]int

// For returns the cap for a tier; tiers absent from the map are uncapped.
func (c Caps) For(t Tier) int {
	if limit, ok := c[t]; ok {
		return limit
	}
	return -1
}

func capsFromConfig(raw map[string]int) Caps {
	caps := make(Caps, len(raw))
	for name, limit := range raw {
		caps[Tier(name)] = limit
	}
	return caps
}
