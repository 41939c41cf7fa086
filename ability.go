package admin

import (
	"context"

	"github.com/goliatone/go-errors"
)

type abilityKey struct {
	action  string
	subject string
}

type abilityRule struct {
	conditions []string
}

// Ability is the per-request capability set computed from a user's roles. It
// is immutable once built: recompute it after any role or permission
// mutation. A user with no roles can do nothing.
type Ability struct {
	rules map[abilityKey][]abilityRule
}

// Can reports whether the ability grants action over subject. When the
// matching permission carries conditions, every one of them must appear in
// the supplied condition context.
func (a *Ability) Can(action, subject string, conditionContext ...string) bool {
	if a == nil || len(a.rules) == 0 {
		return false
	}

	rules, ok := a.rules[abilityKey{action: action, subject: subject}]
	if !ok {
		return false
	}

	for _, rule := range rules {
		if conditionsSatisfied(rule.conditions, conditionContext) {
			return true
		}
	}

	return false
}

// RuleCount returns the number of distinct action/subject grants.
func (a *Ability) RuleCount() int {
	if a == nil {
		return 0
	}
	return len(a.rules)
}

func conditionsSatisfied(required, available []string) bool {
	for _, cond := range required {
		found := false
		for _, have := range available {
			if cond == have {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// AbilityEngine derives capability sets from role assignments.
type AbilityEngine struct {
	roles  RoleStore
	logger Logger
}

// NewAbilityEngine creates an AbilityEngine backed by the given role store.
func NewAbilityEngine(roles RoleStore) *AbilityEngine {
	return &AbilityEngine{
		roles:  roles,
		logger: defLogger{},
	}
}

func (e *AbilityEngine) WithLogger(l Logger) *AbilityEngine {
	e.logger = normalizeLogger(l)
	return e
}

// GenerateAbility loads the user's roles fresh from the store and flattens
// their permissions into a queryable capability set. Results must not be
// cached across role mutations.
func (e *AbilityEngine) GenerateAbility(ctx context.Context, user *User) (*Ability, error) {
	if user == nil {
		return &Ability{}, nil
	}

	roles, err := e.roles.FindForUser(ctx, user.ID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load roles for ability computation")
	}

	rules := map[abilityKey][]abilityRule{}
	for _, role := range roles {
		if role == nil {
			continue
		}
		for _, perm := range role.Permissions {
			if perm == nil || perm.Action == "" {
				continue
			}
			key := abilityKey{action: perm.Action, subject: perm.Subject}
			rules[key] = append(rules[key], abilityRule{conditions: perm.Conditions})
		}
	}

	return &Ability{rules: rules}, nil
}
