package server

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"lendcore/native/lending"
)

// Role names accepted in the daemon configuration.
const (
	RolePoolAdmin      = "pool_admin"
	RoleListingAdmin   = "listing_admin"
	RoleRiskAdmin      = "risk_admin"
	RoleEmergencyAdmin = "emergency_admin"
)

var roleActions = map[string][]lending.Action{
	RolePoolAdmin:      {lending.ActionListReserve, lending.ActionConfigureRisk, lending.ActionEmergency},
	RoleListingAdmin:   {lending.ActionListReserve},
	RoleRiskAdmin:      {lending.ActionConfigureRisk},
	RoleEmergencyAdmin: {lending.ActionEmergency},
}

// RoleGate is a lending.Authorizer backed by a static address to role table.
type RoleGate struct {
	mu     sync.RWMutex
	grants map[common.Address]map[lending.Action]struct{}
}

var _ lending.Authorizer = (*RoleGate)(nil)

// NewRoleGate builds a gate from hex addresses mapped to role names.
func NewRoleGate(roles map[string][]string) (*RoleGate, error) {
	g := &RoleGate{grants: make(map[common.Address]map[lending.Action]struct{})}
	for rawAddr, names := range roles {
		addr, err := parseAddress(rawAddr)
		if err != nil {
			return nil, fmt.Errorf("role grant: %w", err)
		}
		for _, name := range names {
			if err := g.Grant(addr, strings.TrimSpace(name)); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

// Grant gives addr every action of role.
func (g *RoleGate) Grant(addr common.Address, role string) error {
	actions, ok := roleActions[role]
	if !ok {
		return fmt.Errorf("unknown role %q", role)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	set := g.grants[addr]
	if set == nil {
		set = make(map[lending.Action]struct{})
		g.grants[addr] = set
	}
	for _, a := range actions {
		set[a] = struct{}{}
	}
	return nil
}

// IsAuthorized implements lending.Authorizer. Grants are not scoped per asset.
func (g *RoleGate) IsAuthorized(caller common.Address, action lending.Action, _ common.Address) bool {
	if g == nil {
		return false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.grants[caller][action]
	return ok
}

// Actions lists the actions granted to addr, sorted.
func (g *RoleGate) Actions(addr common.Address) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.grants[addr]))
	for a := range g.grants[addr] {
		out = append(out, string(a))
	}
	sort.Strings(out)
	return out
}
