package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ServiceType identifies the kind of job a booking requests and a mechanic
// can perform.
type ServiceType string

const (
	ServiceSOSTowing           ServiceType = "SOS_TOWING"
	ServiceSOSJumpstart        ServiceType = "SOS_JUMPSTART"
	ServiceFlatTire            ServiceType = "FLAT_TIRE"
	ServiceGeneral             ServiceType = "GENERAL_SERVICE"
	ServiceWashing             ServiceType = "WASHING"
	ServicePeriodicMaintenance ServiceType = "PERIODIC_MAINTENANCE"
	ServiceDentingPainting     ServiceType = "DENTING_PAINTING"
)

var serviceTypes = map[ServiceType]struct{}{
	ServiceSOSTowing:           {},
	ServiceSOSJumpstart:        {},
	ServiceFlatTire:            {},
	ServiceGeneral:             {},
	ServiceWashing:             {},
	ServicePeriodicMaintenance: {},
	ServiceDentingPainting:     {},
}

// ParseServiceType converts s into a ServiceType. Matching is case-insensitive.
func ParseServiceType(s string) (ServiceType, error) {
	st := ServiceType(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := serviceTypes[st]; !ok {
		return "", fmt.Errorf("%w: unknown service type %q", ErrInvalidRequest, s)
	}
	return st, nil
}

// Valid reports whether st is part of the catalogue.
func (st ServiceType) Valid() bool {
	_, ok := serviceTypes[st]
	return ok
}

// IsSOS reports whether the service is a roadside emergency.
func (st ServiceType) IsSOS() bool {
	return strings.HasPrefix(string(st), "SOS_")
}

func (st ServiceType) String() string { return string(st) }

// Capabilities is the set of service types a mechanic can perform.
type Capabilities map[ServiceType]struct{}

// NewCapabilities builds a set from the given service types.
func NewCapabilities(types ...ServiceType) Capabilities {
	c := make(Capabilities, len(types))
	for _, t := range types {
		c[t] = struct{}{}
	}
	return c
}

// Has reports whether st is part of the set. An empty requirement matches.
func (c Capabilities) Has(st ServiceType) bool {
	if st == "" {
		return true
	}
	_, ok := c[st]
	return ok
}

// Equal reports whether both sets contain the same service types.
func (c Capabilities) Equal(o Capabilities) bool {
	if len(c) != len(o) {
		return false
	}
	for k := range c {
		if _, ok := o[k]; !ok {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the set.
func (c Capabilities) Clone() Capabilities {
	out := make(Capabilities, len(c))
	for k := range c {
		out[k] = struct{}{}
	}
	return out
}

// List returns the service types in lexical order.
func (c Capabilities) List() []ServiceType {
	out := make([]ServiceType, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (c Capabilities) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.List())
}

func (c *Capabilities) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	out := make(Capabilities, len(list))
	for _, s := range list {
		st, err := ParseServiceType(s)
		if err != nil {
			return err
		}
		out[st] = struct{}{}
	}
	*c = out
	return nil
}
