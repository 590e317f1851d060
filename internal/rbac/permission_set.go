package rbac

import (
	"slices"
	"strings"
)

// PermissionSet is an unordered set of permission codes.
type PermissionSet map[string]struct{}

func NewPermissionSet(codes ...string) PermissionSet {
	set := make(PermissionSet, len(codes))
	for _, code := range codes {
		if code != "" {
			set[code] = struct{}{}
		}
	}
	return set
}

func (s PermissionSet) Has(code string) bool {
	_, ok := s[code]
	return ok
}

// HasAny reports whether the set holds at least one of codes.
func (s PermissionSet) HasAny(codes ...string) bool {
	for _, code := range codes {
		if s.Has(code) {
			return true
		}
	}
	return false
}

func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	union := make(PermissionSet, len(s)+len(other))
	for code := range s {
		union[code] = struct{}{}
	}
	for code := range other {
		union[code] = struct{}{}
	}
	return union
}

func (s PermissionSet) Sorted() []string {
	codes := make([]string, 0, len(s))
	for code := range s {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes
}

func (s PermissionSet) String() string {
	return strings.Join(s.Sorted(), ",")
}
