// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

package access

// Permission groups define reusable sets of permissions.
// Roles compose these groups rather than inheriting.
// Patterns are matched against "property:<action>" with ':' as separator.

var browsePowers = []string{
	"property:read",
}

var ownerPowers = []string{
	"property:{create,update,submit,delete,list_own}",
}

var moderatorPowers = []string{
	"property:{approve,reject}",
	"property:{archive,unarchive}",
	"property:delete",
	"property:read*",
}

// DefaultRoles returns the default role definitions.
// Roles compose permission groups explicitly (no inheritance).
func DefaultRoles() map[Role][]string {
	return map[Role][]string{
		RoleAnonymous: compose(browsePowers),
		RoleUser:      compose(browsePowers),
		RoleOwner:     compose(browsePowers, ownerPowers),
		RoleAdmin:     compose(browsePowers, moderatorPowers),
	}
}

// compose merges multiple permission slices into one.
func compose(groups ...[]string) []string {
	total := 0
	for _, g := range groups {
		total += len(g)
	}
	result := make([]string, 0, total)
	for _, g := range groups {
		result = append(result, g...)
	}
	return result
}
