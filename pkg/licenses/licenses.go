// Package licenses validates license declarations against a closed list of
// OSI-approved SPDX identifiers. A library cannot become ready without one.
package licenses

import "strings"

var spdx = []string{
	"0BSD",
	"AFL-3.0",
	"AGPL-3.0",
	"AGPL-3.0-only",
	"AGPL-3.0-or-later",
	"Apache-1.1",
	"Apache-2.0",
	"APSL-2.0",
	"Artistic-2.0",
	"BSD-2-Clause",
	"BSD-3-Clause",
	"BSL-1.0",
	"CC0-1.0",
	"CDDL-1.0",
	"CECILL-2.1",
	"CPL-1.0",
	"ECL-2.0",
	"EPL-1.0",
	"EPL-2.0",
	"EUPL-1.1",
	"EUPL-1.2",
	"GPL-2.0",
	"GPL-2.0-only",
	"GPL-2.0-or-later",
	"GPL-3.0",
	"GPL-3.0-only",
	"GPL-3.0-or-later",
	"ISC",
	"LGPL-2.1",
	"LGPL-2.1-only",
	"LGPL-2.1-or-later",
	"LGPL-3.0",
	"LGPL-3.0-only",
	"LGPL-3.0-or-later",
	"MIT",
	"MPL-1.1",
	"MPL-2.0",
	"MS-PL",
	"MS-RL",
	"NCSA",
	"OFL-1.1",
	"OSL-3.0",
	"PHP-3.0",
	"PostgreSQL",
	"Python-2.0",
	"Unlicense",
	"UPL-1.0",
	"W3C",
	"Zlib",
	"ZPL-2.0",
}

var byLower = func() map[string]string {
	m := make(map[string]string, len(spdx))
	for _, id := range spdx {
		m[strings.ToLower(id)] = id
	}
	return m
}()

// Validate returns the canonical SPDX identifier for name, or "" when the
// license is not on the allowlist. Matching is case-insensitive and tolerates
// surrounding whitespace.
func Validate(name string) string {
	return byLower[strings.ToLower(strings.TrimSpace(name))]
}
