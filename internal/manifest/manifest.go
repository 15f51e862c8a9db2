// Package manifest renders package.xml retrieval manifests for the
// Salesforce metadata API.
package manifest

import (
	"sort"
	"strings"
)

const (
	header      = `<?xml version="1.0" encoding="UTF-8"?>`
	packageOpen = `<Package xmlns="http://soap.sforce.com/2006/04/metadata">`
)

// Build renders a retrieval manifest from category to member names plus an
// API version. Categories are emitted in sorted order; the retrieval API
// does not care, but deterministic output keeps golden files stable.
// Member order within a category is preserved as given.
func Build(categories map[string][]string, apiVersion string) string {
	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(header + "\n")
	b.WriteString(packageOpen + "\n")
	for _, name := range names {
		b.WriteString("    <types>\n")
		for _, member := range categories[name] {
			b.WriteString("        <members>" + member + "</members>\n")
		}
		b.WriteString("        <name>" + name + "</name>\n")
		b.WriteString("    </types>\n")
	}
	b.WriteString("    <version>" + apiVersion + "</version>\n")
	b.WriteString("</Package>\n")
	return b.String()
}
