package manifest

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
)

func TestBuildGolden(t *testing.T) {
	categories := map[string][]string{
		"ApexClass":         {"MyClass", "ns__Helper"},
		"CustomApplication": {"Sales"},
		"CustomObject":      {"Account", "Invoice__c"},
		"CustomTab":         {},
		"Profile":           {"Admin"},
	}

	got := Build(categories, "58.0")

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "retrieve_profile", []byte(got))
}

func TestBuildCategoriesSorted(t *testing.T) {
	got := Build(map[string][]string{
		"Profile":   {"Admin"},
		"ApexClass": {"MyClass"},
	}, "58.0")

	apexIdx := strings.Index(got, "<name>ApexClass</name>")
	profileIdx := strings.Index(got, "<name>Profile</name>")
	assert.Greater(t, apexIdx, 0)
	assert.Greater(t, profileIdx, apexIdx)
}

func TestBuildPreservesMemberOrder(t *testing.T) {
	got := Build(map[string][]string{
		"ApexClass": {"Zeta", "Alpha"},
	}, "58.0")

	zetaIdx := strings.Index(got, "<members>Zeta</members>")
	alphaIdx := strings.Index(got, "<members>Alpha</members>")
	assert.Greater(t, zetaIdx, 0)
	assert.Greater(t, alphaIdx, zetaIdx)
}

func TestBuildVersionTag(t *testing.T) {
	got := Build(map[string][]string{}, "61.0")
	assert.Contains(t, got, "    <version>61.0</version>\n")
	assert.True(t, strings.HasPrefix(got, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.True(t, strings.HasSuffix(got, "</Package>\n"))
}

func TestBuildEmptyCategoryStillEmitsTypesBlock(t *testing.T) {
	got := Build(map[string][]string{"CustomTab": {}}, "58.0")
	assert.Contains(t, got, "    <types>\n        <name>CustomTab</name>\n    </types>\n")
}
