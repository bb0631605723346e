package router

import (
	"os"
	"regexp"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Industry names recognized by the router. Each maps to one Supabase table.
const (
	IndustryFinance    = "finance"
	IndustryHealthcare = "healthcare"
	IndustryTechnology = "technology"

	// IndustryUnknown is returned when no industry can be determined.
	IndustryUnknown = "unknown"
)

// industryTables maps a detected industry to its company table.
var industryTables = map[string]string{
	IndustryFinance:    "finance_companies",
	IndustryHealthcare: "healthcare_companies",
	IndustryTechnology: "tech_companies",
}

// TableForIndustry returns the Supabase table backing an industry, or ""
// when the industry is not routable.
func TableForIndustry(industry string) string {
	return industryTables[industry]
}

// KeywordSet holds the per-industry detection vocabulary.
type KeywordSet struct {
	Keywords map[string][]string `yaml:"keywords"`
}

// DefaultKeywords returns the built-in detection vocabulary.
func DefaultKeywords() KeywordSet {
	return KeywordSet{
		Keywords: map[string][]string{
			IndustryFinance: {
				"finance", "financial", "bank", "banking", "investment",
				"insurance", "fintech", "capital", "credit", "lending",
				"wealth", "asset", "trading", "payments", "mortgage",
			},
			IndustryHealthcare: {
				"healthcare", "health", "medical", "hospital", "clinic",
				"pharma", "pharmaceutical", "biotech", "telehealth",
				"patient", "wellness", "dental", "diagnostics", "medicine",
			},
			IndustryTechnology: {
				"technology", "tech", "software", "saas", "cloud",
				"startup", "ai", "data", "cybersecurity", "platform",
				"devops", "analytics", "internet", "app", "digital",
			},
		},
	}
}

// LoadKeywords reads a yaml keyword override file and merges it over the
// defaults. Industries present in the file replace the default list wholesale.
func LoadKeywords(path string) (KeywordSet, error) {
	ks := DefaultKeywords()
	if path == "" {
		return ks, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ks, eris.Wrapf(err, "router: read keywords file %s", path)
	}

	var override KeywordSet
	if err := yaml.Unmarshal(data, &override); err != nil {
		return ks, eris.Wrapf(err, "router: parse keywords file %s", path)
	}

	for industry, words := range override.Keywords {
		if _, ok := industryTables[industry]; !ok {
			return ks, eris.Errorf("router: keywords file names unknown industry %q", industry)
		}
		if len(words) > 0 {
			ks.Keywords[industry] = words
		}
	}
	return ks, nil
}

// industryPatterns is the regex fallback used when keyword scoring finds
// nothing. Patterns are checked in a fixed order so results are stable.
var industryPatterns = []struct {
	industry string
	re       *regexp.Regexp
}{
	{IndustryFinance, regexp.MustCompile(`(?i)\b(hedge\s*fund|private\s*equity|venture\s*capital|broker)`)},
	{IndustryHealthcare, regexp.MustCompile(`(?i)\b(life\s*science|med\s*device|care\s*provider|nurs)`)},
	{IndustryTechnology, regexp.MustCompile(`(?i)\b(machine\s*learning|open\s*source|infra|semiconductor)`)},
}
