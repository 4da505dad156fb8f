package domain

import "regexp"

// Unit-name suffix patterns for administrative offices. 2-6 characters is
// enough for meaningful names; longer matches are usually sentence
// fragments. 中心 names run longer, so that pattern allows up to 8.
var unitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[^\s,，。、]{2,6}組`),
	regexp.MustCompile(`[^\s,，。、]{2,6}處`),
	regexp.MustCompile(`[^\s,，。、]{2,8}中心`),
	regexp.MustCompile(`[^\s,，。、]{2,6}部`),
	regexp.MustCompile(`[^\s,，。、]{2,6}室`),
	regexp.MustCompile(`[^\s,，。、]{2,6}館`),
}

var unitStopwords = map[string]struct{}{
	"本組": {}, "該組": {}, "各組": {}, "分組": {}, "小組": {},
	"本部": {}, "該部": {}, "本處": {}, "該處": {}, "本中心": {},
	"辦公室": {}, "會議室": {},
}

var unitVerbRunes = []rune{'由', '為', '至', '在', '向', '到'}

// ExtractUnitNames pulls candidate administrative unit names out of free
// text. This is the fallback path for passages whose unit metadata is
// absent; trusted metadata always wins over pattern extraction.
func ExtractUnitNames(text string) []string {
	seen := make(map[string]struct{})
	var units []string

	for _, pattern := range unitPatterns {
		for _, match := range pattern.FindAllString(text, -1) {
			if !plausibleUnitName(match) {
				continue
			}
			if _, ok := seen[match]; ok {
				continue
			}
			seen[match] = struct{}{}
			units = append(units, match)
		}
	}
	return units
}

func plausibleUnitName(name string) bool {
	if name == "" {
		return false
	}
	runes := []rune(name)
	// Leading digits are room numbers, not unit names.
	if runes[0] >= '0' && runes[0] <= '9' {
		return false
	}
	if _, ok := unitStopwords[name]; ok {
		return false
	}
	// A verb inside the match means we grabbed a sentence fragment.
	for _, r := range runes {
		for _, v := range unitVerbRunes {
			if r == v {
				return false
			}
		}
	}
	return true
}
