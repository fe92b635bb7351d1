package taxonomy

import (
	"regexp"
	"strings"
)

var (
	yearPattern     = regexp.MustCompile(`^\d{4}s?(-.*)?$`)
	centuryPattern  = regexp.MustCompile(`^\d{1,2}(th|st|nd|rd)-century`)
	languagePattern = regexp.MustCompile(`^(js|python|rust|c\+\+|java|ruby|php|sql|css|html)(\d*|script)?(-|$)`)
)

type rule struct {
	category string
	match    func(t string) bool
}

func containsAny(words ...string) func(string) bool {
	return func(t string) bool {
		for _, w := range words {
			if strings.Contains(t, w) {
				return true
			}
		}
		return false
	}
}

// Order matters: "war-fiction" is History, "art-history" is History, and
// "science-fiction" only reaches the fiction rule if nothing above matched.
var classificationRules = []rule{
	{"History", yearPattern.MatchString},
	{"History", centuryPattern.MatchString},
	{"History", containsAny("history", "biography", "memoir")},
	{"History", containsAny("war", "military", "battle")},

	{"Computer-Science", languagePattern.MatchString},
	{"Programming", func(t string) bool { return strings.Contains(t, ".net") || t == "c#" || t == "f#" }},
	{"Programming", containsAny("programming", "software", "coding")},
	{"Computer-Science", containsAny("algorithm", "data-science", "machine-learning")},

	{"Politics-Society", containsAny("politics", "government", "election")},
	{"Religion-Spirituality", containsAny("religion", "spirituality", "bible", "church")},
	{"Religion-Spirituality", containsAny("buddhism", "taoism", "christianity", "islam")},

	{"Arts-Design", containsAny("art", "design", "music", "cinema", "film")},
	{"Arts-Design", containsAny("photography", "architecture")},

	{"Business-Economics", containsAny("business", "management", "leadership")},
	{"Finance", containsAny("finance", "economics", "investing")},

	{"Science-Fiction", func(t string) bool { return strings.HasSuffix(t, "fiction") && strings.Contains(t, "science") }},
	{Fiction, func(t string) bool { return strings.HasSuffix(t, "fiction") }},
	{"Fantasy", containsAny("fantasy")},
	{"Mystery-Thriller", containsAny("thriller", "mystery")},
	{"Horror", containsAny("horror")},
	{"Cooking-Food", containsAny("cooking", "recipe", "cookbook")},
	{"Psychology", containsAny("psychology")},
	{"Education", containsAny("education", "tutorial")},
}

// ClassifyTag maps a raw tag onto a master category. The ordered rules run
// first; a tag no rule claims maps to itself when it names a vocabulary
// category. The rules win even over a category name, so "Non-Fiction" is
// Fiction and "Artificial-Intelligence" is Arts-Design. Tags nothing matches
// are left for model-assisted learning.
func ClassifyTag(tag string) (string, bool) {
	t := NormalizeTag(tag)
	if t == "" {
		return "", false
	}
	for _, r := range classificationRules {
		if r.match(t) {
			return r.category, true
		}
	}
	if category, ok := normalizedCategories[t]; ok {
		return category, true
	}
	return "", false
}
