package planning

import "regexp"

// Mission categories derived from hashtags.
const (
	CategoryAdministrative = "administrative"
	CategoryField          = "field"
	CategoryDesk           = "desk"
	CategoryUnknown        = "unknown"
)

// A tag is '#' followed by ASCII word characters or Arabic-script letters.
var hashtagRx = regexp.MustCompile(`#([0-9A-Za-z_\x{0600}-\x{06FF}]+)`)

// ExtractTags returns tag names without '#', in order of appearance, duplicates kept.
func ExtractTags(text string) []string {
	tags := []string{}
	if text == "" {
		return tags
	}
	for _, m := range hashtagRx.FindAllStringSubmatch(text, -1) {
		tags = append(tags, m[1])
	}
	return tags
}

// Classifier maps hashtags to a single category.
type Classifier struct {
	TagMap   map[string]string
	Priority []string
}

// Classify extracts tags from every text and picks one category. When tags
// map to several categories the first one in Priority wins; if none of them
// is listed there, the first mapped tag decides.
func (c Classifier) Classify(texts ...string) (string, []string) {
	seen := []string{}
	var cats []string
	for _, t := range texts {
		for _, tag := range ExtractTags(t) {
			seen = append(seen, tag)
			if cat, ok := c.TagMap[tag]; ok {
				cats = append(cats, cat)
			}
		}
	}
	if len(cats) == 0 {
		return CategoryUnknown, seen
	}
	for _, p := range c.Priority {
		for _, cat := range cats {
			if cat == p {
				return p, seen
			}
		}
	}
	return cats[0], seen
}
