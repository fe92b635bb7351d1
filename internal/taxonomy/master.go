package taxonomy

import (
	"sort"
	"strings"
)

// Mapping is the persistent specific-tag to master-category table.
type Mapping map[string]string

// Clone returns an independent copy.
func (m Mapping) Clone() Mapping {
	out := make(Mapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Lookup resolves raw tags against a Mapping: exact key first, then the
// lowercase form, then the lowercase hyphenated form, and finally the
// NormalizeTag form used to decide which tags are already known.
type Lookup struct {
	exact      Mapping
	normalized map[string]string
	canonical  map[string]string
}

// NewLookup indexes mapping for tag resolution. Keys are indexed in sorted
// order so colliding spellings resolve the same way on every run.
func NewLookup(mapping Mapping) *Lookup {
	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	normalized := make(map[string]string, len(keys)*2)
	canonical := make(map[string]string, len(keys))
	for _, k := range keys {
		normalized[kebab(k)] = mapping[k]
		normalized[strings.ToLower(k)] = mapping[k]
		if n := NormalizeTag(k); n != "" {
			if _, taken := canonical[n]; !taken {
				canonical[n] = mapping[k]
			}
		}
	}
	return &Lookup{exact: mapping, normalized: normalized, canonical: canonical}
}

// Category returns the master category for tag.
func (l *Lookup) Category(tag string) (string, bool) {
	if category, ok := l.exact[tag]; ok && category != "" {
		return category, true
	}
	lower := strings.ToLower(tag)
	if category, ok := l.normalized[lower]; ok && category != "" {
		return category, true
	}
	if category, ok := l.normalized[kebab(lower)]; ok && category != "" {
		return category, true
	}
	if category, ok := l.canonical[NormalizeTag(tag)]; ok && category != "" {
		return category, true
	}
	return "", false
}

// Known reports whether tag resolves to any category.
func (l *Lookup) Known(tag string) bool {
	_, ok := l.Category(tag)
	return ok
}

// ComputeMasterTags derives up to three master tags from a comma-joined raw
// tag string: the super-type of the most frequent typed category, followed by
// the two most frequent categories other than Fiction and Non-Fiction.
// Categories with equal counts keep the order in which they first appeared.
func ComputeMasterTags(rawTags string, mapping Mapping) string {
	return NewLookup(mapping).MasterTags(rawTags)
}

// MasterTags is ComputeMasterTags against a prebuilt index.
func (l *Lookup) MasterTags(rawTags string) string {
	tags := SplitTags(rawTags)
	if len(tags) == 0 {
		return ""
	}

	counts := make(map[string]int)
	var order []string
	for _, tag := range tags {
		category, ok := l.Category(tag)
		if !ok {
			continue
		}
		if counts[category] == 0 {
			order = append(order, category)
		}
		counts[category]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	out := make([]string, 0, 3)
	seen := make(map[string]struct{}, 3)
	add := func(tag string) {
		if _, dup := seen[tag]; dup {
			return
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}

	for _, category := range order {
		if st, ok := SuperType(category); ok {
			add(st)
			break
		}
	}
	specific := 0
	for _, category := range order {
		if specific == 2 {
			break
		}
		if category == Fiction || category == NonFiction {
			continue
		}
		add(category)
		specific++
	}
	return JoinTags(out)
}

// PruneRedundant removes raw tags whose compact form equals that of a master
// tag. It reports whether anything was removed.
func PruneRedundant(rawTags, masterTags string) (string, bool) {
	masters := SplitTags(masterTags)
	if len(masters) == 0 {
		return rawTags, false
	}
	compactMasters := make(map[string]struct{}, len(masters))
	for _, m := range masters {
		compactMasters[CompactTag(m)] = struct{}{}
	}

	tags := SplitTags(rawTags)
	kept := make([]string, 0, len(tags))
	for _, tag := range tags {
		if _, redundant := compactMasters[CompactTag(tag)]; redundant {
			continue
		}
		kept = append(kept, tag)
	}
	pruned := JoinTags(kept)
	return pruned, pruned != rawTags
}
