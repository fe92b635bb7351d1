package taxonomy

const (
	Fiction    = "Fiction"
	NonFiction = "Non-Fiction"
)

// Categories is the closed master-category vocabulary, in display order.
var Categories = []string{
	Fiction, NonFiction,
	"Science-Fiction", "Fantasy", "Mystery-Thriller", "Horror", "Literature", "History",
	"Biography-Memoir", "Science-Technology", "Computer-Science", "Programming",
	"Artificial-Intelligence", "Business-Economics", "Finance", "Self-Help",
	"Psychology", "Philosophy", "Education", "Arts-Design", "Politics-Society",
	"Health-Medicine", "Cooking-Food", "Travel", "Religion-Spirituality",
}

// superTypes maps a category to Fiction or Non-Fiction. Artificial-Intelligence
// deliberately has no entry, so it never decides the super-type on its own.
var superTypes = map[string]string{
	"Science-Fiction":  Fiction,
	"Fantasy":          Fiction,
	"Mystery-Thriller": Fiction,
	"Horror":           Fiction,
	"Literature":       Fiction,
	Fiction:            Fiction,

	"History":               NonFiction,
	"Biography-Memoir":      NonFiction,
	"Science-Technology":    NonFiction,
	"Computer-Science":      NonFiction,
	"Programming":           NonFiction,
	"Business-Economics":    NonFiction,
	"Finance":               NonFiction,
	"Self-Help":             NonFiction,
	"Psychology":            NonFiction,
	"Philosophy":            NonFiction,
	"Education":             NonFiction,
	"Arts-Design":           NonFiction,
	"Politics-Society":      NonFiction,
	"Health-Medicine":       NonFiction,
	"Cooking-Food":          NonFiction,
	"Travel":                NonFiction,
	"Religion-Spirituality": NonFiction,
	NonFiction:              NonFiction,
}

var normalizedCategories = func() map[string]string {
	out := make(map[string]string, len(Categories))
	for _, category := range Categories {
		out[NormalizeTag(category)] = category
	}
	return out
}()

// SuperType returns the Fiction/Non-Fiction label for a category.
func SuperType(category string) (string, bool) {
	st, ok := superTypes[category]
	return st, ok
}

// CanonicalCategory resolves a label to its vocabulary spelling, tolerating
// case and separator differences. It reports false for labels outside the vocabulary.
func CanonicalCategory(label string) (string, bool) {
	category, ok := normalizedCategories[NormalizeTag(label)]
	return category, ok
}
