package prefs

// CategoryOption pairs a display label with a segment-database category tag.
type CategoryOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// CategoryCatalogue lists every category the segment database annotates.
func CategoryCatalogue() []CategoryOption {
	return []CategoryOption{
		{Label: "Sponsor", Value: "sponsor"},
		{Label: "Unpaid/Self Promotion", Value: "selfpromo"},
		{Label: "Exclusive Access", Value: "exclusive_access"},
		{Label: "Interaction Reminder", Value: "interaction"},
		{Label: "Highlight", Value: "poi_highlight"},
		{Label: "Intermission/Intro Animation", Value: "intro"},
		{Label: "Endcards/Credits", Value: "outro"},
		{Label: "Preview/Recap", Value: "preview"},
		{Label: "Filler Tangent", Value: "filler"},
		{Label: "Music: Non-Music Section", Value: "music_offtopic"},
	}
}

var allowedCategories = func() map[string]struct{} {
	set := make(map[string]struct{})
	for _, option := range CategoryCatalogue() {
		set[option.Value] = struct{}{}
	}
	return set
}()

// ValidCategory reports whether value is a known category tag.
func ValidCategory(value string) bool {
	_, ok := allowedCategories[value]
	return ok
}
