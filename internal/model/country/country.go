package country

// Country is one of the labels offered by the country dropdown.
type Country struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Seed provides the default dropdown values.
func Seed() []Country {
	return []Country{
		{ID: "usa", Label: "USA"},
		{ID: "mexico", Label: "Mexico"},
		{ID: "canada", Label: "Canada"},
	}
}
