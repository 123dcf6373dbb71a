package domain

// Category is a host-application spending category offered to the user
// while a transaction is being confirmed.
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

// DefaultCategory is the fallback used when the host application has
// not supplied a category list, so a session can always be confirmed.
func DefaultCategory() Category {
	return Category{
		ID:    "mpesa_default",
		Name:  "MPESA",
		Type:  "both",
		Color: "#4CAF50",
		Icon:  "payments",
	}
}
