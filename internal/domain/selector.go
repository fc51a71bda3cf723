package domain

// SelectorRecord describes one HTML element by the selectors that address it.
type SelectorRecord struct {
	Tag       string   `json:"tag"`
	Selectors []string `json:"selectors"`
	ID        string   `json:"id,omitempty"`
	Name      string   `json:"name,omitempty"`
}
