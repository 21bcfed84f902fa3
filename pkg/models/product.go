package models

// Product is what the public product lookup returns.
type Product struct {
	ID              string `json:"id"`
	Family          string `json:"family"`
	Datasheet       bool   `json:"datasheet"`
	DatasheetFamily string `json:"datasheet_family,omitempty"`
	DatasheetURL    string `json:"datasheet_url,omitempty"`
}
