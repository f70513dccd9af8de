package domain

// Product is the read-only catalog view the cart needs.
type Product struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Price  float64  `json:"price"`
	Images []string `json:"images,omitempty"`
}

// PrimaryImage returns the first non-empty image URL.
func (p Product) PrimaryImage() string {
	for _, img := range p.Images {
		if img != "" {
			return img
		}
	}
	return ""
}
