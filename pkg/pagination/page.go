// Package pagination normalizes limit/offset list parameters.
package pagination

const (
	// DefaultLimit is used when a caller does not supply a positive limit
	DefaultLimit = 50
	// MaxLimit caps a single page
	MaxLimit = 500
)

// Page is a limit/offset window over an ordered result set
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Normalize applies defaults: limit 50 when not positive, offset 0 when negative
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Default returns the first page with the default limit
func Default() Page {
	return Page{Limit: DefaultLimit}
}
