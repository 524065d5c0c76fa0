package category

// Category is an image catalog category.
type Category string

// Catalog categories.
const (
	Websites     Category = "websites"
	Logos        Category = "logos"
	Graphic      Category = "graphic"
	Packaging    Category = "packaging"
	Branding     Category = "branding"
	Illustration Category = "illustration"
	Photography  Category = "photography"
	// All denotes no category filter.
	All Category = "all"
)

var ordered = []Category{Websites, Logos, Graphic, Packaging, Branding, Illustration, Photography}

// Ordered returns the catalog categories in their fixed order.
// The order drives fan-out, balancing and extension generation.
func Ordered() []Category {
	out := make([]Category, len(ordered))
	copy(out, ordered)
	return out
}

// IsValid checks if c is a catalog category or All.
func (c Category) IsValid() bool {
	if c == All {
		return true
	}
	return c.Index() >= 0
}

// IsAll reports whether c applies no filter.
func (c Category) IsAll() bool { return c == "" || c == All }

// Index returns the position of c in the fixed order, or -1.
func (c Category) Index() int {
	for i, o := range ordered {
		if o == c {
			return i
		}
	}
	return -1
}

// VisualGrounding reports whether extensions for c are literal visual elements
// rather than a fixed-slot style phrase.
func (c Category) VisualGrounding() bool {
	switch c {
	case Websites, Logos, Graphic, Packaging, Branding:
		return true
	default:
		return false
	}
}

func (c Category) String() string { return string(c) }
