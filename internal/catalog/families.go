package catalog

import "strings"

// Family is a product category backed by <data-root>/<Name>.csv.
type Family struct {
	Name string
	// IDColumns hold product identifiers. Most catalogs only have "id"; the
	// accessories mapping also references accessory ids per mounting type.
	IDColumns []string
}

func (f Family) Filename() string { return f.Name + ".csv" }

// mapping columns: blank-like markers mean "no accessory"
func (f Family) isMappingColumn(col string) bool { return col != "id" }

var declared = []Family{
	{Name: "cameras", IDColumns: []string{"id"}},
	{Name: "nvrs", IDColumns: []string{"id"}},
	{Name: "hdds", IDColumns: []string{"id"}},
	{Name: "switches", IDColumns: []string{"id"}},
	{Name: "accessories", IDColumns: []string{"id", "junction_box_id", "wall_mount_id", "ceiling_mount_id"}},
	{Name: "screens", IDColumns: []string{"id"}},
	{Name: "enclosures", IDColumns: []string{"id"}},
	{Name: "signage", IDColumns: []string{"id"}},
}

// Families returns the declared families in their fixed order. The order
// decides which family wins when an identifier appears in several catalogs.
func Families() []Family {
	out := make([]Family, len(declared))
	copy(out, declared)
	return out
}

func Names() []string {
	out := make([]string, 0, len(declared))
	for _, f := range declared {
		out = append(out, f.Name)
	}
	return out
}

func Lookup(name string) (Family, bool) {
	for _, f := range declared {
		if f.Name == name {
			return f, true
		}
	}
	return Family{}, false
}

// NormalizeID trims and upper-cases a product identifier.
func NormalizeID(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// IsBlankLike reports values the catalogs use for "nothing here".
func IsBlankLike(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "false", "0", "none", "null", "—":
		return true
	}
	return false
}
