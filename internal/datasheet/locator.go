package datasheet

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Unclassified is the family bucket for identifiers no catalog knows about.
// Its documents live in <root>/unclassified/.
const Unclassified = "unclassified"

// ErrDatasheetUnavailable marks an identifier whose document could not be
// found or read. It never fails an export on its own.
var ErrDatasheetUnavailable = errors.New("datasheet unavailable")

var extensions = []string{".pdf", ".PDF"}

// Locator finds cached datasheets laid out as <root>/<family>/<ID>.pdf.
type Locator struct {
	Root     string
	families []string
}

// NewLocator returns a locator over root. families is the declared family
// order used by Search after the likely family.
func NewLocator(root string, families []string) *Locator {
	fams := make([]string, len(families))
	copy(fams, families)
	return &Locator{Root: root, families: fams}
}

// Find looks for the document of id inside a single family directory.
// The match is case-insensitive on both the identifier and the extension.
func (l *Locator) Find(family, id string) (string, bool) {
	if !SafeID(id) {
		return "", false
	}

	dir := filepath.Join(l.Root, family)
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return "", false
	}

	for _, name := range []string{id, strings.ToUpper(id), strings.ToLower(id)} {
		for _, ext := range extensions {
			p := filepath.Join(dir, name+ext)
			if st, err := os.Stat(p); err == nil && st.Mode().IsRegular() {
				return p, true
			}
		}
	}

	// slow path: one listing of the family directory, no recursion
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	want := strings.ToLower(id) + ".pdf"
	for _, e := range entries {
		if !e.IsDir() && strings.ToLower(e.Name()) == want {
			return filepath.Join(dir, e.Name()), true
		}
	}
	return "", false
}

// SafeID reports whether id can name a file directly inside a family
// directory: not blank, no path separators or NUL, not "." or "..".
func SafeID(id string) bool {
	if strings.TrimSpace(id) == "" {
		return false
	}
	if strings.ContainsAny(id, "/\\\x00") {
		return false
	}
	return id != "." && id != ".." && filepath.Base(id) == id
}

// ProbeOrder lists the families to try for an identifier whose likely family
// is given: likely first, the other declared families next, unclassified last.
// An empty likely family is treated as unclassified.
func (l *Locator) ProbeOrder(likely string) []string {
	if likely == "" {
		likely = Unclassified
	}
	order := make([]string, 0, len(l.families)+2)
	seen := make(map[string]struct{}, len(l.families)+2)
	add := func(f string) {
		if _, ok := seen[f]; ok {
			return
		}
		seen[f] = struct{}{}
		order = append(order, f)
	}

	add(likely)
	for _, f := range l.families {
		add(f)
	}
	add(Unclassified)
	return order
}

// Search walks ProbeOrder(likely) and stops at the first family that has a
// document for id.
func (l *Locator) Search(likely, id string) (family, path string, ok bool) {
	for _, f := range l.ProbeOrder(likely) {
		if p, found := l.Find(f, id); found {
			return f, p, true
		}
	}
	return "", "", false
}
