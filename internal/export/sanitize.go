package export

import "strings"

const (
	DefaultArchiveName   = "export.zip"
	DefaultMaxNameLength = 180
	unsafeNameChars      = `<>:"/\|?*`
)

// SanitizeArchiveName makes name usable as a download filename: unsafe and
// control characters become "_", surrounding spaces and dots go, the .zip
// suffix is enforced and the result is at most 180 characters.
func SanitizeArchiveName(name string) string {
	return sanitizeArchiveName(name, DefaultMaxNameLength)
}

func sanitizeArchiveName(name string, maxLen int) string {
	if maxLen < len(".zip")+1 {
		maxLen = len(".zip") + 1
	}

	var b strings.Builder
	for _, r := range name {
		if r < 0x20 || r == 0x7f || strings.ContainsRune(unsafeNameChars, r) {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}

	base := strings.TrimRight(strings.TrimSpace(b.String()), " .")
	if strings.HasSuffix(strings.ToLower(base), ".zip") {
		base = base[:len(base)-len(".zip")]
	}
	base = strings.Trim(base, " .")
	if base == "" {
		return DefaultArchiveName
	}

	if r := []rune(base); len(r) > maxLen-len(".zip") {
		base = strings.TrimRight(string(r[:maxLen-len(".zip")]), " .")
		if base == "" {
			return DefaultArchiveName
		}
	}
	return base + ".zip"
}
