package export

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// DefaultMinDocumentBytes is the smallest report accepted. Anything shorter
// is a placeholder or a truncated upload; a real PDF header alone is longer.
const DefaultMinDocumentBytes = 64

// ErrInvalidDocument is the only error that aborts an export.
var ErrInvalidDocument = errors.New("invalid document")

// DecodeDocument decodes a base64 report as sent by the frontend, with the
// default size floor.
func DecodeDocument(payload string) ([]byte, error) {
	return decodeDocument(payload, DefaultMinDocumentBytes)
}

// decodeDocument accepts standard or URL-safe base64, with or without
// padding, optionally behind a data: URL prefix and wrapped over lines.
func decodeDocument(payload string, minBytes int) ([]byte, error) {
	s := strings.TrimSpace(payload)
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ",")
		if i < 0 {
			return nil, fmt.Errorf("%w: malformed data url", ErrInvalidDocument)
		}
		s = s[i+1:]
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimRight(s, "=")
	if s == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidDocument)
	}

	doc, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		var urlErr error
		if doc, urlErr = base64.RawURLEncoding.DecodeString(s); urlErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
	}
	if err := checkDocument(doc, minBytes); err != nil {
		return nil, err
	}
	return doc, nil
}

func checkDocument(doc []byte, minBytes int) error {
	if len(doc) < minBytes {
		return fmt.Errorf("%w: %d bytes, need at least %d", ErrInvalidDocument, len(doc), minBytes)
	}
	return nil
}
