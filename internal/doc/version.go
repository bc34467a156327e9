package doc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// versionDomain separates document versions from any other hash computed
// over the same bytes.
const versionDomain = "inkwell/document/v1"

// Version returns the content hash of a document: SHA-256 over the domain,
// a NUL separator and the canonical encoding. Two documents have the same
// version exactly when their canonical encodings match.
func Version(obj Object) (string, error) {
	data, err := Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("document version: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(versionDomain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}
