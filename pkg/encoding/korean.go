// Package encoding converts the EUC-KR strings found in legacy model files.
package encoding

import (
	"bytes"

	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"
)

// EUCKRToUTF8 decodes EUC-KR bytes. Input that does not decode is returned
// unchanged.
func EUCKRToUTF8(data []byte) string {
	result, _, err := transform.Bytes(korean.EUCKR.NewDecoder(), data)
	if err != nil {
		return string(data)
	}
	return string(result)
}

// UTF8ToEUCKR encodes s as EUC-KR, or returns its bytes unchanged when some
// rune has no EUC-KR form.
func UTF8ToEUCKR(s string) []byte {
	result, _, err := transform.Bytes(korean.EUCKR.NewEncoder(), []byte(s))
	if err != nil {
		return []byte(s)
	}
	return result
}

// FixedString decodes a NUL-padded EUC-KR field.
func FixedString(data []byte) string {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	return EUCKRToUTF8(data)
}

// PutFixedString encodes s as EUC-KR into a NUL-padded field of size bytes,
// truncating it if needed.
func PutFixedString(s string, size int) []byte {
	b := make([]byte, size)
	copy(b, UTF8ToEUCKR(s))
	return b
}
