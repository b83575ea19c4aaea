package etl

// encoding.go handles the messy byte-level reality of exported files:
// UTF-8 BOMs from Windows tooling, latin-1/cp1252 legacy exports, and
// the occasional invalid byte inside an otherwise-UTF-8 file.

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeText returns data as valid UTF-8.
//
// Detection order: strip a UTF-8 BOM if present; if the remaining bytes
// are valid UTF-8, use them as-is; otherwise decode as Windows-1252,
// which is a superset of latin-1 and covers the legacy exports seen in
// practice. Decoding cp1252 cannot fail, so the worst case is mojibake
// rather than a lost row.
func decodeText(data []byte) []byte {
	data = bytes.TrimPrefix(data, utf8BOM)

	if utf8.Valid(data) {
		return data
	}

	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err == nil {
		return decoded
	}
	return sanitizeUTF8(data)
}

// sanitizeUTF8 replaces invalid sequences with the replacement
// character. Fallback path only.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('�')
			data = data[1:]
		} else {
			buf.Write(data[:size])
			data = data[size:]
		}
	}

	return buf.Bytes()
}

// detectDelimiter picks the CSV separator by counting candidates in the
// header line. Brazilian exports commonly use ';'.
func detectDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}

	if bytes.Count(line, []byte{';'}) > bytes.Count(line, []byte{','}) {
		return ';'
	}
	return ','
}
