package dataset

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/gogs/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const sniffSize = 64 * 1024

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Encoding names reported by DetectEncoding
const (
	EncodingUTF8        = "UTF-8"
	EncodingLatin1      = "ISO-8859-1"
	EncodingWindows1252 = "windows-1252"
	EncodingUTF16LE     = "UTF-16LE"
	EncodingUTF16BE     = "UTF-16BE"
)

// DetectEncoding guesses the charset of sample.
// Valid UTF-8 always wins, otherwise chardet decides between the supported
// single byte and UTF-16 encodings, windows-1252 is the fallback.
func DetectEncoding(sample []byte, complete bool) string {
	if bytes.HasPrefix(sample, utf8BOM) {
		return EncodingUTF8
	}
	if validUTF8Prefix(sample, complete) {
		return EncodingUTF8
	}

	res, err := chardet.NewTextDetector().DetectBest(sample)
	if err != nil || res == nil {
		return EncodingWindows1252
	}
	switch strings.ToUpper(res.Charset) {
	case "UTF-16LE":
		return EncodingUTF16LE
	case "UTF-16BE":
		return EncodingUTF16BE
	case "ISO-8859-1":
		return EncodingLatin1
	default:
		return EncodingWindows1252
	}
}

// NewUTF8Reader detects the encoding of r and returns a reader producing UTF-8
func NewUTF8Reader(r io.Reader) (io.Reader, string, error) {
	br := bufio.NewReaderSize(r, sniffSize)
	sample, err := br.Peek(sniffSize)
	complete := err == io.EOF
	if err != nil && !complete && err != bufio.ErrBufferFull {
		return nil, "", err
	}

	name := DetectEncoding(sample, complete)
	if name == EncodingUTF8 {
		if bytes.HasPrefix(sample, utf8BOM) {
			if _, err := br.Discard(len(utf8BOM)); err != nil {
				return nil, "", err
			}
		}
		return br, name, nil
	}
	return transform.NewReader(br, decoderFor(name).NewDecoder()), name, nil
}

func decoderFor(name string) encoding.Encoding {
	switch name {
	case EncodingUTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	case EncodingUTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
	case EncodingLatin1:
		return charmap.ISO8859_1
	default:
		return charmap.Windows1252
	}
}

// validUTF8Prefix checks sample, tolerating a rune cut by the sniff window
func validUTF8Prefix(sample []byte, complete bool) bool {
	if utf8.Valid(sample) {
		return true
	}
	if complete {
		return false
	}
	for cut := 1; cut < utf8.UTFMax && cut < len(sample); cut++ {
		if utf8.Valid(sample[:len(sample)-cut]) {
			return true
		}
	}
	return false
}
