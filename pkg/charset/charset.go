// Package charset maps MySQL character set names onto golang.org/x/text encodings.
package charset

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"
)

// ErrLossy is returned by Decode when the text would not encode back to the same bytes
var ErrLossy = errors.New("text does not round-trip through its charset")

type Kind int

const (
	// Unknown charsets have no registered encoding
	Unknown Kind = iota
	// UTF8 bytes are already valid text
	UTF8
	// Binary columns carry opaque bytes
	Binary
	// Encoded charsets transcode through an x/text encoding
	Encoded
)

var utf8Names = map[string]struct{}{
	"utf8":    {},
	"utf8mb3": {},
	"utf8mb4": {},
	"ascii":   {},
}

var encodings = map[string]encoding.Encoding{
	"latin1":  Latin1,
	"latin2":  charmap.ISO8859_2,
	"latin5":  charmap.ISO8859_9,
	"latin7":  charmap.ISO8859_13,
	"greek":   charmap.ISO8859_7,
	"hebrew":  charmap.ISO8859_8,
	"cp1250":  charmap.Windows1250,
	"cp1251":  charmap.Windows1251,
	"cp1256":  charmap.Windows1256,
	"cp1257":  charmap.Windows1257,
	"cp850":   charmap.CodePage850,
	"cp852":   charmap.CodePage852,
	"cp866":   charmap.CodePage866,
	"koi8r":   charmap.KOI8R,
	"koi8u":   charmap.KOI8U,
	"gbk":     simplifiedchinese.GBK,
	"gb2312":  simplifiedchinese.GBK,
	"gb18030": simplifiedchinese.GB18030,
	"big5":    traditionalchinese.Big5,
	"sjis":    japanese.ShiftJIS,
	"cp932":   japanese.ShiftJIS,
	"ujis":    japanese.EUCJP,
	"eucjpms": japanese.EUCJP,
	"euckr":   korean.EUCKR,
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Classify reports how text stored under name must be handled
func Classify(name string) Kind {
	name = normalize(name)
	if _, ok := utf8Names[name]; ok {
		return UTF8
	}
	if name == "binary" {
		return Binary
	}
	if _, ok := encodings[name]; ok {
		return Encoded
	}
	return Unknown
}

// Decode converts bytes stored under charset name into a UTF-8 string
func Decode(name string, raw []byte) (string, error) {
	switch Classify(name) {
	case UTF8:
		return string(raw), nil
	case Encoded:
		enc := encodings[normalize(name)]
		out, err := enc.NewDecoder().Bytes(raw)
		if err != nil {
			return "", fmt.Errorf("failed to decode %s text: %s", name, err)
		}
		// invalid sequences decode to U+FFFD without an error
		back, err := enc.NewEncoder().Bytes(out)
		if err != nil || !bytes.Equal(back, raw) {
			return "", fmt.Errorf("%w: %s %x", ErrLossy, name, raw)
		}
		return string(out), nil
	default:
		return "", fmt.Errorf("no decoder for charset %q", name)
	}
}

// Encode converts a UTF-8 string back into the bytes stored under charset name
func Encode(name string, text string) ([]byte, error) {
	switch Classify(name) {
	case UTF8:
		return []byte(text), nil
	case Encoded:
		out, err := encodings[normalize(name)].NewEncoder().Bytes([]byte(text))
		if err != nil {
			return nil, fmt.Errorf("failed to encode text as %s: %s", name, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("no encoder for charset %q", name)
	}
}

// Latin1 is MySQL's latin1: cp1252, except that the five bytes cp1252 leaves undefined
// (0x81, 0x8D, 0x8F, 0x90, 0x9D) map to the C1 control of the same value
var Latin1 encoding.Encoding = latin1{}

var latin1Controls = map[byte]struct{}{0x81: {}, 0x8d: {}, 0x8f: {}, 0x90: {}, 0x9d: {}}

type latin1 struct{}

func (latin1) NewDecoder() *encoding.Decoder {
	return &encoding.Decoder{Transformer: latin1Decoder{}}
}

func (latin1) NewEncoder() *encoding.Encoder {
	return &encoding.Encoder{Transformer: latin1Encoder{}}
}

func (latin1) String() string { return "MySQL latin1" }

func latin1Rune(b byte) rune {
	if _, ok := latin1Controls[b]; ok || b < utf8.RuneSelf {
		return rune(b)
	}
	return charmap.Windows1252.DecodeByte(b)
}

func latin1Byte(r rune) (byte, bool) {
	if r < utf8.RuneSelf {
		return byte(r), true
	}
	if r <= 0xff {
		if _, ok := latin1Controls[byte(r)]; ok {
			return byte(r), true
		}
	}
	return charmap.Windows1252.EncodeRune(r)
}

type latin1Decoder struct{ transform.NopResetter }

func (latin1Decoder) Transform(dst, src []byte, _ bool) (nDst, nSrc int, err error) {
	for ; nSrc < len(src); nSrc++ {
		r := latin1Rune(src[nSrc])
		if nDst+utf8.RuneLen(r) > len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		nDst += utf8.EncodeRune(dst[nDst:], r)
	}
	return nDst, nSrc, nil
}

type latin1Encoder struct{ transform.NopResetter }

func (latin1Encoder) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		if nDst >= len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		r, size := utf8.DecodeRune(src[nSrc:])
		if r == utf8.RuneError && size <= 1 {
			if !atEOF && !utf8.FullRune(src[nSrc:]) {
				return nDst, nSrc, transform.ErrShortSrc
			}
			return nDst, nSrc, fmt.Errorf("invalid utf-8 at offset %d", nSrc)
		}
		b, ok := latin1Byte(r)
		if !ok {
			return nDst, nSrc, fmt.Errorf("%U has no latin1 encoding", r)
		}
		dst[nDst] = b
		nDst++
		nSrc += size
	}
	return nDst, nSrc, nil
}
