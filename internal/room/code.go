package room

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// CodeCharset drops glyphs that are easy to confuse (I, O, 0, 1).
const CodeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const CodeLength = 4

var ErrInvalidCode = errors.New("room code must be 4 characters")
var ErrNameRequired = errors.New("enter your name first")

func GenerateCode() (string, error) {
	code := make([]byte, CodeLength)
	for i := 0; i < CodeLength; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(CodeCharset))))
		if err != nil {
			return "", err
		}
		code[i] = CodeCharset[num.Int64()]
	}
	return string(code), nil
}

// NormalizeCode trims and upper-cases user input and checks it against the alphabet.
func NormalizeCode(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) != CodeLength {
		return "", ErrInvalidCode
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(CodeCharset, code[i]) < 0 {
			return "", ErrInvalidCode
		}
	}
	return code, nil
}

const maxNameRunes = 32

// NormalizeName trims and NFC-normalizes a display name.
func NormalizeName(raw string) (string, error) {
	name := norm.NFC.String(strings.TrimSpace(raw))
	if name == "" {
		return "", ErrNameRequired
	}
	if utf8.RuneCountInString(name) > maxNameRunes {
		name = string([]rune(name)[:maxNameRunes])
	}
	return name, nil
}
