package direntry

import (
	"fmt"
	"strings"

	"github.com/mdfat/fat12/errkind"
)

// illegalChars are the characters spec §4.6 rejects from 8.3 names, beyond
// the implicit rejection of anything that doesn't survive uppercasing to
// ASCII.
var illegalChars = map[byte]bool{
	' ': true, '+': true, ',': true, ';': true,
	':': true, '=': true, '[': true, ']': true,
}

// Name is the packed, space-padded, uppercase 8.3 representation of a
// directory entry's filename.
type Name struct {
	Base [8]byte
	Ext  [3]byte
}

// Pack83 splits input on its last '.', uppercases and space-pads the base
// and extension, and rejects anything that doesn't fit the classic 8.3
// shape: more than one dot, a base outside 1-8 characters, an extension
// outside 0-3 characters, or an illegal character.
func Pack83(input string) (Name, error) {
	if input == "" {
		return Name{}, errkind.InvalidName.WithMessage("name is empty")
	}

	base := input
	ext := ""
	if idx := strings.LastIndexByte(input, '.'); idx >= 0 {
		base = input[:idx]
		ext = input[idx+1:]
		if strings.ContainsRune(base, '.') {
			return Name{}, errkind.InvalidName.WithMessage(fmt.Sprintf(
				"more than one dot in name %q", input))
		}
	}

	if len(base) < 1 || len(base) > 8 {
		return Name{}, errkind.InvalidName.WithMessage(fmt.Sprintf(
			"base name %q must be 1-8 characters", base))
	}
	if len(ext) > 3 {
		return Name{}, errkind.InvalidName.WithMessage(fmt.Sprintf(
			"extension %q must be 0-3 characters", ext))
	}

	var n Name
	for i := range n.Base {
		n.Base[i] = ' '
	}
	for i := range n.Ext {
		n.Ext[i] = ' '
	}

	upperBase, err := uppercaseASCII(base)
	if err != nil {
		return Name{}, err
	}
	upperExt, err := uppercaseASCII(ext)
	if err != nil {
		return Name{}, err
	}

	copy(n.Base[:], upperBase)
	copy(n.Ext[:], upperExt)
	return n, nil
}

func uppercaseASCII(s string) (string, error) {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c > 0x7F {
			return "", errkind.InvalidName.WithMessage(fmt.Sprintf(
				"non-ASCII character in name %q", s))
		}
		if illegalChars[c] {
			return "", errkind.InvalidName.WithMessage(fmt.Sprintf(
				"illegal character %q in name %q", c, s))
		}
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out), nil
}

// Unpack83 trims trailing spaces from base and ext and joins them with '.'
// iff ext is nonempty.
func Unpack83(base [8]byte, ext [3]byte) string {
	trimmedBase := strings.TrimRight(string(base[:]), " ")
	trimmedExt := strings.TrimRight(string(ext[:]), " ")
	if trimmedExt == "" {
		return trimmedBase
	}
	return trimmedBase + "." + trimmedExt
}

// Unpack returns this Name's displayable string form.
func (n Name) Unpack() string {
	return Unpack83(n.Base, n.Ext)
}

// rawPadded builds a Name's Base field directly from already-valid bytes
// without running Pack83's validation, for the synthetic "." and ".."
// entries that are not valid 8.3 names by the normal rules.
func rawPadded(s string) [8]byte {
	var out [8]byte
	for i := range out {
		out[i] = ' '
	}
	copy(out[:], s)
	return out
}
