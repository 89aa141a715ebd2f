package fat

import (
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// shortNameCodec decodes/encodes the 11-byte on-disk short name against the
// IBM PC code page (CP437) that DOS and the FAT spec assume for bytes
// outside 7-bit ASCII. ASCII-only names (the overwhelming majority) are
// unaffected; this only changes behavior for names containing extended
// characters, which golang.org/x/text/encoding/charmap.CodePage437 decodes
// correctly instead of mangling as Latin-1.
var shortNameCodec = charmap.CodePage437

// nameToShort converts a POSIX-visible "NAME.EXT" (or "NAME") string, at
// most 8 characters of name and 3 of extension, into the padded 11-byte
// on-disk representation. A base longer than 8 or an extension longer than
// 3 characters is rejected with ErrInvalidArgument (long filenames are a
// Non-goal). "." and ".." map to their reserved on-disk forms.
func nameToShort(name string) ([11]byte, error) {
	if name == "." || name == ".." {
		return reservedShortNames[len(name)-1], nil
	}

	var out [11]byte
	for i := range out {
		out[i] = ' '
	}

	base := name
	ext := ""
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		base = name[:i]
		ext = name[i+1:]
	}

	base = strings.ToUpper(base)
	ext = strings.ToUpper(ext)

	if len(base) > 8 || len(ext) > 3 {
		return out, ErrInvalidArgument
	}

	encBase, err := shortNameCodec.NewEncoder().String(base)
	if err != nil {
		return out, ErrInvalidArgument
	}
	encExt, err := shortNameCodec.NewEncoder().String(ext)
	if err != nil {
		return out, ErrInvalidArgument
	}

	copy(out[0:8], encBase)
	copy(out[8:11], encExt)
	return out, nil
}

// shortToName converts the padded 11-byte on-disk short name into a
// POSIX-visible "NAME.EXT" string (or "NAME" when the extension is empty).
// 0x05 in the first byte is the documented escape for a literal 0xE5
// (which otherwise marks a deleted slot); it is translated back before
// decoding.
func shortToName(raw [11]byte) string {
	if raw[0] == 0x05 {
		raw[0] = 0xE5
	}

	decBase, err := shortNameCodec.NewDecoder().Bytes(raw[0:8])
	if err != nil {
		decBase = raw[0:8]
	}
	decExt, err := shortNameCodec.NewDecoder().Bytes(raw[8:11])
	if err != nil {
		decExt = raw[8:11]
	}

	base := strings.TrimRight(string(decBase), " ")
	ext := strings.TrimRight(string(decExt), " ")

	if ext == "" {
		return base
	}
	return base + "." + ext
}
