// Package permission implements the compact access-level encoding used when
// folders are shared, and the merge of newly granted recipients into a
// folder's access-control list.
package permission

// Bits is the wire form of an access level: five 7-bit fields packed into one
// non-negative integer. Field 0 (least significant) is the folder level,
// followed by read, write, delete and admin.
type Bits int

const (
	fieldWidth = 7
	fieldMask  = 0x7F

	fieldFolder = 0
	fieldRead   = 1
	fieldWrite  = 2
	fieldDelete = 3
	fieldAdmin  = 4

	// rawMax is the raw field value that stands for LevelMax in any field.
	rawMax = 64
)

// Access levels as stored in a Level.
const (
	LevelInvalid = -1
	LevelNone    = 0
	LevelOwn     = 2
	LevelAll     = 4
	LevelAdmin   = 8
	LevelMax     = 128
)

// rawLevels maps a raw field value to its level. Raw 3 is reserved.
var rawLevels = [...]int{LevelNone, LevelOwn, LevelAll, LevelInvalid, LevelAdmin}

// Level is a decoded access level. It is a value type: the With* methods
// return modified copies.
type Level struct {
	Folder int
	Read   int
	Write  int
	Delete int
	Admin  bool
}

// MaxLevel grants everything.
func MaxLevel() Level {
	return Level{Folder: LevelMax, Read: LevelMax, Write: LevelMax, Delete: LevelMax, Admin: true}
}

// NoLevel grants nothing.
func NoLevel() Level {
	return Level{}
}

// Decode unpacks bits into a Level. It never fails; a reserved or out-of-range
// raw value decodes to LevelInvalid and is reported by Level.Valid.
func Decode(bits Bits) Level {
	return Level{
		Folder: decodeField(bits, fieldFolder),
		Read:   decodeField(bits, fieldRead),
		Write:  decodeField(bits, fieldWrite),
		Delete: decodeField(bits, fieldDelete),
		Admin:  rawField(bits, fieldAdmin) > 0,
	}
}

func rawField(bits Bits, field int) int {
	if bits < 0 {
		return 0
	}
	return int(bits>>(fieldWidth*field)) & fieldMask
}

func decodeField(bits Bits, field int) int {
	raw := rawField(bits, field)
	switch {
	case raw >= rawMax:
		return LevelMax
	case raw < len(rawLevels):
		return rawLevels[raw]
	default:
		return LevelInvalid
	}
}

// Bits packs the level back into its wire form. Levels that have no raw
// representation are written as the reserved value 3.
func (l Level) Bits() Bits {
	bits := encodeField(l.Folder, fieldFolder) |
		encodeField(l.Read, fieldRead) |
		encodeField(l.Write, fieldWrite) |
		encodeField(l.Delete, fieldDelete)
	if l.Admin {
		bits |= Bits(1) << (fieldWidth * fieldAdmin)
	}
	return bits
}

func encodeField(level, field int) Bits {
	raw := 3
	if level == LevelMax {
		raw = rawMax
	} else {
		for i, v := range rawLevels {
			if v == level && v != LevelInvalid {
				raw = i
				break
			}
		}
	}
	return Bits(raw) << (fieldWidth * field)
}

// Valid reports whether every access field holds a known level.
func (l Level) Valid() bool {
	return validLevel(l.Folder) && validLevel(l.Read) && validLevel(l.Write) && validLevel(l.Delete)
}

func validLevel(v int) bool {
	switch v {
	case LevelNone, LevelOwn, LevelAll, LevelAdmin, LevelMax:
		return true
	}
	return false
}

func (l Level) WithFolder(v int) Level { l.Folder = v; return l }
func (l Level) WithRead(v int) Level   { l.Read = v; return l }
func (l Level) WithWrite(v int) Level  { l.Write = v; return l }
func (l Level) WithDelete(v int) Level { l.Delete = v; return l }
func (l Level) WithAdmin(v bool) Level { l.Admin = v; return l }
