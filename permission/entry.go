package permission

// Entry is one access-control entry of a folder. Entries compare with ==.
type Entry struct {
	// Entity is the user or group id within the context.
	Entity int
	Group  bool
	Level  Level
	// System is an opaque tag owned by the folder service.
	System int
}

// Recipient asks for Bits to be granted to Entity.
type Recipient struct {
	Entity int
	Group  bool
	Bits   Bits
}

// NewEntry builds the entry a recipient is granted.
func NewEntry(r Recipient) Entry {
	return Entry{
		Entity: r.Entity,
		Group:  r.Group,
		Level:  Decode(r.Bits),
	}
}

// WithLevel returns a copy of e carrying level.
func (e Entry) WithLevel(level Level) Entry {
	e.Level = level
	return e
}

// IsAdmin reports whether the entry may administer the folder.
func (e Entry) IsAdmin() bool {
	return e.Level.Admin
}

// CanRead reports whether the entry may read at least its own objects.
func (e Entry) CanRead() bool {
	return e.Level.Read >= LevelOwn
}
