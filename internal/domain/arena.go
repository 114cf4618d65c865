package domain

// Arena owns every extracted field. Companion links are ids into the arena,
// so fields never point at each other directly.
type Arena struct {
	fields []*Field
}

// Adopt moves a batch into the arena, rebasing its ids, and returns the
// fields the batch exposes. A batch can only be adopted once.
func (a *Arena) Adopt(b *Batch) []*Field {
	if b.adopted {
		return nil
	}
	b.adopted = true

	emitted := b.Emitted()
	base := FieldID(len(a.fields))
	for _, f := range b.fields {
		f.ID += base
		if f.Companion != NoField {
			f.Companion += base
		}
		a.fields = append(a.fields, f)
	}
	return emitted
}

// Get returns the field with the given id, or nil.
func (a *Arena) Get(id FieldID) *Field {
	if id < 0 || int(id) >= len(a.fields) {
		return nil
	}
	return a.fields[id]
}

// Companion returns the companion of f, or nil.
func (a *Arena) Companion(f *Field) *Field {
	if f == nil || f.Companion == NoField {
		return nil
	}
	return a.Get(f.Companion)
}

// Len returns the number of fields held.
func (a *Arena) Len() int { return len(a.fields) }

// Add appends a standalone field and assigns its id.
func (a *Arena) Add(f *Field) *Field {
	f.ID = FieldID(len(a.fields))
	a.fields = append(a.fields, f)
	return f
}

// Link makes u and v reciprocal vector companions. Both must have been added
// to the arena.
func (a *Arena) Link(u, v *Field) {
	u.Companion, v.Companion = v.ID, u.ID
	u.Vector, v.Vector = true, true
}
