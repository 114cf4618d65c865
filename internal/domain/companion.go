package domain

// companionPairs lists vector components that render together.
// The first entry of each pair leads the merged name.
var companionPairs = [][2]string{
	{"u", "v"},
	{"10u", "10v"},
	{"100u", "100v"},
	{"200u", "200v"},
	{"u10", "v10"},
	{"u100", "v100"},
}

var (
	companionOf = make(map[string]string)
	leading     = make(map[string]bool)
)

func init() {
	for _, p := range companionPairs {
		companionOf[p[0]] = p[1]
		companionOf[p[1]] = p[0]
		leading[p[0]] = true
	}
}

// Batch is the set of fields extracted from one file. IDs are local to the
// batch until it is adopted by an Arena.
type Batch struct {
	Path     string
	fields   []*Field
	absorbed map[FieldID]bool
	adopted  bool
}

// Fields returns every field of the batch, absorbed companions included.
func (b *Batch) Fields() []*Field { return b.fields }

// Len returns the number of fields in the batch.
func (b *Batch) Len() int { return len(b.fields) }

// Field returns the field with the given batch-local id.
func (b *Batch) Field(id FieldID) *Field {
	if id < 0 || int(id) >= len(b.fields) {
		return nil
	}
	return b.fields[id]
}

// Emitted returns the fields exposed to the index: every field except the
// trailing component of each merged vector pair.
func (b *Batch) Emitted() []*Field {
	out := make([]*Field, 0, len(b.fields)-len(b.absorbed))
	for i, f := range b.fields {
		if !b.absorbed[FieldID(i)] {
			out = append(out, f)
		}
	}
	return out
}

// Matcher pairs vector components found in a single file.
// A new Matcher is used for every file so no state leaks between scans.
type Matcher struct {
	batch   *Batch
	pending map[string][]FieldID
}

// NewMatcher starts a batch for the file at path.
func NewMatcher(path string) *Matcher {
	return &Matcher{
		batch:   &Batch{Path: path, absorbed: make(map[FieldID]bool)},
		pending: make(map[string][]FieldID),
	}
}

// Add appends a field to the batch and pairs it with a waiting companion.
func (m *Matcher) Add(f *Field) {
	f.ID = FieldID(len(m.batch.fields))
	f.Companion = NoField
	m.batch.fields = append(m.batch.fields, f)

	partner, ok := companionOf[f.ShortName]
	if !ok {
		return
	}
	waiting := m.pending[partner]
	for i, id := range waiting {
		c := m.batch.fields[id]
		if !sameSlice(f, c) {
			continue
		}
		m.pending[partner] = append(waiting[:i:i], waiting[i+1:]...)
		m.pair(f, c)
		return
	}
	m.pending[f.ShortName] = append(m.pending[f.ShortName], f.ID)
}

// Batch returns the batch built so far.
func (m *Matcher) Batch() *Batch { return m.batch }

func (m *Matcher) pair(a, b *Field) {
	u, v := a, b
	if !leading[a.ShortName] {
		u, v = b, a
	}
	short := u.ShortName + "/" + v.ShortName
	long := u.LongName + "/" + v.LongName

	u.Companion, v.Companion = v.ID, u.ID
	u.Vector, v.Vector = true, true
	u.rename(short, long)
	v.rename(short, long)
	m.batch.absorbed[v.ID] = true
}

func sameSlice(a, b *Field) bool {
	if a.Path != b.Path || a.LevelType != b.LevelType {
		return false
	}
	switch {
	case a.Time == nil && b.Time == nil:
	case a.Time == nil || b.Time == nil:
		return false
	case !a.Time.Equal(*b.Time):
		return false
	}
	switch {
	case a.Level == nil && b.Level == nil:
		return true
	case a.Level == nil || b.Level == nil:
		return false
	default:
		return *a.Level == *b.Level
	}
}

// PairCompanions runs a fresh Matcher over the fields of one file.
func PairCompanions(path string, fields []*Field) *Batch {
	m := NewMatcher(path)
	for _, f := range fields {
		m.Add(f)
	}
	return m.Batch()
}
