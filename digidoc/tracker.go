package digidoc

// Handle is the arena identity of a file or signature within one container.
// Handles are assigned on creation and never reused, so two entities are the
// same entity exactly when their handles are equal.
type Handle uint64

// Entity is anything a Tracker can record.
type Entity interface {
	Handle() Handle
}

// Tracker records which entities the service already knows. It only grows.
// A Tracker belongs to a single container and is not safe for concurrent use.
type Tracker struct {
	known map[Handle]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{known: make(map[Handle]struct{})}
}

// Add records entities; entities already present are ignored.
func (t *Tracker) Add(entities ...Entity) {
	for _, e := range entities {
		t.known[e.Handle()] = struct{}{}
	}
}

// Has reports whether e was added.
func (t *Tracker) Has(e Entity) bool {
	_, ok := t.known[e.Handle()]
	return ok
}

// Len returns the number of distinct tracked entities.
func (t *Tracker) Len() int { return len(t.known) }

// FilterUntracked returns the entities of in that are not tracked, in input
// order. Duplicates in the input are reported once.
func FilterUntracked[E Entity](t *Tracker, in []E) []E {
	var out []E
	seen := make(map[Handle]struct{}, len(in))
	for _, e := range in {
		h := e.Handle()
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		if !t.Has(e) {
			out = append(out, e)
		}
	}
	return out
}
