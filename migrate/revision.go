package migrate

import (
	"strings"
)

// InitialName is the ledger representation of the Initial revision.
const InitialName = "INITIAL"

// Revision identifies a point in the migration history. The zero value is
// Initial, the point before any script is applied.
type Revision struct {
	id string
}

// Initial is the revision preceding every script.
var Initial = Revision{}

// Named returns the revision of the script with the given identifier. The
// identifier is canonicalized first. Named(InitialName) returns Initial.
func Named(id string) Revision {
	return ParseRevision(id)
}

// ParseRevision converts a ledger or command line value into a Revision.
func ParseRevision(s string) Revision {
	id := CanonicalID(s)
	if id == InitialName || id == "" {
		return Initial
	}
	return Revision{id: id}
}

// IsInitial reports whether r is the Initial revision.
func (r Revision) IsInitial() bool {
	return r.id == ""
}

// ID returns the canonical script identifier, or InitialName.
func (r Revision) ID() string {
	if r.IsInitial() {
		return InitialName
	}
	return r.id
}

func (r Revision) String() string {
	return r.ID()
}

// CanonicalID strips the descriptive suffix from a script name, so that
// "a24bc_create_users" and "a24bc" identify the same script.
func CanonicalID(name string) string {
	id, _, _ := strings.Cut(strings.TrimSpace(name), "_")
	return id
}

// Index maps the ordered script sequence, preceded by Initial, to positions.
// It is immutable after construction and safe for concurrent use.
type Index struct {
	revs []Revision
	pos  map[Revision]int
}

// NewIndex builds an Index from the repository's ordered script identifiers.
func NewIndex(ids []string) (*Index, error) {
	ix := &Index{
		revs: make([]Revision, 0, len(ids)+1),
		pos:  make(map[Revision]int, len(ids)+1),
	}
	ix.revs = append(ix.revs, Initial)
	ix.pos[Initial] = 0

	for _, raw := range ids {
		rev := ParseRevision(raw)
		if rev.IsInitial() {
			return nil, &ConfigError{Msg: "script identifier '" + raw + "' is reserved"}
		}
		if _, dup := ix.pos[rev]; dup {
			return nil, &ConfigError{Msg: "duplicate script identifier '" + rev.ID() + "'"}
		}
		ix.pos[rev] = len(ix.revs)
		ix.revs = append(ix.revs, rev)
	}

	return ix, nil
}

// Position returns the 0-based position of r in the sequence. Initial is
// always at position 0.
func (ix *Index) Position(r Revision) (int, bool) {
	p, ok := ix.pos[r]
	return p, ok
}

// Contains reports whether r is part of the sequence.
func (ix *Index) Contains(r Revision) bool {
	_, ok := ix.pos[r]
	return ok
}

// Latest returns the last revision of the sequence.
func (ix *Index) Latest() Revision {
	return ix.revs[len(ix.revs)-1]
}

// Len returns the number of revisions, Initial included.
func (ix *Index) Len() int {
	return len(ix.revs)
}

// Revisions returns a copy of the sequence, starting with Initial.
func (ix *Index) Revisions() []Revision {
	out := make([]Revision, len(ix.revs))
	copy(out, ix.revs)
	return out
}

// Resolve returns the sequence member identified by rev. An empty rev
// selects the latest revision.
func (ix *Index) Resolve(rev string) (Revision, error) {
	if strings.TrimSpace(rev) == "" {
		return ix.Latest(), nil
	}
	r := ParseRevision(rev)
	if !ix.Contains(r) {
		return Revision{}, &UnknownRevisionError{Revision: rev}
	}
	return r, nil
}
