// Package transition derives the boolean facts about an asset's
// before/after state that drive every downstream handler. No handler
// re-inspects raw flags.
package transition

// Field names of the visibility flags on an asset document.
const (
	FieldApproved = "isApproved"
	FieldPrivate  = "isPrivate"
	FieldDeleted  = "isDeleted"
	FieldAdult    = "isAdult"
)

// Facts are the derived transition facts for one before/after pair.
type Facts struct {
	// NotApproved is true only when the approval flag is explicitly
	// false. Documents created before the flag existed have no flag and
	// count as approved.
	NotApproved bool
	Private     bool
	Deleted     bool
	// Adult is strict: missing and false both mean non-adult.
	Adult bool

	// The became-X facts fire only on a false/absent -> true edge.
	BecameApproved bool
	BecamePrivate  bool
	BecameDeleted  bool
	// BecameUnapproved fires when a previously approved document is
	// explicitly unapproved.
	BecameUnapproved bool
}

// Classify is a pure, total function over the two snapshots. before is
// nil for creations, which makes every became-X fact a plain flag check
// on the after state.
func Classify(before, after map[string]any) Facts {
	return Facts{
		NotApproved:    after[FieldApproved] == false,
		Private:        after[FieldPrivate] == true,
		Deleted:        after[FieldDeleted] == true,
		Adult:          after[FieldAdult] == true,
		BecameApproved: becameTrue(before, after, FieldApproved),
		BecamePrivate:  becameTrue(before, after, FieldPrivate),
		BecameDeleted:  becameTrue(before, after, FieldDeleted),
		BecameUnapproved: before != nil &&
			before[FieldApproved] != false && after[FieldApproved] == false,
	}
}

// Indexable reports whether the asset belongs in the search index:
// approved, public and not deleted.
func (f Facts) Indexable() bool {
	return !f.NotApproved && !f.Private && !f.Deleted
}

func becameTrue(before, after map[string]any, field string) bool {
	if before != nil && before[field] == true {
		return false
	}
	return after[field] == true
}
