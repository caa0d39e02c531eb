package offline

import "fmt"

// Remote collection names.
const (
	CollectionJournal    = "journal_entries"
	CollectionChat       = "chat_messages"
	CollectionClarity    = "clarity_profiles"
	CollectionSafetyPlan = "safety_plans"
)

// Collection returns the remote collection that stores records of type t.
// Unknown types yield a permanent ErrUnknownType.
func Collection(t EntryType) (string, error) {
	switch t {
	case TypeJournal:
		return CollectionJournal, nil
	case TypeChat:
		return CollectionChat, nil
	case TypeClarity:
		return CollectionClarity, nil
	case TypeSafetyPlan:
		return CollectionSafetyPlan, nil
	}
	return "", Permanent(fmt.Errorf("%w: %q", ErrUnknownType, t))
}
