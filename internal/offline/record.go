package offline

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EntryType is the kind of domain record an entry carries.
type EntryType string

const (
	TypeJournal    EntryType = "journal"
	TypeChat       EntryType = "chat"
	TypeClarity    EntryType = "clarity"
	TypeSafetyPlan EntryType = "safety_plan"
)

// Types lists every entry type this build knows how to deliver.
var Types = []EntryType{TypeJournal, TypeChat, TypeClarity, TypeSafetyPlan}

// Valid reports whether t belongs to the closed set of entry types.
func (t EntryType) Valid() bool {
	switch t {
	case TypeJournal, TypeChat, TypeClarity, TypeSafetyPlan:
		return true
	}
	return false
}

// Local-only payload fields. They never leave the device.
const (
	fieldOfflineID      = "offline_id"
	fieldCreatedOffline = "created_offline"
	fieldID             = "id"
)

// Meta holds the fields every record shares. It is embedded in each
// concrete record so the JSON encoding stays flat.
type Meta struct {
	ID             string `json:"id,omitempty"`
	UserID         string `json:"user_id"`
	OfflineID      string `json:"offline_id,omitempty"`
	CreatedOffline bool   `json:"created_offline,omitempty"`
}

func (m *Meta) base() *Meta { return m }

// Record is a domain record waiting to be written remotely. The set of
// implementations is closed: JournalEntry, ChatMessage, ClarityResult and
// SafetyPlan.
type Record interface {
	Type() EntryType
	base() *Meta
	sealed()
}

// JournalEntry is a free-form journal note.
type JournalEntry struct {
	Meta
	Title     string   `json:"title,omitempty"`
	Content   string   `json:"content"`
	Mood      string   `json:"mood,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	EntryDate string   `json:"entry_date,omitempty"`
}

func (*JournalEntry) Type() EntryType { return TypeJournal }
func (*JournalEntry) sealed()         {}

// ChatMessage is one message in a support conversation.
type ChatMessage struct {
	Meta
	ConversationID string `json:"conversation_id"`
	Role           string `json:"role"`
	Content        string `json:"content"`
}

func (*ChatMessage) Type() EntryType { return TypeChat }
func (*ChatMessage) sealed()         {}

// ClarityResult is the outcome of a clarity self-assessment.
type ClarityResult struct {
	Meta
	TestType string             `json:"test_type"`
	Answers  map[string]int     `json:"answers,omitempty"`
	Scores   map[string]float64 `json:"scores,omitempty"`
	Summary  string             `json:"summary,omitempty"`
}

func (*ClarityResult) Type() EntryType { return TypeClarity }
func (*ClarityResult) sealed()         {}

// SafetyContact is a person listed in a safety plan.
type SafetyContact struct {
	Name         string `json:"name"`
	Phone        string `json:"phone,omitempty"`
	Relationship string `json:"relationship,omitempty"`
}

// SafetyPlan is a personal crisis safety plan.
type SafetyPlan struct {
	Meta
	WarningSigns     []string        `json:"warning_signs,omitempty"`
	CopingStrategies []string        `json:"coping_strategies,omitempty"`
	Contacts         []SafetyContact `json:"contacts,omitempty"`
	ReasonsToLive    []string        `json:"reasons_to_live,omitempty"`
	SafeEnvironment  string          `json:"safe_environment,omitempty"`
}

func (*SafetyPlan) Type() EntryType { return TypeSafetyPlan }
func (*SafetyPlan) sealed()         {}

// unknownRecord keeps a persisted payload whose type this build does not
// recognise, so it can be reported and dropped instead of corrupting the
// queue on load.
type unknownRecord struct {
	Meta
	kind EntryType
	raw  json.RawMessage
}

func (r *unknownRecord) Type() EntryType { return r.kind }
func (*unknownRecord) sealed()           {}

func (r *unknownRecord) MarshalJSON() ([]byte, error) {
	if len(r.raw) == 0 {
		return []byte("{}"), nil
	}
	return r.raw, nil
}

// NewRecord returns an empty record of the given type.
func NewRecord(t EntryType) (Record, error) {
	switch t {
	case TypeJournal:
		return &JournalEntry{}, nil
	case TypeChat:
		return &ChatMessage{}, nil
	case TypeClarity:
		return &ClarityResult{}, nil
	case TypeSafetyPlan:
		return &SafetyPlan{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
}

// DecodeRecord parses a JSON payload into the concrete record for t.
// Types unknown to this build decode into an opaque record instead of
// failing; malformed JSON for a known type is ErrInvalidPayload.
func DecodeRecord(t EntryType, data []byte) (Record, error) {
	r, err := NewRecord(t)
	if err != nil {
		u := &unknownRecord{kind: t, raw: append(json.RawMessage(nil), data...)}
		_ = json.Unmarshal(data, &u.Meta)
		return u, nil
	}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return r, nil
}

// EncodeRecord serializes a record for local persistence. Local-only
// fields are kept.
func EncodeRecord(r Record) ([]byte, error) {
	return json.Marshal(r)
}

// cloneRecord returns a deep copy of r that shares no memory with it.
func cloneRecord(r Record) (Record, error) {
	data, err := EncodeRecord(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return DecodeRecord(r.Type(), data)
}

// IsPlaceholderID reports whether id was minted locally.
func IsPlaceholderID(id string) bool {
	return strings.HasPrefix(id, PlaceholderPrefix)
}

// remotePayload converts r into the document sent to the remote store, with
// local-only markers and placeholder ids removed so the remote assigns its
// own id.
func remotePayload(r Record) (map[string]any, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, Permanent(fmt.Errorf("%w: %v", ErrInvalidPayload, err))
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, Permanent(fmt.Errorf("%w: %v", ErrInvalidPayload, err))
	}
	if doc == nil {
		return nil, Permanent(fmt.Errorf("%w: payload is not an object", ErrInvalidPayload))
	}
	delete(doc, fieldOfflineID)
	delete(doc, fieldCreatedOffline)
	if id, _ := doc[fieldID].(string); id == "" || IsPlaceholderID(id) {
		delete(doc, fieldID)
	}
	return doc, nil
}
