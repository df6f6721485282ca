package domain

// ConversationEntry is one rendered item of a pet's conversation.
type ConversationEntry struct {
	ID            EntryID   `json:"id"`
	Role          Role      `json:"role"`
	Content       string    `json:"content"`
	CreatedAt     Timestamp `json:"created_at"`
	HasAttachment bool      `json:"has_attachment"`

	// RequestID points back to the backing record, when there is one.
	RequestID RequestID `json:"request_id,omitempty"`
}

func UserEntryID(id RequestID) EntryID       { return EntryID(string(id) + "-user") }
func ProcessingEntryID(id RequestID) EntryID { return EntryID(string(id) + "-processing") }
func AssistantEntryID(id RequestID) EntryID  { return EntryID(string(id) + "-assistant") }
