package bus

// InboundMessage is a chat message arriving from a bridge, headed for the
// team chat.
type InboundMessage struct {
	Source   string            `json:"source"`
	SenderID string            `json:"sender_id"`
	Sender   string            `json:"sender"`
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	Media    []string          `json:"media,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage is a team chat message headed out through a bridge.
type OutboundMessage struct {
	Source  string `json:"source"` // bridge that produced the original message
	Target  string `json:"target"` // bridge that should deliver this one
	ChatID  string `json:"chat_id"`
	Author  string `json:"author"`
	Content string `json:"content"`
}

type MessageHandler func(InboundMessage) error
