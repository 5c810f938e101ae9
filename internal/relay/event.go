package relay

import (
	"github.com/s33g/discord-relay/internal/render"
)

// ElementType tags a structured part of an inbound message
type ElementType string

const (
	ElementText    ElementType = "text"
	ElementMention ElementType = "mention"
)

// Element is a structured part of an inbound message, such as a user mention
type Element struct {
	Type ElementType
	ID   string
	Name string
}

// Event is an inbound chat message as seen by the router
type Event struct {
	ID         string
	GuildID    string // empty for direct messages
	ChannelID  string
	AuthorID   string
	AuthorName string
	RoleIDs    []string
	Content    string
	Elements   []Element
}

// Mentions returns the mention elements of the event
func (e Event) Mentions() []Element {
	var mentions []Element
	for _, el := range e.Elements {
		if el.Type == ElementMention {
			mentions = append(mentions, el)
		}
	}
	return mentions
}

// Origin records what produced a reply
type Origin int

const (
	// OriginSystem marks notices and fallbacks; they are never rendered
	OriginSystem Origin = iota
	// OriginCompletion marks text produced by the completion flow
	OriginCompletion
)

func (o Origin) String() string {
	switch o {
	case OriginCompletion:
		return "completion"
	default:
		return "system"
	}
}

// Reply is an outbound message. Exactly one of Text or Image is delivered.
type Reply struct {
	Text   string
	Image  *render.Image
	Origin Origin
}
