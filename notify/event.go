package notify

// EventType is the integer discriminator clients switch on. Values are part
// of the wire format; 4 is unused.
type EventType int

const (
	EventNewMessage       EventType = 0
	EventNewFriendRequest EventType = 1
	EventWereDeleted      EventType = 2
	EventFriendAccepted   EventType = 3
	EventNewMember        EventType = 5
	EventSomeoneLeft      EventType = 6
	EventDissolve         EventType = 7
)

func (t EventType) String() string {
	switch t {
	case EventNewMessage:
		return "new_message"
	case EventNewFriendRequest:
		return "new_friend_request"
	case EventWereDeleted:
		return "were_deleted"
	case EventFriendAccepted:
		return "friend_accepted"
	case EventNewMember:
		return "new_member"
	case EventSomeoneLeft:
		return "someone_left"
	case EventDissolve:
		return "dissolve"
	default:
		return "unknown"
	}
}

// Event is anything the fanout can serialize and deliver.
type Event interface {
	Kind() EventType
}

type UserSummary struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	NickName string `json:"nickName"`
}

type NewMessageEvent struct {
	Type           EventType   `json:"type"`
	ConversationID string      `json:"conversationId"`
	Sender         UserSummary `json:"sender"`
	Content        string      `json:"content"`
	EncryptionKey  string      `json:"encryptionKey"`
	Muted          bool        `json:"muted"`
}

func (NewMessageEvent) Kind() EventType { return EventNewMessage }

type NewFriendRequestEvent struct {
	Type        EventType `json:"type"`
	RequesterID string    `json:"requesterId"`
}

func (NewFriendRequestEvent) Kind() EventType { return EventNewFriendRequest }

type WereDeletedEvent struct {
	Type EventType `json:"type"`
}

func (WereDeletedEvent) Kind() EventType { return EventWereDeleted }

type FriendAcceptedEvent struct {
	Type EventType `json:"type"`
}

func (FriendAcceptedEvent) Kind() EventType { return EventFriendAccepted }

type NewMemberEvent struct {
	Type      EventType   `json:"type"`
	GroupID   string      `json:"groupId"`
	NewMember UserSummary `json:"newMember"`
}

func (NewMemberEvent) Kind() EventType { return EventNewMember }

type SomeoneLeftEvent struct {
	Type     EventType   `json:"type"`
	GroupID  string      `json:"groupId"`
	LeftUser UserSummary `json:"leftUser"`
}

func (SomeoneLeftEvent) Kind() EventType { return EventSomeoneLeft }

type DissolveEvent struct {
	Type    EventType `json:"type"`
	GroupID string    `json:"groupId"`
}

func (DissolveEvent) Kind() EventType { return EventDissolve }

func NewMember(groupID string, member UserSummary) NewMemberEvent {
	return NewMemberEvent{Type: EventNewMember, GroupID: groupID, NewMember: member}
}

func SomeoneLeft(groupID string, left UserSummary) SomeoneLeftEvent {
	return SomeoneLeftEvent{Type: EventSomeoneLeft, GroupID: groupID, LeftUser: left}
}

func Dissolve(groupID string) DissolveEvent {
	return DissolveEvent{Type: EventDissolve, GroupID: groupID}
}

func NewFriendRequest(requesterID string) NewFriendRequestEvent {
	return NewFriendRequestEvent{Type: EventNewFriendRequest, RequesterID: requesterID}
}

func WereDeleted() WereDeletedEvent {
	return WereDeletedEvent{Type: EventWereDeleted}
}

func FriendAccepted() FriendAcceptedEvent {
	return FriendAcceptedEvent{Type: EventFriendAccepted}
}

// Message is a chat message about to be fanned out. The per-recipient muted
// flag is filled in by the fanout.
type Message struct {
	ConversationID string
	EncryptionKey  string
	Sender         UserSummary
	Content        string
}

func (m Message) event(muted bool) NewMessageEvent {
	return NewMessageEvent{
		Type:           EventNewMessage,
		ConversationID: m.ConversationID,
		Sender:         m.Sender,
		Content:        m.Content,
		EncryptionKey:  m.EncryptionKey,
		Muted:          muted,
	}
}
