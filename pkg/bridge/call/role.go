package call

import "fmt"

// Direction says which way a call leg was placed. Bot legs must declare a
// direction when linked; the zero value marks it as unset.
type Direction int

const (
	DirectionUnset Direction = iota
	DirectionOutbound
	DirectionInbound
)

func (d Direction) String() string {
	switch d {
	case DirectionOutbound:
		return "outbound"
	case DirectionInbound:
		return "inbound"
	default:
		return "unset"
	}
}

// BotKind distinguishes the bot legs a session may hold at the same time.
type BotKind string

const (
	BotConference BotKind = "conference"
	BotStream     BotKind = "stream"
	BotRecording  BotKind = "recording"
	BotPhoneTree  BotKind = "phone_tree"
)

// RoleKind is the top-level tag of a leg role.
type RoleKind int

const (
	RoleKindBot RoleKind = iota
	RoleKindCustomerService
	RoleKindUser
)

// Role identifies what a call leg is for within a session. Bot roles carry a
// sub-kind; the customer-service and user roles are single-valued per session.
type Role struct {
	Kind RoleKind
	Bot  BotKind
}

var (
	CustomerService = Role{Kind: RoleKindCustomerService}
	User            = Role{Kind: RoleKindUser}
)

// Bot returns the role for a bot leg of the given kind.
func Bot(kind BotKind) Role {
	return Role{Kind: RoleKindBot, Bot: kind}
}

func (r Role) IsBot() bool {
	return r.Kind == RoleKindBot
}

func (r Role) String() string {
	switch r.Kind {
	case RoleKindBot:
		return "bot/" + string(r.Bot)
	case RoleKindCustomerService:
		return "customer_service"
	case RoleKindUser:
		return "user"
	default:
		return fmt.Sprintf("role(%d)", int(r.Kind))
	}
}
