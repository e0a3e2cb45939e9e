package authflow

// State is the position of a Flow in the handshake.
type State int

const (
	Idle State = iota
	AwaitingRedirect
	ExchangingCode
	Authenticated
	RefreshingToken
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingRedirect:
		return "awaiting_redirect"
	case ExchangingCode:
		return "exchanging_code"
	case Authenticated:
		return "authenticated"
	case RefreshingToken:
		return "refreshing_token"
	default:
		return "unknown"
	}
}
