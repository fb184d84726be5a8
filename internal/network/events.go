package network

// EventKind names an event for dispatch and metrics.
type EventKind string

const (
	KindLogin        EventKind = "login"
	KindDisconnect   EventKind = "disconnect"
	KindSearchResult EventKind = "search_result"
	KindTransfer     EventKind = "transfer"
)

// Event is a notification drained from the network client.
type Event interface {
	Kind() EventKind
}

// LoginEvent reports the outcome of a login attempt.
type LoginEvent struct {
	Success  bool
	Username string
	Reason   string
}

// DisconnectEvent reports loss of the network session.
type DisconnectEvent struct {
	Reason string
}

// SearchResultEvent carries files one peer returned for a search.
type SearchResultEvent struct {
	Token    Token
	Username string
	Results  []FileResult
}

// TransferEvent carries the latest state of one transfer.
type TransferEvent struct {
	Transfer Transfer
}

func (LoginEvent) Kind() EventKind        { return KindLogin }
func (DisconnectEvent) Kind() EventKind   { return KindDisconnect }
func (SearchResultEvent) Kind() EventKind { return KindSearchResult }
func (TransferEvent) Kind() EventKind     { return KindTransfer }
