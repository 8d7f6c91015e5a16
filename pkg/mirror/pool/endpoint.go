package pool

import (
	"fmt"

	"github.com/Hubmakerlabs/reflectr/pkg/nostr/event"
	"github.com/Hubmakerlabs/reflectr/pkg/nostr/timestamp"
)

// Group is the side of the mesh an endpoint belongs to.
type Group int

const (
	Local Group = iota
	Public
)

func (g Group) String() string {
	switch g {
	case Local:
		return "local"
	case Public:
		return "public"
	}
	return fmt.Sprintf("group(%d)", int(g))
}

// Opposite is the group events from g are mirrored to.
func (g Group) Opposite() Group {
	if g == Local {
		return Public
	}
	return Local
}

// State of an endpoint's connection.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Endpoint is a configured relay. Names are unique within a group.
type Endpoint struct {
	Name  string
	URL   string
	Group Group
}

func (ep Endpoint) String() string {
	return fmt.Sprintf("%s relay %s (%s)", ep.Group, ep.Name, ep.URL)
}

func (ep Endpoint) key() string { return ep.Group.String() + "/" + ep.Name }

// Inbound is an event read from an endpoint.
type Inbound struct {
	Group    Group
	Relay    string
	Event    *event.T
	Received timestamp.T
}

// Status is the reported state of one endpoint.
type Status struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	Group     string `json:"group"`
	State     string `json:"state"`
	LastError string `json:"last_error,omitempty"`
}
