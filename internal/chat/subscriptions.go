package chat

import "sort"

// Subscriptions maps inbox sessions to the websocket clients watching them.
// It is only touched from the manager loop.
type Subscriptions struct {
	SessionClients map[string]map[string]*Client // session id -> client id -> client
}

func newSubscriptions() *Subscriptions {
	return &Subscriptions{SessionClients: map[string]map[string]*Client{}}
}

func (s *Subscriptions) add(c *Client) {
	set, ok := s.SessionClients[c.SessionID]
	if !ok {
		set = map[string]*Client{}
		s.SessionClients[c.SessionID] = set
	}
	set[c.Id] = c
}

// remove reports whether c was subscribed.
func (s *Subscriptions) remove(c *Client) bool {
	set, ok := s.SessionClients[c.SessionID]
	if !ok {
		return false
	}
	if _, ok := set[c.Id]; !ok {
		return false
	}
	delete(set, c.Id)
	if len(set) == 0 {
		delete(s.SessionClients, c.SessionID)
	}
	return true
}

// clients returns the session's subscribers ordered by id.
func (s *Subscriptions) clients(sessionID string) []*Client {
	set := s.SessionClients[sessionID]
	out := make([]*Client, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out
}

// drop removes and returns every subscriber of the session.
func (s *Subscriptions) drop(sessionID string) []*Client {
	out := s.clients(sessionID)
	delete(s.SessionClients, sessionID)
	return out
}

func (s *Subscriptions) count(sessionID string) int {
	return len(s.SessionClients[sessionID])
}
