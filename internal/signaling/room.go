package signaling

// Room groups the clients exchanging signaling messages under one
// client-chosen key. A room is derived state: it is created implicitly on
// first join and deleted by the hub once the last member leaves.
type Room struct {
	// ID is the opaque key chosen by the first joining client.
	ID string

	// Members maps client IDs to the connected clients in this room.
	Members map[string]*Client
}

func newRoom(id string) *Room {
	return &Room{
		ID:      id,
		Members: make(map[string]*Client),
	}
}

func (r *Room) add(c *Client) {
	r.Members[c.ID] = c
}

func (r *Room) remove(c *Client) {
	delete(r.Members, c.ID)
}

func (r *Room) empty() bool {
	return len(r.Members) == 0
}

// others returns every member except the one with the given client ID.
func (r *Room) others(exceptID string) []*Client {
	out := make([]*Client, 0, len(r.Members))
	for id, member := range r.Members {
		if id != exceptID {
			out = append(out, member)
		}
	}
	return out
}
