package relay

// Room is a rendezvous point for the members of one call.
type Room struct {
	// ID is the opaque identifier chosen by the clients (or generated on create-room).
	ID string

	// Members in join order. A connection that joins twice appears twice.
	Members []*Client
}

func (r *Room) add(c *Client) {
	r.Members = append(r.Members, c)
}

// remove drops every membership entry of c and reports how many were removed.
func (r *Room) remove(c *Client) int {
	kept := r.Members[:0]
	removed := 0
	for _, m := range r.Members {
		if m == c {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	for i := len(kept); i < len(r.Members); i++ {
		r.Members[i] = nil
	}
	r.Members = kept
	return removed
}

func (r *Room) contains(c *Client) bool {
	for _, m := range r.Members {
		if m == c {
			return true
		}
	}
	return false
}

// others returns every membership entry that is not c.
func (r *Room) others(c *Client) []*Client {
	out := make([]*Client, 0, len(r.Members))
	for _, m := range r.Members {
		if m != c {
			out = append(out, m)
		}
	}
	return out
}

func (r *Room) empty() bool {
	return len(r.Members) == 0
}
