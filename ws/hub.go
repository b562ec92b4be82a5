package ws

// Hub fans socket events out to sheet rooms. A connection belongs to at most
// one room; joining a new sheet implicitly leaves the previous one. All room
// state is owned by the Run goroutine, there are no locks.
type Hub struct {
	rooms  map[string]map[*Client]bool
	inRoom map[*Client]string

	register   chan *Client
	unregister chan *Client
	join       chan joinRequest
	leave      chan *Client
	broadcast  chan envelope
}

type joinRequest struct {
	client *Client
	room   string
}

// envelope is one outbound event targeted at a room, skipping the sender.
type envelope struct {
	room   string
	sender *Client
	data   []byte
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		inRoom:     make(map[*Client]string),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan joinRequest),
		leave:      make(chan *Client),
		broadcast:  make(chan envelope),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.inRoom[client] = ""

		case client := <-h.unregister:
			if _, ok := h.inRoom[client]; ok {
				h.removeFromRoom(client)
				delete(h.inRoom, client)
				close(client.send)
			}

		case req := <-h.join:
			h.removeFromRoom(req.client)
			if h.rooms[req.room] == nil {
				h.rooms[req.room] = make(map[*Client]bool)
			}
			h.rooms[req.room][req.client] = true
			h.inRoom[req.client] = req.room

		case client := <-h.leave:
			h.removeFromRoom(client)

		case env := <-h.broadcast:
			for client := range h.rooms[env.room] {
				if client == env.sender {
					continue
				}
				select {
				case client.send <- env.data:
				default:
					// slow consumer: drop the connection rather than block the room
					h.removeFromRoom(client)
					delete(h.inRoom, client)
					close(client.send)
				}
			}
		}
	}
}

func (h *Hub) removeFromRoom(client *Client) {
	room := h.inRoom[client]
	if room == "" {
		return
	}
	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.inRoom[client] = ""
}
