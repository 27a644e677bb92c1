package app

import (
	"sort"
	"sync"

	"github.com/aelexs/chat-relay/internal/domain"
	"github.com/aelexs/chat-relay/pkg/protocol"
)

// presenceEntry is the ephemeral per-connection presence record.
type presenceEntry struct {
	clientID string
	nickname string
	role     domain.Role
	online   bool
}

// Presence tracks which connections have announced themselves online. Typing
// state is not tracked here; typing frames are relayed without storage.
type Presence struct {
	mu      sync.Mutex
	entries map[domain.ConnectionID]*presenceEntry
}

// NewPresence creates an empty presence tracker.
func NewPresence() *Presence {
	return &Presence{entries: make(map[domain.ConnectionID]*presenceEntry)}
}

// Set records the presence flag for a connection, creating the entry on
// first sight. Nickname and role are refreshed on every call so the roster
// follows renames.
func (p *Presence) Set(conn domain.ConnectionID, clientID, nickname string, role domain.Role, online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[conn]
	if !ok {
		e = &presenceEntry{}
		p.entries[conn] = e
	}
	e.clientID = clientID
	e.nickname = nickname
	e.role = role
	e.online = online
}

// Remove drops a connection's presence record on teardown.
func (p *Presence) Remove(conn domain.ConnectionID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, conn)
}

// Snapshot recomputes the online frame: count of online connections plus a
// role-annotated roster, ordered by client id for stable output.
func (p *Presence) Snapshot() protocol.Online {
	p.mu.Lock()
	defer p.mu.Unlock()

	var roster []protocol.RosterEntry
	for _, e := range p.entries {
		if !e.online {
			continue
		}
		roster = append(roster, protocol.RosterEntry{
			ClientID: e.clientID,
			Nickname: e.nickname,
			Role:     string(e.role),
		})
	}
	sort.Slice(roster, func(i, j int) bool { return roster[i].ClientID < roster[j].ClientID })

	return protocol.Online{
		Type:   protocol.TypeOnline,
		Count:  len(roster),
		Roster: roster,
	}
}
