package bus

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"swarmcore/internal/logging"
	"swarmcore/internal/swarmerr"
)

// Broker is the in-memory message bus implementation. All operations are
// serialized with respect to a single message's delivery/read/ack
// transitions via one broker-wide mutex shared by all projects; fan-out to
// multiple recipients is atomic.
type Broker struct {
	mu sync.Mutex

	projects map[string]*Project
	agents   map[string]map[string]*Agent // projectKey -> name -> Agent
	// messages indexed by (project, recipient) sorted by created_at desc on insert.
	inboxes  map[string]map[string][]*Message // projectKey -> recipient -> messages
	byID     map[string]*Message
	fts      map[string]*ftsIndex // projectKey -> index
	nameSeq  map[string]int       // projectKey -> next name-generation counter
}

// NewBroker constructs an empty in-memory message bus.
func NewBroker() *Broker {
	return &Broker{
		projects: make(map[string]*Project),
		agents:   make(map[string]map[string]*Agent),
		inboxes:  make(map[string]map[string][]*Message),
		byID:     make(map[string]*Message),
		fts:      make(map[string]*ftsIndex),
		nameSeq:  make(map[string]int),
	}
}

// EnsureProject creates the project if it does not already exist and
// returns it either way.
func (b *Broker) EnsureProject(ctx context.Context, humanKey string) (*Project, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.projects[humanKey]; ok {
		return p, nil
	}

	p := &Project{Key: humanKey, CreatedAt: time.Now()}
	b.projects[humanKey] = p
	b.agents[humanKey] = make(map[string]*Agent)
	b.inboxes[humanKey] = make(map[string][]*Message)
	b.fts[humanKey] = newFTSIndex()
	logging.Bus("project ensured key=%s", humanKey)
	return p, nil
}

// RegisterAgent registers a new agent or, if name is non-empty and already
// registered within the project, idempotently updates that existing record.
func (b *Broker) RegisterAgent(ctx context.Context, projectKey, program, model, name, taskDescription string) (*Agent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.agents[projectKey]; !ok {
		b.agents[projectKey] = make(map[string]*Agent)
		b.nameSeq[projectKey] = 0
	}

	if name == "" {
		for {
			candidate := generateAgentName(b.nameSeq[projectKey])
			b.nameSeq[projectKey]++
			if _, exists := b.agents[projectKey][candidate]; !exists {
				name = candidate
				break
			}
		}
	}

	if existing, ok := b.agents[projectKey][name]; ok {
		existing.Program = program
		existing.Model = model
		existing.TaskDescription = taskDescription
		logging.BusDebug("agent re-registered project=%s name=%s (idempotent)", projectKey, name)
		cp := *existing
		return &cp, nil
	}

	a := &Agent{
		ID: uuid.NewString(), ProjectKey: projectKey, Name: name,
		Program: program, Model: model, TaskDescription: taskDescription,
		RegisteredAt: time.Now(),
	}
	b.agents[projectKey][name] = a
	logging.Bus("agent registered project=%s name=%s", projectKey, name)
	cp := *a
	return &cp, nil
}

// SendMessage delivers a message to all recipients atomically: either all
// recipients receive it, or none do (a missing recipient fails the batch).
func (b *Broker) SendMessage(ctx context.Context, projectKey, sender string, to []string, subject, body, threadID string, importance Importance, ackRequired bool) (*SendResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(to) == 0 {
		return nil, swarmerr.New(swarmerr.ValidationError, "bus.SendMessage", projectKey, "'to' must be non-empty")
	}

	agents, ok := b.agents[projectKey]
	if !ok {
		return nil, swarmerr.New(swarmerr.NotFound, "bus.SendMessage", projectKey, "project does not exist")
	}
	for _, recipient := range to {
		if _, ok := agents[recipient]; !ok {
			return nil, swarmerr.New(swarmerr.NotFound, "bus.SendMessage", recipient,
				"recipient is not registered in project "+projectKey).
				WithRemedy("register the agent before sending, or check spelling of the recipient name")
		}
	}

	now := time.Now()
	msg := &Message{
		ID: uuid.NewString(), ProjectKey: projectKey, Sender: sender, To: append([]string{}, to...),
		Subject: subject, Body: body, ThreadID: threadID, Importance: importance,
		AckRequired: ackRequired, CreatedAt: now, DeliveredAt: now,
		ReadAt: make(map[string]time.Time), AckAt: make(map[string]time.Time),
	}

	b.byID[msg.ID] = msg
	for _, recipient := range to {
		b.inboxes[projectKey][recipient] = insertDesc(b.inboxes[projectKey][recipient], msg)
	}
	b.fts[projectKey].index(msg.ID, subject, body)

	logging.BusDebug("message sent project=%s id=%s to=%v importance=%s", projectKey, msg.ID, to, importance)

	result := &SendResult{Count: len(to)}
	for _, recipient := range to {
		var d DeliveryReceipt
		d.Payload.ID = msg.ID
		d.Payload.Subject = subject
		d.Payload.To = []string{recipient}
		result.Deliveries = append(result.Deliveries, d)
	}
	return result, nil
}

// insertDesc inserts msg into a slice kept sorted by CreatedAt descending.
func insertDesc(list []*Message, msg *Message) []*Message {
	i := sort.Search(len(list), func(i int) bool { return list[i].CreatedAt.Before(msg.CreatedAt) })
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = msg
	return list
}

// FetchInbox returns up to limit messages for agent, newest first.
func (b *Broker) FetchInbox(ctx context.Context, q InboxQuery) ([]InboxEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	limit := q.Limit
	if limit <= 0 || limit > MaxInboxLimit {
		limit = MaxInboxLimit
	}

	projectInboxes, ok := b.inboxes[q.ProjectKey]
	if !ok {
		return nil, swarmerr.New(swarmerr.NotFound, "bus.FetchInbox", q.ProjectKey, "project does not exist")
	}

	var out []InboxEntry
	for _, m := range projectInboxes[q.Agent] {
		if q.UrgentOnly && m.Importance != ImportanceUrgent {
			continue
		}
		if q.SinceTS != nil && m.CreatedAt.Before(*q.SinceTS) {
			continue
		}
		entry := InboxEntry{
			ID: m.ID, Sender: m.Sender, To: m.To, Subject: m.Subject,
			ThreadID: m.ThreadID, Importance: m.Importance, AckRequired: m.AckRequired,
			CreatedAt: m.CreatedAt,
		}
		if q.IncludeBodies {
			entry.Body = m.Body
		}
		if t, ok := m.ReadAt[q.Agent]; ok {
			entry.ReadAt = &t
		}
		if t, ok := m.AckAt[q.Agent]; ok {
			entry.AckAt = &t
		}
		out = append(out, entry)
		if len(out) >= limit {
			return out, nil
		}
	}
	return out, nil
}

// MarkMessageRead records the read timestamp for the calling agent, inferred
// from the caller-supplied recipient context by the orchestrator layer.
// Here the agent identity travels with the call.
func (b *Broker) MarkMessageRead(ctx context.Context, messageID, agent string) (time.Time, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.byID[messageID]
	if !ok {
		return time.Time{}, swarmerr.New(swarmerr.NotFound, "bus.MarkMessageRead", messageID, "message does not exist")
	}

	if existing, ok := m.ReadAt[agent]; ok {
		return existing, nil // M1: monotonically non-decreasing, re-marking is a no-op
	}
	now := time.Now()
	m.ReadAt[agent] = now
	return now, nil
}

// AcknowledgeMessage records an acknowledgement for the calling agent.
func (b *Broker) AcknowledgeMessage(ctx context.Context, messageID, agent string) (time.Time, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.byID[messageID]
	if !ok {
		return time.Time{}, swarmerr.New(swarmerr.NotFound, "bus.AcknowledgeMessage", messageID, "message does not exist")
	}
	if !m.AckRequired {
		return time.Time{}, swarmerr.New(swarmerr.ValidationError, "bus.AcknowledgeMessage", messageID, "message does not require acknowledgement")
	}
	if existing, ok := m.AckAt[agent]; ok {
		return existing, nil
	}
	now := time.Now()
	m.AckAt[agent] = now
	return now, nil
}

// SearchMessages performs full-text search over subject+body within a project.
func (b *Broker) SearchMessages(ctx context.Context, projectKey, query string, limit int) ([]*Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx, ok := b.fts[projectKey]
	if !ok {
		return nil, swarmerr.New(swarmerr.NotFound, "bus.SearchMessages", projectKey, "project does not exist")
	}

	ids := idx.search(query)
	var out []*Message
	for _, id := range ids {
		if m, ok := b.byID[id]; ok {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
