package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"swarmcore/internal/swarmerr"
)

func TestRegisterAgent_GeneratesNameWhenOmitted(t *testing.T) {
	b := NewBroker()
	ctx := context.Background()
	_, err := b.EnsureProject(ctx, "proj-1")
	require.NoError(t, err)

	a1, err := b.RegisterAgent(ctx, "proj-1", "coder", "glm-4.7", "", "implement feature x")
	require.NoError(t, err)
	require.NotEmpty(t, a1.Name)

	a2, err := b.RegisterAgent(ctx, "proj-1", "tester", "glm-4.7", "", "write tests")
	require.NoError(t, err)
	require.NotEqual(t, a1.Name, a2.Name)
}

func TestRegisterAgent_ReRegistrationIsIdempotentByName(t *testing.T) {
	b := NewBroker()
	ctx := context.Background()
	_, _ = b.EnsureProject(ctx, "proj-1")

	a1, err := b.RegisterAgent(ctx, "proj-1", "coder", "model-a", "worker-1", "first task")
	require.NoError(t, err)

	a2, err := b.RegisterAgent(ctx, "proj-1", "coder", "model-b", "worker-1", "second task")
	require.NoError(t, err)

	require.Equal(t, a1.ID, a2.ID)
	require.Equal(t, "model-b", a2.Model)
}

func TestSendMessage_AtomicFanOut(t *testing.T) {
	b := NewBroker()
	ctx := context.Background()
	_, _ = b.EnsureProject(ctx, "proj-1")
	_, _ = b.RegisterAgent(ctx, "proj-1", "p", "m", "alice", "")
	_, _ = b.RegisterAgent(ctx, "proj-1", "p", "m", "bob", "")

	result, err := b.SendMessage(ctx, "proj-1", "alice", []string{"alice", "bob"}, "hi", "body text", "", ImportanceNormal, false)
	require.NoError(t, err)
	require.Equal(t, 2, result.Count)

	aliceInbox, err := b.FetchInbox(ctx, InboxQuery{ProjectKey: "proj-1", Agent: "alice", Limit: 10})
	require.NoError(t, err)
	require.Len(t, aliceInbox, 1)

	bobInbox, err := b.FetchInbox(ctx, InboxQuery{ProjectKey: "proj-1", Agent: "bob", Limit: 10})
	require.NoError(t, err)
	require.Len(t, bobInbox, 1)
}

func TestSendMessage_FailsWholeBatchOnUnknownRecipient(t *testing.T) {
	b := NewBroker()
	ctx := context.Background()
	_, _ = b.EnsureProject(ctx, "proj-1")
	_, _ = b.RegisterAgent(ctx, "proj-1", "p", "m", "alice", "")

	_, err := b.SendMessage(ctx, "proj-1", "alice", []string{"alice", "ghost"}, "hi", "body", "", ImportanceNormal, false)
	require.Error(t, err)
	require.True(t, swarmerr.IsKind(err, swarmerr.NotFound))

	inbox, err := b.FetchInbox(ctx, InboxQuery{ProjectKey: "proj-1", Agent: "alice", Limit: 10})
	require.NoError(t, err)
	require.Empty(t, inbox, "alice must receive nothing when fan-out fails atomically")
}

func TestFetchInbox_DefaultOmitsBodies(t *testing.T) {
	b := NewBroker()
	ctx := context.Background()
	_, _ = b.EnsureProject(ctx, "proj-1")
	_, _ = b.RegisterAgent(ctx, "proj-1", "p", "m", "alice", "")
	_, _ = b.RegisterAgent(ctx, "proj-1", "p", "m", "bob", "")
	_, err := b.SendMessage(ctx, "proj-1", "bob", []string{"alice"}, "subj", "secret body", "", ImportanceNormal, false)
	require.NoError(t, err)

	inbox, err := b.FetchInbox(ctx, InboxQuery{ProjectKey: "proj-1", Agent: "alice", Limit: 10})
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	require.Empty(t, inbox[0].Body)

	withBodies, err := b.FetchInbox(ctx, InboxQuery{ProjectKey: "proj-1", Agent: "alice", Limit: 10, IncludeBodies: true})
	require.NoError(t, err)
	require.Equal(t, "secret body", withBodies[0].Body)
}

func TestFetchInbox_UrgentOnly(t *testing.T) {
	b := NewBroker()
	ctx := context.Background()
	_, _ = b.EnsureProject(ctx, "proj-1")
	_, _ = b.RegisterAgent(ctx, "proj-1", "p", "m", "alice", "")
	_, _ = b.RegisterAgent(ctx, "proj-1", "p", "m", "bob", "")

	_, _ = b.SendMessage(ctx, "proj-1", "bob", []string{"alice"}, "normal", "b1", "", ImportanceNormal, false)
	_, _ = b.SendMessage(ctx, "proj-1", "bob", []string{"alice"}, "urgent", "b2", "", ImportanceUrgent, false)

	inbox, err := b.FetchInbox(ctx, InboxQuery{ProjectKey: "proj-1", Agent: "alice", Limit: 10, UrgentOnly: true})
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	require.Equal(t, "urgent", inbox[0].Subject)
}

func TestMarkMessageRead_MonotonicNonDecreasing(t *testing.T) {
	b := NewBroker()
	ctx := context.Background()
	_, _ = b.EnsureProject(ctx, "proj-1")
	_, _ = b.RegisterAgent(ctx, "proj-1", "p", "m", "alice", "")
	_, _ = b.RegisterAgent(ctx, "proj-1", "p", "m", "bob", "")
	result, _ := b.SendMessage(ctx, "proj-1", "bob", []string{"alice"}, "s", "b", "", ImportanceNormal, false)
	msgID := result.Deliveries[0].Payload.ID

	t1, err := b.MarkMessageRead(ctx, msgID, "alice")
	require.NoError(t, err)

	t2, err := b.MarkMessageRead(ctx, msgID, "alice")
	require.NoError(t, err)
	require.Equal(t, t1, t2, "re-marking read must not move the timestamp backward or forward")
}

func TestAcknowledgeMessage_RequiresAckRequired(t *testing.T) {
	b := NewBroker()
	ctx := context.Background()
	_, _ = b.EnsureProject(ctx, "proj-1")
	_, _ = b.RegisterAgent(ctx, "proj-1", "p", "m", "alice", "")
	_, _ = b.RegisterAgent(ctx, "proj-1", "p", "m", "bob", "")
	result, _ := b.SendMessage(ctx, "proj-1", "bob", []string{"alice"}, "s", "b", "", ImportanceNormal, false)
	msgID := result.Deliveries[0].Payload.ID

	_, err := b.AcknowledgeMessage(ctx, msgID, "alice")
	require.Error(t, err)

	result2, _ := b.SendMessage(ctx, "proj-1", "bob", []string{"alice"}, "s2", "b2", "", ImportanceNormal, true)
	msgID2 := result2.Deliveries[0].Payload.ID

	_, err = b.AcknowledgeMessage(ctx, msgID2, "alice")
	require.NoError(t, err)
}

func TestSearchMessages_MatchesSubjectAndBody(t *testing.T) {
	b := NewBroker()
	ctx := context.Background()
	_, _ = b.EnsureProject(ctx, "proj-1")
	_, _ = b.RegisterAgent(ctx, "proj-1", "p", "m", "alice", "")
	_, _ = b.RegisterAgent(ctx, "proj-1", "p", "m", "bob", "")

	_, _ = b.SendMessage(ctx, "proj-1", "bob", []string{"alice"}, "database migration", "running the migration now", "", ImportanceNormal, false)
	_, _ = b.SendMessage(ctx, "proj-1", "bob", []string{"alice"}, "unrelated", "nothing to see here", "", ImportanceNormal, false)

	results, err := b.SearchMessages(ctx, "proj-1", "migration", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "database migration", results[0].Subject)
}
