package turn

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/klarahealth/agentcore/pkg/bus"
	"github.com/klarahealth/agentcore/pkg/graph"
	"github.com/klarahealth/agentcore/pkg/llms"
	"github.com/klarahealth/agentcore/pkg/specialists"
	"github.com/klarahealth/agentcore/pkg/storage"
	"github.com/klarahealth/agentcore/pkg/tasks"
	"github.com/klarahealth/agentcore/pkg/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider answers with a single fixed text reply and never requests a
// tool call, so every test run is a one-iteration turn. It keeps the
// messages of its last streaming call for inspection.
type fakeProvider struct {
	reply        string
	lastMessages []llms.Message
}

func (f *fakeProvider) Generate(ctx context.Context, messages []llms.Message, toolDefs []llms.ToolDefinition) (string, []llms.ToolCall, int, error) {
	return f.reply, nil, len(f.reply), nil
}

func (f *fakeProvider) GenerateStreaming(ctx context.Context, messages []llms.Message, toolDefs []llms.ToolDefinition) (<-chan llms.StreamChunk, error) {
	f.lastMessages = messages
	ch := make(chan llms.StreamChunk, 2)
	ch <- llms.StreamChunk{Type: "text", Text: f.reply, Tokens: len(f.reply)}
	ch <- llms.StreamChunk{Type: "done"}
	close(ch)
	return ch, nil
}

func (f *fakeProvider) GetModelName() string    { return "fake-model" }
func (f *fakeProvider) GetMaxTokens() int       { return 4096 }
func (f *fakeProvider) GetTemperature() float64 { return 0 }
func (f *fakeProvider) Close() error            { return nil }

var _ llms.LLMProvider = (*fakeProvider)(nil)

func newTestRuntime(t *testing.T, reply string) (*Runtime, *storage.Store, *bus.MemoryBus) {
	t.Helper()
	store, err := storage.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	catalogue, err := specialists.Load(storage.SpecialistStore{Store: store, Ctx: context.Background()})
	require.NoError(t, err)

	engine := &graph.Engine{
		MainSystemPrompt: "you are a clinical assistant",
		Registry:         tools.NewRegistry(),
		Catalogue:        catalogue,
		Provider:         &fakeProvider{reply: reply},
	}

	memBus := bus.NewMemoryBus()
	rt := &Runtime{
		Store:    store,
		Bus:      memBus,
		Resolver: store,
		Engine:   engine,
	}
	return rt, store, memBus
}

func createPendingTurn(t *testing.T, store *storage.Store, sessionID, userMsgID, assistantMsgID string) {
	t.Helper()
	ctx := context.Background()
	_, err := store.CreateSession(ctx, sessionID, "")
	require.NoError(t, err)
	require.NoError(t, store.CreateMessage(ctx, &storage.ChatMessage{
		ID: userMsgID, SessionID: sessionID, Role: storage.RoleUser, Content: "hello", Status: storage.StatusCompleted,
	}))
	require.NoError(t, store.CreateMessage(ctx, &storage.ChatMessage{
		ID: assistantMsgID, SessionID: sessionID, Role: storage.RoleAssistant, Status: storage.StatusPending,
	}))
}

func TestRunTurn_CompletesAndPersistsFinalContent(t *testing.T) {
	rt, store, _ := newTestRuntime(t, "the patient's labs look stable")
	createPendingTurn(t, store, "sess-1", "u1", "a1")

	err := rt.RunTurn(context.Background(), tasks.Job{
		TaskID: "task-1", SessionID: "sess-1", AssistantMessageID: "a1", UserID: "u1", UserMessageText: "how is the patient",
	})
	require.NoError(t, err)

	msg, err := store.GetMessage(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusCompleted, msg.Status)
	assert.Equal(t, "the patient's labs look stable", msg.Content)
	assert.True(t, msg.CompletedAt.Valid)
}

func TestRunTurn_PublishesContentAndDoneFrames(t *testing.T) {
	rt, store, memBus := newTestRuntime(t, "all good")
	createPendingTurn(t, store, "sess-2", "u1", "a2")

	frames, unsubscribe, err := memBus.Subscribe(context.Background(), bus.ChannelFor("a2"))
	require.NoError(t, err)
	defer unsubscribe()

	done := make(chan error, 1)
	go func() {
		done <- rt.RunTurn(context.Background(), tasks.Job{
			TaskID: "task-2", SessionID: "sess-2", AssistantMessageID: "a2", UserID: "u1", UserMessageText: "status?",
		})
	}()
	require.NoError(t, <-done)

	var sawContent, sawDone bool
	for {
		select {
		case raw := <-frames:
			var f map[string]interface{}
			require.NoError(t, json.Unmarshal(raw, &f))
			switch f["type"] {
			case "content":
				sawContent = true
			case "done":
				sawDone = true
			}
			if sawDone {
				assert.True(t, sawContent)
				return
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for done frame")
		}
	}
}

func TestRunTurn_InjectsPatientContextPrefix(t *testing.T) {
	rt, store, _ := newTestRuntime(t, "noted")
	createPendingTurn(t, store, "sess-3", "u1", "a3")
	require.NoError(t, store.UpsertPatient(context.Background(), storage.Patient{ID: "23", Name: "Jane Roe", DOB: "1985-03-02", Gender: "female"}))

	err := rt.RunTurn(context.Background(), tasks.Job{
		TaskID: "task-3", SessionID: "sess-3", AssistantMessageID: "a3", UserID: "u1", UserMessageText: "summarize", PatientID: "23",
	})
	require.NoError(t, err)

	msg, err := store.GetMessage(context.Background(), "a3")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusCompleted, msg.Status)

	provider := rt.Engine.Provider.(*fakeProvider)
	require.NotEmpty(t, provider.lastMessages)
	last := provider.lastMessages[len(provider.lastMessages)-1]
	assert.Equal(t, "Context: Patient Jane Roe (DOB: 1985-03-02, Gender: female). summarize", last.Content)
}

func TestRunTurn_UnknownRecordIDStillCompletes(t *testing.T) {
	rt, store, _ := newTestRuntime(t, "ok")
	createPendingTurn(t, store, "sess-4", "u1", "a4")

	err := rt.RunTurn(context.Background(), tasks.Job{
		TaskID: "task-4", SessionID: "sess-4", AssistantMessageID: "a4", UserID: "u1", UserMessageText: "q", RecordID: "nonexistent",
	})
	require.NoError(t, err)

	msg, err := store.GetMessage(context.Background(), "a4")
	require.NoError(t, err)
	assert.Equal(t, storage.StatusCompleted, msg.Status)
}

func TestRunTurn_DetectsPatientReferenceInFinalContent(t *testing.T) {
	rt, store, memBus := newTestRuntime(t, "Jane Roe is doing well today.")
	createPendingTurn(t, store, "sess-5", "u1", "a5")
	require.NoError(t, store.UpsertPatient(context.Background(), storage.Patient{ID: "23", Name: "Jane Roe"}))

	frames, unsubscribe, err := memBus.Subscribe(context.Background(), bus.ChannelFor("a5"))
	require.NoError(t, err)
	defer unsubscribe()

	done := make(chan error, 1)
	go func() {
		done <- rt.RunTurn(context.Background(), tasks.Job{
			TaskID: "task-5", SessionID: "sess-5", AssistantMessageID: "a5", UserID: "u1", UserMessageText: "how is she", PatientID: "23",
		})
	}()
	require.NoError(t, <-done)

	msg, err := store.GetMessage(context.Background(), "a5")
	require.NoError(t, err)
	assert.Contains(t, msg.PatientReferencesJSON, "23")

	for {
		select {
		case raw := <-frames:
			var f map[string]interface{}
			require.NoError(t, json.Unmarshal(raw, &f))
			if f["type"] == "patient_references" {
				return
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for patient_references frame")
		}
	}
}
