package invalidate

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shnupta/porter/event"
)

func decode(t *testing.T, frame string) *event.Envelope {
	t.Helper()
	env, err := event.Decode([]byte(frame))
	require.NoError(t, err)
	return env
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "tasks", Static(KeyTasks).String())
	assert.Equal(t, "agent-session:s1", Detail(KeyAgentSession, "s1").String())
}

func TestDefaultRulesTaskEvents(t *testing.T) {
	r := NewRouter(InvalidatorFunc(func(Key) {}), DefaultRules())

	for _, kind := range []string{event.KindTaskCreated, event.KindTaskUpdated, event.KindTaskDeleted} {
		t.Run(kind, func(t *testing.T) {
			env := decode(t, fmt.Sprintf(`{"type":%q,"data":{"id":"t1"}}`, kind))
			keys := r.Route(env)
			assert.Equal(t, []Key{Static(KeyTasks), Static(KeyServerStatus)}, keys)
		})
	}
}

func TestDefaultRulesAgentStatusChanged(t *testing.T) {
	r := NewRouter(InvalidatorFunc(func(Key) {}), DefaultRules())

	tests := []struct {
		status string
		want   []Key
	}{
		{"running", []Key{Static(KeyAgentSessions), Static(KeyServerStatus)}},
		{"paused", []Key{Static(KeyAgentSessions), Static(KeyServerStatus)}},
		{"cancelled", []Key{Static(KeyAgentSessions), Static(KeyServerStatus)}},
		{"completed", []Key{
			Static(KeyAgentSessions), Static(KeyServerStatus),
			Detail(KeyAgentSession, "s1"), Detail(KeyAgentMessages, "s1"),
		}},
		{"failed", []Key{
			Static(KeyAgentSessions), Static(KeyServerStatus),
			Detail(KeyAgentSession, "s1"), Detail(KeyAgentMessages, "s1"),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			env := decode(t, fmt.Sprintf(
				`{"type":"AgentStatusChanged","data":{"session_id":"s1","status":%q}}`, tt.status))
			assert.Equal(t, tt.want, r.Route(env))
		})
	}
}

func TestDefaultRulesAgentStatusMissingSessionID(t *testing.T) {
	r := NewRouter(InvalidatorFunc(func(Key) {}), DefaultRules())

	// The detail rule matches but both templates silently omit their keys.
	env := decode(t, `{"type":"AgentStatusChanged","data":{"status":"completed"}}`)
	assert.Equal(t, []Key{Static(KeyAgentSessions), Static(KeyServerStatus)}, r.Route(env))
}

func TestDefaultRulesAgentOutputTouchesSessionListOnly(t *testing.T) {
	r := NewRouter(InvalidatorFunc(func(Key) {}), DefaultRules())

	env := decode(t, `{"type":"AgentOutput","data":{"session_id":"s1","content":"x","content_type":"text"}}`)
	assert.Equal(t, []Key{Static(KeyAgentSessions)}, r.Route(env))
}

func TestDefaultRulesNotification(t *testing.T) {
	r := NewRouter(InvalidatorFunc(func(Key) {}), DefaultRules())

	env := decode(t, `{"type":"Notification","data":{"id":"n1","message":"hi"}}`)
	assert.Equal(t, []Key{Static(KeyNotifications)}, r.Route(env))
}

func TestUnmappedKindProducesNoKeys(t *testing.T) {
	r := NewRouter(InvalidatorFunc(func(Key) {}), DefaultRules())

	env := decode(t, `{"type":"SomethingNew","data":{}}`)
	assert.Empty(t, r.Route(env))
}

func TestRouteDeduplicatesAcrossRules(t *testing.T) {
	rules := []Rule{
		{EventKind: "X", Keys: []KeyTemplate{StaticKey("a"), StaticKey("b")}},
		{EventKind: "X", Keys: []KeyTemplate{StaticKey("b"), StaticKey("c"), StaticKey("a")}},
	}
	r := NewRouter(InvalidatorFunc(func(Key) {}), rules)

	env := &event.Envelope{Type: "X"}
	assert.Equal(t, []Key{Static("a"), Static("b"), Static("c")}, r.Route(env))
}

func TestPredicateGatesRule(t *testing.T) {
	calls := 0
	rules := []Rule{
		{
			EventKind: "X",
			When:      func(*event.Envelope) bool { return false },
			Keys: []KeyTemplate{func(*event.Envelope) (Key, bool) {
				calls++
				return Static("never"), true
			}},
		},
	}
	r := NewRouter(InvalidatorFunc(func(Key) {}), rules)

	assert.Empty(t, r.Route(&event.Envelope{Type: "X"}))
	assert.Zero(t, calls, "templates of a gated rule must not be evaluated")
}

func TestHandleEnvelopeEmitsOnePerKey(t *testing.T) {
	var emitted []Key
	r := NewRouter(InvalidatorFunc(func(k Key) { emitted = append(emitted, k) }), DefaultRules())

	env := decode(t, `{"type":"AgentStatusChanged","data":{"session_id":"s1","status":"failed"}}`)
	r.HandleEnvelope(env)

	assert.Equal(t, []Key{
		Static(KeyAgentSessions), Static(KeyServerStatus),
		Detail(KeyAgentSession, "s1"), Detail(KeyAgentMessages, "s1"),
	}, emitted)
}

func TestRouteIsDeterministic(t *testing.T) {
	r := NewRouter(InvalidatorFunc(func(Key) {}), DefaultRules())
	env := decode(t, `{"type":"AgentStatusChanged","data":{"session_id":"s1","status":"completed"}}`)

	first := r.Route(env)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, r.Route(env))
	}
}
