package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Register_CreatesOnFirstCall(t *testing.T) {
	reg := NewRegistry(nil)

	m := reg.Register("tok1", "box-1", "build")
	assert.Equal(t, "tok1", m.Token)
	assert.Equal(t, "box-1", m.SandboxID)
	assert.Equal(t, "build", m.TaskName)
	assert.False(t, m.CreatedAt.IsZero())
	assert.Equal(t, m.CreatedAt, m.UpdatedAt)
}

func TestRegistry_Register_UpdatesNonEmptyFieldsOnly(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register("tok1", "box-1", "build")

	m := reg.Register("tok1", "", "deploy")
	assert.Equal(t, "box-1", m.SandboxID, "empty sandboxID on update must not clobber the existing value")
	assert.Equal(t, "deploy", m.TaskName)
}

func TestRegistry_Register_AlwaysBumpsUpdatedAt(t *testing.T) {
	reg := NewRegistry(nil)
	first := reg.Register("tok1", "box", "task")
	second := reg.Register("tok1", "box", "task")
	assert.True(t, !second.UpdatedAt.Before(first.UpdatedAt))
}

func TestRegistry_Register_FiresHook(t *testing.T) {
	var fired []Meta
	reg := NewRegistry(func(m Meta) { fired = append(fired, m) })

	reg.Register("tok1", "", "")
	require.Len(t, fired, 1)
	assert.Equal(t, "tok1", fired[0].Token)
}

func TestRegistry_Touch_CreatesImplicitly(t *testing.T) {
	reg := NewRegistry(nil)
	m := reg.Touch("new-token")
	assert.Equal(t, "new-token", m.Token)
}

func TestRegistry_Touch_DoesNotOverwriteFields(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register("tok1", "box-1", "build")
	m := reg.Touch("tok1")
	assert.Equal(t, "box-1", m.SandboxID)
}

func TestRegistry_Subscribe_ReceivesRegisterAndTouch(t *testing.T) {
	reg := NewRegistry(nil)
	ch, unsubscribe := reg.Subscribe()
	defer unsubscribe()

	reg.Register("tok1", "box-1", "build")
	select {
	case m := <-ch:
		assert.Equal(t, "tok1", m.Token)
	default:
		t.Fatal("expected a subscriber event from Register")
	}

	reg.Touch("tok1")
	select {
	case m := <-ch:
		assert.Equal(t, "tok1", m.Token)
	default:
		t.Fatal("expected a subscriber event from Touch")
	}
}

func TestRegistry_Unsubscribe_StopsDelivery(t *testing.T) {
	reg := NewRegistry(nil)
	ch, unsubscribe := reg.Subscribe()
	unsubscribe()

	reg.Register("tok1", "", "")
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be neither written to nor closed, just idle")
	default:
	}
}

func TestRegistry_Snapshot_IsStableCopy(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register("a", "", "")
	reg.Register("b", "", "")

	snap := reg.Snapshot()
	assert.Len(t, snap, 2)

	snap[0].TaskName = "mutated"
	snap2 := reg.Snapshot()
	for _, m := range snap2 {
		assert.NotEqual(t, "mutated", m.TaskName)
	}
}
