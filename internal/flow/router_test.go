package flow

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/HealthPipe/internal/models"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in      string
		cmd     string
		arg     string
		matched bool
	}{
		{"help", CmdHelp, "", true},
		{"  HELP ", CmdHelp, "", true},
		{"/Diagnose", CmdDiagnose, "", true},
		{"medication", CmdMedication, "", true},
		{"ask is coffee bad?", CmdAsk, "is coffee bad?", true},
		{"/ask", CmdAsk, "", true},
		{"start now", "", "", false},
		{"helpful", "", "", false},
		{"fever", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		cmd, arg, ok := parseCommand(tt.in)
		assert.Equal(t, tt.matched, ok, tt.in)
		assert.Equal(t, tt.cmd, cmd, tt.in)
		assert.Equal(t, tt.arg, arg, tt.in)
	}
}

func TestIdleInputGetsGenericReply(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, idleReply, h.send(user, "hello there"))
	assert.True(t, h.session(user).State.IsIdle())
}

func TestLaunchRequiresOnboarding(t *testing.T) {
	h := newHarness(t)
	for _, cmd := range []string{"diagnose", "assessment", "fitness", "meal", "cycle", "medication"} {
		reply := h.send(user, cmd)
		assert.Contains(t, reply, "send *start*", cmd)
		assert.True(t, h.session(user).State.IsIdle(), cmd)
	}
}

func TestCycleRequiresApplicableProfile(t *testing.T) {
	h := newHarness(t)
	h.send(user, "start")
	h.send(user, "accept")
	h.sendAll(user, "Jane", "29", "female", "165", "60", "Boston", "none", "none", "none", "none", "none")
	h.send(user, "never")

	reply := h.send(user, "cycle")
	assert.Contains(t, reply, "only available")
	assert.True(t, h.session(user).State.IsIdle())
}

func TestStartWhenRegisteredIsNotice(t *testing.T) {
	h := newHarness(t)
	h.onboard(user)
	assert.Contains(t, h.send(user, "start"), "already registered")
	assert.True(t, h.session(user).State.IsIdle())
}

func TestTermsOnlyAcceptOrDeny(t *testing.T) {
	h := newHarness(t)
	h.send(user, "start")

	for _, text := range []string{"diagnose", "maybe", "start"} {
		assert.Equal(t, "Please reply *accept* or *deny*.", h.send(user, text), text)
		assert.Equal(t, models.StateAwaitingTermsResponse, h.session(user).State)
	}
	assert.Contains(t, h.send(user, "help"), "step 1 of 1")
	assert.Contains(t, h.send(user, "cancel"), "Cancelled")
	assert.True(t, h.session(user).State.IsIdle())
}

func TestCancel(t *testing.T) {
	h := newHarness(t)
	assert.Contains(t, h.send(user, "cancel"), "nothing to cancel")

	h.onboard(user)
	h.send(user, "diagnose")
	h.send(user, "fever")
	assert.Contains(t, h.send(user, "/CANCEL"), "Cancelled")
	sess := h.session(user)
	assert.True(t, sess.State.IsIdle())
	assert.Empty(t, sess.Answers)
}

func TestLaunchMidFlowAbandonsCurrentFlow(t *testing.T) {
	h := newHarness(t)
	h.onboard(user)
	h.send(user, "diagnose")
	h.send(user, "fever")

	reply := h.send(user, "fitness")
	assert.Contains(t, reply, "fitness goal")
	sess := h.session(user)
	assert.Equal(t, models.StateFitness, sess.State)
	assert.Equal(t, 0, sess.StepIndex)
	assert.Empty(t, sess.Answers)
}

func TestHelpShowsPosition(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, helpText, h.send(user, "help"))

	h.onboard(user)
	h.send(user, "fitness")
	h.send(user, "endurance")
	reply := h.send(user, "help")
	assert.Contains(t, reply, "You are in the fitness plan (step 2 of 4)")
	assert.Equal(t, 1, h.session(user).StepIndex, "help does not change state")
}

func TestAskAnswersWithoutChangingState(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, "Yes, in moderation.", h.send(user, "ask is coffee ok?"))
	assert.Contains(t, h.send(user, "ask"), "Please add your question")

	h.onboard(user)
	h.send(user, "meal")
	reply := h.send(user, "Ask can I eat eggs?")
	assert.Contains(t, reply, "Yes, in moderation.")
	assert.Contains(t, reply, "Back to where we were: Do you follow a particular diet?")
	assert.Equal(t, models.StateMeal, h.session(user).State)
	assert.Equal(t, 0, h.session(user).StepIndex)
}

func TestConcurrentUsersAreIndependent(t *testing.T) {
	h := newHarness(t)
	const users = 40

	var wg sync.WaitGroup
	for i := range users {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			h.send(id, "start")
			h.send(id, "accept")
			h.sendAll(id, "Sam", "35", "male", "170", "70", "Austin", "none", "none", "none", "none")
			h.send(id, "never")
			h.send(id, "diagnose")
			h.sendAll(id, "cough", "mild", "2 days")
		}(fmt.Sprintf("1555000%04d", i))
	}
	wg.Wait()

	for i := range users {
		id := fmt.Sprintf("1555000%04d", i)
		assert.Equal(t, 1, h.store.DiagnosisCount(id), id)
		assert.True(t, h.session(id).State.IsIdle(), id)
	}
	assert.Len(t, h.analyst.symptomCalls, users)
}

func TestMessagesForSameUserAreSerialized(t *testing.T) {
	h := newHarness(t)
	h.onboard(user)
	h.send(user, "diagnose")
	h.sendAll(user, "fever", "moderate")

	h.analyst.block = make(chan struct{})
	h.analyst.entered = make(chan struct{}, 1)

	first := make(chan string, 1)
	go func() { first <- h.send(user, "3 days") }()
	<-h.analyst.entered

	second := make(chan string, 1)
	go func() { second <- h.send(user, "help") }()

	select {
	case <-second:
		t.Fatal("second message was handled while the first was still finalizing")
	case <-time.After(50 * time.Millisecond):
	}

	close(h.analyst.block)
	assert.Contains(t, <-first, "viral infection")
	assert.Equal(t, helpText, <-second, "help runs after the flow finished")
}

func TestKeyedMutexReleasesKeys(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("a")
	done := make(chan struct{})
	go func() {
		u := k.Lock("a")
		u()
		close(done)
	}()
	unlockB := k.Lock("b")
	unlockB()
	unlock()
	<-done

	k.mu.Lock()
	defer k.mu.Unlock()
	assert.Empty(t, k.locks)
}

func TestSessionStoreReturnsCopies(t *testing.T) {
	s := NewInMemorySessionStore()
	sess := s.Get("u1")
	assert.True(t, sess.State.IsIdle())
	assert.Equal(t, 1, s.Len())

	sess.Enter(models.StateMeal, map[string]string{"a": "b"})
	assert.True(t, s.Get("u1").State.IsIdle(), "changes need Put")

	s.Put(sess)
	got := s.Get("u1")
	got.Answers["a"] = "mutated"
	assert.Equal(t, "b", s.Get("u1").Answers["a"])

	s.Reset("u1")
	got = s.Get("u1")
	assert.True(t, got.State.IsIdle())
	assert.Empty(t, got.Answers)
	require.Equal(t, 0, got.StepIndex)
}

func TestEngineBeginUnknownState(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, idleReply, h.engine.Begin(context.Background(), user, models.FlowState("BOGUS"), nil))
	assert.True(t, h.session(user).State.IsIdle())
}
