package connectivity

import (
	"errors"
	"testing"
	"time"

	"github.com/launchdarkly/go-client-sdk/internal/events"
	"github.com/launchdarkly/go-client-sdk/internal/flagstore"
	"github.com/launchdarkly/go-client-sdk/internal/sharedtest"

	ct "github.com/launchdarkly/go-configtypes"
	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/launchdarkly/go-sdk-common/v3/ldlogtest"
	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
	helpers "github.com/launchdarkly/go-test-helpers/v3"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	user1 = ldcontext.New("user1")
	user2 = ldcontext.New("user2")
)

type nullListener struct{}

func (nullListener) FlagsUpdated([]string)  {}
func (nullListener) UserUpdated()           {}
func (nullListener) ConnectionUnavailable() {}

type managerTestParams struct {
	manager    *Manager
	store      *flagstore.Store
	requestor  *sharedtest.FakeRequestor
	sender     *sharedtest.TestEventSender
	components chan Components
	mockLog    *ldlogtest.MockLog
}

func managerTest(t *testing.T, action func(p managerTestParams)) {
	mockLog := ldlogtest.NewMockLog()
	defer mockLog.DumpIfTestFailed(t)

	p := managerTestParams{
		store:      flagstore.NewStore(),
		requestor:  sharedtest.NewFakeRequestor(sharedtest.Flag("flagA", ldvalue.Bool(true), 1)),
		sender:     sharedtest.NewTestEventSender(),
		components: make(chan Components, 10),
		mockLog:    mockLog,
	}
	factory := func(cp ComponentsParams) (Components, error) {
		c := NewComponents(cp, p.requestor, p.sender, sharedtest.MakeBasicHTTPConfig(), nil)
		p.components <- c
		return c, nil
	}
	p.manager = NewManager(p.store, nullListener{}, factory, mockLog.Loggers)
	defer p.manager.Stop()

	action(p)
}

func (p managerTestParams) requireRequest(t *testing.T) ldcontext.Context {
	return helpers.RequireValue(t, p.requestor.Requests, time.Second, "timed out waiting for flag request")
}

func (p managerTestParams) requireBatch(t *testing.T) sharedtest.SentEvents {
	return helpers.RequireValue(t, p.sender.Batches, time.Second, "timed out waiting for events")
}

func TestInitialStateIsStopped(t *testing.T) {
	managerTest(t, func(p managerTestParams) {
		assert.Equal(t, Stopped, p.manager.State())
		assert.False(t, p.manager.GoOffline())
		assert.False(t, p.manager.GoOnline())
		assert.False(t, p.manager.SetContext(user1))
		assert.Equal(t, Stopped, p.manager.State())
	})
}

func TestStartWithInvalidConfigFails(t *testing.T) {
	managerTest(t, func(p managerTestParams) {
		c := sharedtest.MakeTestConfig()
		c.Main.MobileKey = ""
		assert.False(t, p.manager.Start(c, user1))
		assert.Equal(t, Stopped, p.manager.State())
		assert.Len(t, p.components, 0)
		p.mockLog.AssertMessageMatch(t, true, ldlog.Error, "Invalid configuration")
	})
}

func TestStartWithInvalidContextFails(t *testing.T) {
	managerTest(t, func(p managerTestParams) {
		assert.False(t, p.manager.Start(sharedtest.MakeTestConfig(), ldcontext.New("")))
		assert.Equal(t, Stopped, p.manager.State())
		p.mockLog.AssertMessageMatch(t, true, ldlog.Error, "Invalid context")
	})
}

func TestStartFetchesFlagsAndSendsIdentifyEvent(t *testing.T) {
	managerTest(t, func(p managerTestParams) {
		require.True(t, p.manager.Start(sharedtest.MakeTestConfig(), user1))
		assert.Equal(t, Online, p.manager.State())
		assert.Equal(t, "user1", p.requireRequest(t).Key())
		assert.True(t, p.manager.WaitForReady(time.Second))

		f, ok := p.store.Get("flagA", ldvalue.BoolType)
		require.True(t, ok)
		assert.Equal(t, ldvalue.Bool(true), f.Value)

		require.True(t, p.manager.Flush())
		assert.Equal(t, []string{events.IdentifyKind}, p.requireBatch(t).Kinds())
	})
}

func TestStartTwice(t *testing.T) {
	managerTest(t, func(p managerTestParams) {
		c := sharedtest.MakeTestConfig()
		require.True(t, p.manager.Start(c, user1))
		assert.True(t, p.manager.Start(c, user1))
		assert.Len(t, p.components, 1)

		other := c
		other.Main.EvaluationReasons = true
		assert.False(t, p.manager.Start(other, user1))
		assert.Equal(t, c, p.manager.Config())
	})
}

func TestStartTwiceWithNewContextSwitchesContext(t *testing.T) {
	managerTest(t, func(p managerTestParams) {
		c := sharedtest.MakeTestConfig()
		require.True(t, p.manager.Start(c, user1))
		assert.Equal(t, "user1", p.requireRequest(t).Key())

		require.True(t, p.manager.Start(c, user2))
		assert.Len(t, p.components, 1)
		assert.Equal(t, "user2", p.manager.CurrentContext().Key())
		assert.Equal(t, "user2", p.requireRequest(t).Key())

		assert.False(t, p.manager.Start(c, ldcontext.New("")))
		assert.Equal(t, "user2", p.manager.CurrentContext().Key())

		require.True(t, p.manager.Flush())
		assert.Equal(t, []string{events.IdentifyKind, events.IdentifyKind}, p.requireBatch(t).Kinds())
	})
}

func TestStartOffline(t *testing.T) {
	managerTest(t, func(p managerTestParams) {
		c := sharedtest.MakeTestConfig()
		c.Main.Offline = true
		require.True(t, p.manager.Start(c, user1))
		assert.Equal(t, Offline, p.manager.State())
		assert.False(t, p.manager.WaitForReady(time.Millisecond))

		p.manager.Enqueue(events.NewCustomEvent("e", user1, ldvalue.Null(), nil))
		assert.True(t, p.manager.Flush())
		helpers.AssertNoMoreValues(t, p.requestor.Requests, 50*time.Millisecond)
		helpers.AssertNoMoreValues(t, p.sender.Batches, 10*time.Millisecond)

		require.True(t, p.manager.GoOnline())
		assert.Equal(t, Online, p.manager.State())
		p.requireRequest(t)
		require.True(t, p.manager.Flush())
		assert.Equal(t, []string{events.IdentifyKind, events.CustomKind}, p.requireBatch(t).Kinds())
	})
}

func TestOfflineAndOnlineTransitions(t *testing.T) {
	managerTest(t, func(p managerTestParams) {
		require.True(t, p.manager.Start(sharedtest.MakeTestConfig(), user1))
		p.requireRequest(t)

		assert.True(t, p.manager.GoOffline())
		assert.True(t, p.manager.GoOffline())
		assert.Equal(t, Offline, p.manager.State())
		helpers.AssertNoMoreValues(t, p.requestor.Requests, 20*time.Millisecond)

		assert.True(t, p.manager.GoOnline())
		assert.True(t, p.manager.GoOnline())
		assert.Equal(t, Online, p.manager.State())
		p.requireRequest(t)
	})
}

func TestSetContextFetchesForNewContext(t *testing.T) {
	managerTest(t, func(p managerTestParams) {
		p.requestor.SetFlagsForContext("user2", sharedtest.Flag("flagA", ldvalue.String("two"), 1))
		require.True(t, p.manager.Start(sharedtest.MakeTestConfig(), user1))
		p.requireRequest(t)

		require.True(t, p.manager.SetContext(user2))
		assert.Equal(t, "user2", p.manager.CurrentContext().Key())
		assert.Equal(t, "user2", p.requireRequest(t).Key())
		require.Eventually(t, func() bool {
			f, ok := p.store.Get("flagA", ldvalue.StringType)
			return ok && f.Value.StringValue() == "two"
		}, time.Second, time.Millisecond)

		require.True(t, p.manager.Flush())
		assert.Equal(t, []string{events.IdentifyKind, events.IdentifyKind}, p.requireBatch(t).Kinds())

		assert.False(t, p.manager.SetContext(ldcontext.New("")))
		assert.Equal(t, "user2", p.manager.CurrentContext().Key())
	})
}

func TestStopIsIdempotent(t *testing.T) {
	managerTest(t, func(p managerTestParams) {
		assert.True(t, p.manager.Stop())
		require.True(t, p.manager.Start(sharedtest.MakeTestConfig(), user1))
		assert.True(t, p.manager.Stop())
		assert.Equal(t, Stopped, p.manager.State())
		assert.True(t, p.manager.Stop())
		assert.Equal(t, Stopped, p.manager.State())
	})
}

func TestStopFlushesEventsAndEndsNetworkActivity(t *testing.T) {
	managerTest(t, func(p managerTestParams) {
		c := sharedtest.MakeTestConfig()
		require.True(t, p.manager.Start(c, user1))
		p.requireRequest(t)
		p.manager.Enqueue(events.NewCustomEvent("e", user1, ldvalue.Null(), nil))

		require.True(t, p.manager.Stop())
		assert.Equal(t, []string{events.IdentifyKind, events.CustomKind}, p.requireBatch(t).Kinds())
		helpers.AssertNoMoreValues(t, p.requestor.Requests, 50*time.Millisecond)
		helpers.AssertNoMoreValues(t, p.sender.Batches, 10*time.Millisecond)
	})
}

func TestStopWhileDeliveryIsPendingIsBounded(t *testing.T) {
	managerTest(t, func(p managerTestParams) {
		release := p.sender.Block()
		defer release()
		c := sharedtest.MakeTestConfig()
		require.True(t, p.manager.Start(c, user1))

		go p.manager.Flush()
		time.Sleep(20 * time.Millisecond)

		start := time.Now()
		assert.True(t, p.manager.Stop())
		assert.Less(t, time.Since(start), 3*c.Connection.StopTimeout.GetOrElse(0))
		helpers.AssertNoMoreValues(t, p.sender.Batches, 50*time.Millisecond)
	})
}

func TestStoppedClientKeepsFlagsAndBuffersEvents(t *testing.T) {
	managerTest(t, func(p managerTestParams) {
		require.True(t, p.manager.Start(sharedtest.MakeTestConfig(), user1))
		require.True(t, p.manager.WaitForReady(time.Second))
		require.True(t, p.manager.Flush())
		p.requireBatch(t)
		p.manager.Stop()

		_, ok := p.store.Get("flagA", ldvalue.BoolType)
		assert.True(t, ok)

		p.manager.Enqueue(events.NewCustomEvent("while-stopped", user1, ldvalue.Null(), nil))
		assert.False(t, p.manager.Flush())
		helpers.AssertNoMoreValues(t, p.sender.Batches, 50*time.Millisecond)

		require.True(t, p.manager.Start(sharedtest.MakeTestConfig(), user1))
		require.True(t, p.manager.Flush())
		assert.Equal(t, []string{events.CustomKind, events.IdentifyKind}, p.requireBatch(t).Kinds())
	})
}

func TestRestartCreatesFreshComponents(t *testing.T) {
	managerTest(t, func(p managerTestParams) {
		require.True(t, p.manager.Start(sharedtest.MakeTestConfig(), user1))
		first := helpers.RequireValue(t, p.components, time.Second)
		p.manager.Stop()

		c := sharedtest.MakeTestConfig()
		c.Main.EvaluationReasons = true
		require.True(t, p.manager.Start(c, user2))
		second := helpers.RequireValue(t, p.components, time.Second)

		assert.NotSame(t, first.Synchronizer, second.Synchronizer)
		assert.NotSame(t, first.Processor, second.Processor)
		assert.Equal(t, "user2", p.manager.CurrentContext().Key())
	})
}

func TestStartClearsStore(t *testing.T) {
	managerTest(t, func(p managerTestParams) {
		p.store.ApplyUpdate([]flagstore.FlagRecord{sharedtest.Flag("stale", ldvalue.Int(1), 1)})
		release := p.requestor.Block()
		defer release()
		require.True(t, p.manager.Start(sharedtest.MakeTestConfig(), user1))
		_, ok := p.store.Lookup("stale")
		assert.False(t, ok)
	})
}

func TestEventCapacityChangeKeepsNewestEvents(t *testing.T) {
	managerTest(t, func(p managerTestParams) {
		for i := 0; i < 5; i++ {
			p.manager.Enqueue(events.NewCustomEvent("e", user1, ldvalue.Int(i), nil))
		}
		c := sharedtest.MakeTestConfig()
		c.Events.Capacity = mustOptInt(t, 3)
		c.Main.Offline = true
		require.True(t, p.manager.Start(c, user1))
		p.mockLog.AssertMessageMatch(t, true, ldlog.Warn, "Discarded 2 buffered event")

		require.True(t, p.manager.GoOnline())
		require.True(t, p.manager.Flush())
		batch := p.requireBatch(t)
		assert.Equal(t, 3, batch.Count)
		assert.Equal(t, []string{events.CustomKind, events.CustomKind, events.IdentifyKind}, batch.Kinds())
	})
}

func TestFactoryErrorFailsStart(t *testing.T) {
	mockLog := ldlogtest.NewMockLog()
	factory := func(ComponentsParams) (Components, error) { return Components{}, errors.New("sorry") }
	m := NewManager(flagstore.NewStore(), nullListener{}, factory, mockLog.Loggers)
	assert.False(t, m.Start(sharedtest.MakeTestConfig(), user1))
	assert.Equal(t, Stopped, m.State())
	mockLog.AssertMessageMatch(t, true, ldlog.Error, "Unable to start client: sorry")
}

func TestDefaultComponentsFactory(t *testing.T) {
	c := sharedtest.MakeTestConfig()
	components, err := DefaultComponentsFactory(ComponentsParams{
		Config:   c,
		Context:  user1,
		Store:    flagstore.NewStore(),
		Queue:    events.NewEventQueue(10),
		Listener: nullListener{},
		Offline:  true,
		Loggers:  ldlog.NewDisabledLoggers(),
	})
	require.NoError(t, err)
	require.NotNil(t, components.Cache)
	components.Synchronizer.Close(time.Second)
	components.Processor.Close(time.Second)
	assert.NoError(t, components.Cache.Close())

	c.Cache.Disabled = true
	components, err = DefaultComponentsFactory(ComponentsParams{
		Config: c, Context: user1, Store: flagstore.NewStore(), Queue: events.NewEventQueue(10),
		Listener: nullListener{}, Offline: true, Loggers: ldlog.NewDisabledLoggers(),
	})
	require.NoError(t, err)
	assert.Nil(t, components.Cache)
	components.Processor.Close(time.Second)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Stopped", Stopped.String())
	assert.Equal(t, "Online", Online.String())
	assert.Equal(t, "Offline", Offline.String())
}

func mustOptInt(t *testing.T, n int) ct.OptIntGreaterThanZero {
	o, err := ct.NewOptIntGreaterThanZero(n)
	require.NoError(t, err)
	return o
}
