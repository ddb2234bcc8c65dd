package appctx

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/cucumber/godog"

	"github.com/GoCodeAlone/appctx/event"
	"github.com/GoCodeAlone/appctx/registry"
)

// Static error variables for BDD tests
var (
	errContainerNotCreated = errors.New("container was not created in background")
	errUnexpectedOrder     = errors.New("unexpected order")
	errRefreshSucceeded    = errors.New("expected refresh to fail")
	errWrongCount          = errors.New("unexpected execution count")
	errWrongState          = errors.New("unexpected container state")
	errNotSame             = errors.New("lookups returned different instances")
)

// refreshBDDContext holds the state of one scenario.
type refreshBDDContext struct {
	container  *Container
	log        *journal
	extensions map[string]*plainRegistryExt
	hook       RefreshHook

	refreshErr error
	secondErr  error

	texts     []string
	refreshed int
	worker    *service
}

func (b *refreshBDDContext) reset() {
	*b = refreshBDDContext{
		log:        &journal{},
		extensions: make(map[string]*plainRegistryExt),
	}
}

func (b *refreshBDDContext) iHaveANewContainer() error {
	c, err := New(
		WithLogger(NewSlogLogger(nil, "error")),
		WithRefreshHook(func(ctx context.Context, c *Container) error {
			if b.hook == nil {
				return nil
			}
			return b.hook(ctx, c)
		}),
	)
	if err != nil {
		return err
	}
	b.container = c
	return nil
}

func (b *refreshBDDContext) register(name string, def *registry.Definition) error {
	if b.container == nil {
		return errContainerNotCreated
	}
	return b.container.RegisterDefinition(name, def)
}

// plain returns the unordered extension named id, creating it on first use.
func (b *refreshBDDContext) plain(id string) *plainRegistryExt {
	if ext, ok := b.extensions[id]; ok {
		return ext
	}
	ext := &plainRegistryExt{id: id, log: b.log}
	b.extensions[id] = ext
	return ext
}

func (b *refreshBDDContext) aRegistryExtensionThatRegistersTwo(root, first, second string) error {
	ext := b.plain(root)
	for _, child := range []string{first, second} {
		ext.adds = append(ext.adds, addition{child, registry.Instance(b.plain(child))})
	}
	return b.register(root, registry.Instance(ext))
}

func (b *refreshBDDContext) theRegistryExtensionRegisters(parent, child string) error {
	ext := b.plain(parent)
	ext.adds = append(ext.adds, addition{child, registry.Instance(b.plain(child))})
	return nil
}

func (b *refreshBDDContext) anUnorderedRegistryExtension(id string) error {
	return b.register(id, registry.Instance(b.plain(id)))
}

func (b *refreshBDDContext) anOrderedRegistryExtension(id string, order int) error {
	ext := &orderedRegistryExt{plainRegistryExt: plainRegistryExt{id: id, log: b.log}, order: order}
	return b.register(id, registry.Instance(ext))
}

func (b *refreshBDDContext) aHighestPriorityRegistryExtension(id string) error {
	ext := &highestRegistryExt{plainRegistryExt{id: id, log: b.log}}
	return b.register(id, registry.Instance(ext))
}

func (b *refreshBDDContext) aFailingRegistryExtension(id string) error {
	ext := &plainRegistryExt{id: id, log: b.log, fail: errBoom}
	return b.register(id, registry.Instance(ext))
}

func (b *refreshBDDContext) aListenerRecordingTextEvents() error {
	return b.container.AddListener(event.OnPayload(func(_ context.Context, s string) error {
		b.texts = append(b.texts, s)
		return nil
	}))
}

func (b *refreshBDDContext) iPublishTextEventsBeforeRefreshing(list string) error {
	for _, text := range splitList(list) {
		if err := b.container.PublishEvent(context.Background(), text); err != nil {
			return err
		}
	}
	return nil
}

func (b *refreshBDDContext) aListenerComponentRecordingEventTypes(name string) error {
	return b.register(name, registry.Instance(&collector{log: b.log}))
}

func (b *refreshBDDContext) aRefreshHookThatRegistersAListener(name string) error {
	b.hook = func(_ context.Context, c *Container) error {
		return c.RegisterDefinition(name, registry.OfType[*lateListener]())
	}
	return nil
}

func (b *refreshBDDContext) aSingletonComponent(name string) error {
	return b.register(name, registry.OfType[*widget]())
}

func (b *refreshBDDContext) aListenerThatFailsOnRefreshed() error {
	return b.container.AddListener(event.On(func(context.Context, *RefreshedEvent) error {
		return errBoom
	}))
}

func (b *refreshBDDContext) aListenerRecordingRefreshed() error {
	return b.container.AddListener(event.On(func(context.Context, *RefreshedEvent) error {
		b.refreshed++
		return nil
	}))
}

func (b *refreshBDDContext) aLifecycleComponent(name string) error {
	b.worker = &service{id: name, log: b.log}
	return b.register(name, registry.Instance(b.worker))
}

func (b *refreshBDDContext) iRefreshTheContainer() error {
	b.refreshErr = b.container.Refresh(context.Background())
	return nil
}

func (b *refreshBDDContext) iRefreshTheContainerAgain() error {
	b.secondErr = b.container.Refresh(context.Background())
	return nil
}

func (b *refreshBDDContext) iCloseTheContainer() error {
	return b.container.Close(context.Background())
}

func (b *refreshBDDContext) theRefreshShouldSucceed() error {
	return b.refreshErr
}

func (b *refreshBDDContext) theRefreshShouldFailNaming(component string) error {
	if b.refreshErr == nil {
		return errRefreshSucceeded
	}
	var ie *InitError
	if !errors.As(b.refreshErr, &ie) || ie.Component != component {
		return fmt.Errorf("expected an InitError naming %q, got %w", component, b.refreshErr)
	}
	return nil
}

func (b *refreshBDDContext) theSecondRefreshShouldFailAsNotRepeatable() error {
	if !errors.Is(b.secondErr, ErrNotRepeatable) {
		return fmt.Errorf("expected ErrNotRepeatable, got %v", b.secondErr)
	}
	return nil
}

func (b *refreshBDDContext) eachShouldHaveExecutedOnce(list string) error {
	for _, id := range splitList(list) {
		if n := b.log.count(id); n != 1 {
			return fmt.Errorf("%w: %s ran %d times", errWrongCount, id, n)
		}
	}
	return nil
}

func (b *refreshBDDContext) theRegistryExtensionsShouldHaveExecutedInOrder(list string) error {
	got := b.log.filter(notFactory)
	if want := splitList(list); !slices.Equal(got, want) {
		return fmt.Errorf("%w: got %v, want %v", errUnexpectedOrder, got, want)
	}
	return nil
}

func (b *refreshBDDContext) theListenerShouldHaveReceived(list string) error {
	if want := splitList(list); !slices.Equal(b.texts, want) {
		return fmt.Errorf("%w: got %v, want %v", errUnexpectedOrder, b.texts, want)
	}
	return nil
}

func (b *refreshBDDContext) theRecordedEventTypesShouldBe(list string) error {
	var want []string
	for _, suffix := range splitList(list) {
		want = append(want, event.TypePrefix+suffix)
	}
	if got := b.log.list(); !slices.Equal(got, want) {
		return fmt.Errorf("%w: got %v, want %v", errUnexpectedOrder, got, want)
	}
	return nil
}

func (b *refreshBDDContext) theComponentShouldHaveReceivedRefreshedOnce(name string) error {
	late, err := Get[*lateListener](b.container, name)
	if err != nil {
		return err
	}
	if n := late.log.count(EventTypeRefreshed); n != 1 {
		return fmt.Errorf("%w: refreshed event delivered %d times", errWrongCount, n)
	}
	return nil
}

func (b *refreshBDDContext) lookingUpTwiceReturnsSameInstance(name string) error {
	first, err := b.container.GetComponent(name)
	if err != nil {
		return err
	}
	second, err := b.container.GetComponent(name)
	if err != nil {
		return err
	}
	if first != second {
		return errNotSame
	}
	return nil
}

func (b *refreshBDDContext) theRecordingListenerShouldHaveReceivedRefreshed() error {
	if b.refreshed != 1 {
		return fmt.Errorf("%w: refreshed event delivered %d times", errWrongCount, b.refreshed)
	}
	return nil
}

func (b *refreshBDDContext) theContainerShouldBeInState(state string) error {
	if got := b.container.State().String(); got != state {
		return fmt.Errorf("%w: got %s, want %s", errWrongState, got, state)
	}
	return nil
}

func (b *refreshBDDContext) theComponentShouldHaveBeenStartedAndStopped(name string) error {
	want := []string{"start:" + name, "stop:" + name}
	if got := b.log.list(); !slices.Equal(got, want) {
		return fmt.Errorf("%w: got %v, want %v", errUnexpectedOrder, got, want)
	}
	return nil
}

func splitList(list string) []string {
	var out []string
	for _, item := range strings.Split(list, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// InitializeRefreshScenario wires the refresh steps.
func InitializeRefreshScenario(ctx *godog.ScenarioContext) {
	b := &refreshBDDContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		b.reset()
		return ctx, nil
	})
	ctx.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if b.container != nil {
			_ = b.container.Close(ctx)
		}
		return ctx, nil
	})

	ctx.Step(`^I have a new container$`, b.iHaveANewContainer)

	// Registry extensions
	ctx.Step(`^a registry extension "([^"]*)" that registers registry extensions "([^"]*)" and "([^"]*)"$`, b.aRegistryExtensionThatRegistersTwo)
	ctx.Step(`^the registry extension "([^"]*)" registers registry extension "([^"]*)"$`, b.theRegistryExtensionRegisters)
	ctx.Step(`^an unordered registry extension "([^"]*)"$`, b.anUnorderedRegistryExtension)
	ctx.Step(`^an ordered registry extension "([^"]*)" with order (-?\d+)$`, b.anOrderedRegistryExtension)
	ctx.Step(`^a highest-priority registry extension "([^"]*)"$`, b.aHighestPriorityRegistryExtension)
	ctx.Step(`^a registry extension "([^"]*)" that fails$`, b.aFailingRegistryExtension)

	// Events
	ctx.Step(`^a listener recording text events$`, b.aListenerRecordingTextEvents)
	ctx.Step(`^I publish the text events "([^"]*)" before refreshing$`, b.iPublishTextEventsBeforeRefreshing)
	ctx.Step(`^a listener component "([^"]*)" recording event types$`, b.aListenerComponentRecordingEventTypes)
	ctx.Step(`^a refresh hook that registers a listener component "([^"]*)"$`, b.aRefreshHookThatRegistersAListener)
	ctx.Step(`^a listener that fails on the refreshed event$`, b.aListenerThatFailsOnRefreshed)
	ctx.Step(`^a listener recording the refreshed event$`, b.aListenerRecordingRefreshed)

	// Components
	ctx.Step(`^a singleton component "([^"]*)"$`, b.aSingletonComponent)
	ctx.Step(`^a lifecycle component "([^"]*)"$`, b.aLifecycleComponent)

	// Actions
	ctx.Step(`^I refresh the container$`, b.iRefreshTheContainer)
	ctx.Step(`^I refresh the container again$`, b.iRefreshTheContainerAgain)
	ctx.Step(`^I close the container$`, b.iCloseTheContainer)

	// Outcomes
	ctx.Step(`^the refresh should succeed$`, b.theRefreshShouldSucceed)
	ctx.Step(`^the refresh should fail naming component "([^"]*)"$`, b.theRefreshShouldFailNaming)
	ctx.Step(`^the second refresh should fail as not repeatable$`, b.theSecondRefreshShouldFailAsNotRepeatable)
	ctx.Step(`^each of "([^"]*)" should have executed exactly once$`, b.eachShouldHaveExecutedOnce)
	ctx.Step(`^the registry extensions should have executed in the order "([^"]*)"$`, b.theRegistryExtensionsShouldHaveExecutedInOrder)
	ctx.Step(`^the listener should have received "([^"]*)"$`, b.theListenerShouldHaveReceived)
	ctx.Step(`^the recorded event types should be "([^"]*)"$`, b.theRecordedEventTypesShouldBe)
	ctx.Step(`^the component "([^"]*)" should have received the refreshed event once$`, b.theComponentShouldHaveReceivedRefreshedOnce)
	ctx.Step(`^looking up "([^"]*)" twice should return the same instance$`, b.lookingUpTwiceReturnsSameInstance)
	ctx.Step(`^the recording listener should have received the refreshed event$`, b.theRecordingListenerShouldHaveReceivedRefreshed)
	ctx.Step(`^the container should be in state "([^"]*)"$`, b.theContainerShouldBeInState)
	ctx.Step(`^the component "([^"]*)" should have been started and stopped$`, b.theComponentShouldHaveBeenStartedAndStopped)
}

// TestRefreshFeatures runs the BDD tests for the refresh protocol
func TestRefreshFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeRefreshScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/refresh.feature"},
			TestingT: t,
			Strict:   true,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
