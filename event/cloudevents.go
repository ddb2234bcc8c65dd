package event

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// TypePrefix is prepended to derived CloudEvent types.
const TypePrefix = "com.appctx."

// Typed lets an event choose its CloudEvent type.
type Typed interface {
	EventType() string
}

// DataCarrier lets an event choose the CloudEvent data it is encoded with.
type DataCarrier interface {
	EventData() any
}

// TypeOf returns the CloudEvent type of e. Events without Typed get a type
// derived from their Go type name, e.g. "com.appctx.refreshed".
func TypeOf(e Event) string {
	if t, ok := e.(Typed); ok {
		return t.EventType()
	}
	if pe, ok := e.(*PayloadEvent); ok {
		return TypePrefix + "payload." + typeName(reflect.TypeOf(pe.Payload))
	}
	return TypePrefix + strings.TrimSuffix(typeName(reflect.TypeOf(e)), "event")
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "nil"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := t.Name()
	if name == "" {
		name = t.Kind().String()
	}
	return strings.ToLower(name)
}

// ToCloudEvent converts e into a CloudEvent with the given source URI.
func ToCloudEvent(e Event, source string) (cloudevents.Event, error) {
	ce := cloudevents.NewEvent()
	ce.SetID(e.EventID())
	ce.SetSource(source)
	ce.SetType(TypeOf(e))
	ce.SetTime(e.Timestamp())
	ce.SetSpecVersion(cloudevents.VersionV1)

	var data any
	switch x := e.(type) {
	case DataCarrier:
		data = x.EventData()
	case *PayloadEvent:
		data = x.Payload
	}
	if data != nil {
		if err := ce.SetData(cloudevents.ApplicationJSON, data); err != nil {
			return ce, fmt.Errorf("encoding event data: %w", err)
		}
	}
	if err := ce.Validate(); err != nil {
		return ce, fmt.Errorf("CloudEvent validation failed: %w", err)
	}
	return ce, nil
}

// CloudEventHandler consumes container events in CloudEvents form.
type CloudEventHandler func(ctx context.Context, ce cloudevents.Event) error

type cloudEventListener struct {
	source  string
	handler CloudEventHandler
	types   []string
}

// NewCloudEventListener returns a listener that converts every event to a
// CloudEvent and passes it to handler. When types are given only events of
// those CloudEvent types are delivered.
func NewCloudEventListener(source string, handler CloudEventHandler, types ...string) Listener {
	return &cloudEventListener{source: source, handler: handler, types: types}
}

func (l *cloudEventListener) Supports(e Event) bool {
	if len(l.types) == 0 {
		return true
	}
	t := TypeOf(e)
	for _, want := range l.types {
		if want == t {
			return true
		}
	}
	return false
}

func (l *cloudEventListener) OnEvent(ctx context.Context, e Event) error {
	ce, err := ToCloudEvent(e, l.source)
	if err != nil {
		return err
	}
	return l.handler(ctx, ce)
}
