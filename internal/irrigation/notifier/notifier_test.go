package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/autopeer-io/plantd/internal/irrigation/core"
	"github.com/autopeer-io/plantd/internal/irrigation/core/model"
	"github.com/autopeer-io/plantd/pkg/mqtt"
	"github.com/autopeer-io/plantd/pkg/mqtt/topic"
)

type publishCall struct {
	Topic   string
	QoS     int
	Retain  bool
	Payload map[string]any
}

type fakeClient struct {
	mqtt.Client
	connected bool
	err       error
	calls     []publishCall
}

func (c *fakeClient) Publish(_ context.Context, t string, qos int, retain bool, payload []byte) error {
	if c.err != nil {
		return c.err
	}
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		return err
	}
	c.calls = append(c.calls, publishCall{Topic: t, QoS: qos, Retain: retain, Payload: body})
	return nil
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func TestNotifyPublishesCommand(t *testing.T) {
	client := &fakeClient{connected: true}
	n := NewBusNotifier(client, topic.NewBuilder("device"), 1)

	if !n.Connected() {
		t.Fatal("expected connected")
	}

	err := n.Notify(context.Background(), "dev-1", model.CommandPayload{Command: model.CommandOn, Duration: 15, CorrelationID: "c-1"})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	err = n.Notify(context.Background(), "dev-1", model.CommandPayload{Command: model.CommandStatus, CorrelationID: "c-2"})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}

	want := []publishCall{
		{Topic: "device/dev-1/command", QoS: 1, Payload: map[string]any{"command": "ON", "duration": float64(15), "correlation_id": "c-1"}},
		{Topic: "device/dev-1/command", QoS: 1, Payload: map[string]any{"command": "status", "correlation_id": "c-2"}},
	}
	if diff := cmp.Diff(want, client.calls); diff != "" {
		t.Fatalf("published mismatch (-want +got):\n%s", diff)
	}
}

func TestNotifyMapsDisconnect(t *testing.T) {
	client := &fakeClient{err: mqtt.ErrNotConnected}
	n := NewBusNotifier(client, topic.NewBuilder("device"), 1)

	err := n.Notify(context.Background(), "dev-1", model.CommandPayload{Command: model.CommandOff, CorrelationID: "c-1"})
	if !errors.Is(err, core.ErrTransportUnavailable) {
		t.Fatalf("Notify() = %v, want ErrTransportUnavailable", err)
	}

	client.err = errors.New("puback timeout")
	err = n.Notify(context.Background(), "dev-1", model.CommandPayload{Command: model.CommandOff, CorrelationID: "c-2"})
	if err == nil || errors.Is(err, core.ErrTransportUnavailable) {
		t.Fatalf("Notify() = %v", err)
	}
}
