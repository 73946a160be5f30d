package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/autopeer-io/plantd/internal/irrigation/core"
	"github.com/autopeer-io/plantd/internal/irrigation/core/model"
	"github.com/autopeer-io/plantd/internal/pkg/mqtt/paths"
	"github.com/autopeer-io/plantd/pkg/mqtt"
	"github.com/autopeer-io/plantd/pkg/mqtt/topic"
)

var _ core.CommandNotifier = (*BusNotifier)(nil)

// BusNotifier publishes commands to {root}/{deviceKey}/command over any
// mqtt.Client implementation.
type BusNotifier struct {
	client mqtt.Client
	topics *topic.Builder
	qos    int
}

func NewBusNotifier(client mqtt.Client, topics *topic.Builder, qos int) *BusNotifier {
	return &BusNotifier{client: client, topics: topics, qos: qos}
}

func (n *BusNotifier) Notify(ctx context.Context, deviceKey string, payload model.CommandPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}

	if err := n.client.Publish(ctx, n.topics.Build(deviceKey, paths.Command), n.qos, false, data); err != nil {
		if errors.Is(err, mqtt.ErrNotConnected) {
			return fmt.Errorf("%w: %w", core.ErrTransportUnavailable, err)
		}
		return err
	}
	return nil
}

func (n *BusNotifier) Connected() bool {
	return n.client.IsConnected()
}
