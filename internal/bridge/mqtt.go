package bridge

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/bogenrs/silverline-hood/internal/config"
	"github.com/bogenrs/silverline-hood/internal/hood"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	commandTimeout = 30 * time.Second
)

// MQTTBridge mirrors the device over an MQTT broker: every refreshed
// snapshot is published to <prefix>/state, and payloads on
// <prefix>/command are dispatched to the device. Command payloads are
// either a symbolic command name or a JSON delta object.
type MQTTBridge struct {
	client      mqtt.Client
	hood        *hood.Client
	poller      *hood.Poller
	topicPrefix string
	logger      zerolog.Logger
	unsubscribe func()
}

func NewMQTTBridge(cfg config.MQTT, hoodClient *hood.Client, poller *hood.Poller, logger zerolog.Logger) (*MQTTBridge, error) {
	b := &MQTTBridge{
		hood:        hoodClient,
		poller:      poller,
		topicPrefix: cfg.TopicPrefix,
		logger:      logger,
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = randomClientID()
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetWill(b.topic("availability"), "offline", 0, true)
	opts.OnConnect = func(client mqtt.Client) {
		// Re-establish the command subscription after every reconnect.
		if token := client.Subscribe(b.topic("command"), 0, b.handleCommand); token.Wait() && token.Error() != nil {
			b.logger.Error().Err(token.Error()).Msg("mqtt command subscribe failed")
			return
		}
		if token := client.Publish(b.topic("availability"), 0, true, "online"); token.Wait() && token.Error() != nil {
			b.logger.Error().Err(token.Error()).Msg("mqtt availability publish failed")
		}
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(connectTimeout) && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	b.client = client

	b.unsubscribe = poller.Subscribe(b.publishState)
	return b, nil
}

// Close detaches from the poller, marks the device offline, and
// disconnects.
func (b *MQTTBridge) Close() {
	if b.unsubscribe != nil {
		b.unsubscribe()
	}
	if token := b.client.Publish(b.topic("availability"), 0, true, "offline"); token.WaitTimeout(publishTimeout) && token.Error() != nil {
		b.logger.Warn().Err(token.Error()).Msg("mqtt offline publish failed")
	}
	b.client.Disconnect(250)
}

func (b *MQTTBridge) topic(suffix string) string {
	return b.topicPrefix + "/" + suffix
}

func (b *MQTTBridge) publishState(state hood.State) {
	payload, err := json.Marshal(state)
	if err != nil {
		b.logger.Error().Err(err).Msg("marshal state for mqtt")
		return
	}
	if token := b.client.Publish(b.topic("state"), 0, true, payload); token.WaitTimeout(publishTimeout) && token.Error() != nil {
		b.logger.Warn().Err(token.Error()).Msg("mqtt state publish failed")
	}
}

func (b *MQTTBridge) handleCommand(_ mqtt.Client, msg mqtt.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	payload := msg.Payload()
	var (
		state hood.State
		err   error
	)
	if delta, ok := hood.DecodeFrame(payload); ok {
		state, err = b.hood.SendDelta(ctx, delta)
	} else if cmd, parseErr := hood.ParseCommand(string(payload)); parseErr == nil {
		state, err = b.hood.SendSymbolic(ctx, cmd)
	} else {
		b.logger.Warn().Str("payload", string(payload)).Msg("unrecognized mqtt command payload")
		return
	}
	if err != nil {
		// The device failure is already logged by the client; refreshed
		// state simply isn't published this round.
		return
	}
	b.publishState(state)
}

func randomClientID() string {
	nonce := make([]byte, 8)
	_, _ = rand.Read(nonce)
	return "hoodd-" + base64.RawURLEncoding.EncodeToString(nonce)
}
