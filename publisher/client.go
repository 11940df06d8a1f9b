// Package publisher pushes sensor statuses to an MQTT broker after each
// refresh.
package publisher

import (
	"fmt"
	"time"

	"purpleair_status/config"
	"purpleair_status/logger"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Client manages the broker connection
type Client struct {
	client mqtt.Client
	broker string
}

// NewClient connects to the configured broker
func NewClient(cfg config.MQTTConfig) (*Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetOnConnectHandler(connectHandler)
	opts.SetConnectionLostHandler(connectLostHandler)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)

	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	logger.Printf("MQTT: connected to broker %s\n", cfg.Broker)

	return &Client{client: client, broker: cfg.Broker}, nil
}

// Native returns the underlying paho client
func (c *Client) Native() mqtt.Client {
	return c.client
}

// IsConnected returns whether the client is currently connected
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Close disconnects from the broker
func (c *Client) Close() {
	c.client.Disconnect(250)
	logger.Printf("MQTT: disconnected from %s\n", c.broker)
}

var connectHandler mqtt.OnConnectHandler = func(client mqtt.Client) {
	logger.Debugf("MQTT: connection established\n")
}

var connectLostHandler mqtt.ConnectionLostHandler = func(client mqtt.Client, err error) {
	logger.Warnf("MQTT: connection lost: %v\n", err)
}
