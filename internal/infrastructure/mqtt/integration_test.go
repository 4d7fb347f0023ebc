//go:build integration

package mqtt

import (
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/mavbridge/internal/infrastructure/config"
)

// Integration tests against a live broker.
// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func integrationConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host: "127.0.0.1",
			Port: 1883,
		},
		QoS:            1,
		ConnectTimeout: 5,
	}
}

// subscribe opens a raw paho session subscribed to topic and returns a
// channel of received payloads.
func subscribe(t *testing.T, topic string) <-chan string {
	t.Helper()

	opts := pahomqtt.NewClientOptions().
		AddBroker("tcp://127.0.0.1:1883").
		SetClientID(resolveClientID(""))
	sub := pahomqtt.NewClient(opts)
	if tok := sub.Connect(); !tok.WaitTimeout(5*time.Second) || tok.Error() != nil {
		t.Fatalf("subscriber connect failed: %v", tok.Error())
	}
	t.Cleanup(func() { sub.Disconnect(100) })

	ch := make(chan string, 16)
	tok := sub.Subscribe(topic, 1, func(_ pahomqtt.Client, m pahomqtt.Message) {
		ch <- string(m.Payload())
	})
	if !tok.WaitTimeout(5*time.Second) || tok.Error() != nil {
		t.Fatalf("subscribe failed: %v", tok.Error())
	}
	return ch
}

func TestIntegration_PublishRoundtrip(t *testing.T) {
	received := subscribe(t, "mavbridge-it/msg")

	client, err := Connect(integrationConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Fatal("IsConnected() = false after Connect")
	}

	payload := `{"mavpackettype":"HEARTBEAT","custom_mode":0}`
	if err := client.Publish("mavbridge-it/msg", []byte(payload), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-received:
		if got != payload {
			t.Errorf("received %s, want %s", got, payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestIntegration_OnlineAndOfflineStatus(t *testing.T) {
	cfg := integrationConfig()
	cfg.Broker.ClientID = "mavbridge-it-status"

	received := subscribe(t, Topics{}.Status())

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	var mu sync.Mutex
	var statuses []string
	deadline := time.After(5 * time.Second)

	collect := func(want int) {
		for {
			mu.Lock()
			n := len(statuses)
			mu.Unlock()
			if n >= want {
				return
			}
			select {
			case p := <-received:
				mu.Lock()
				statuses = append(statuses, p)
				mu.Unlock()
			case <-deadline:
				t.Fatalf("timed out with %d status messages, want %d", n, want)
			}
		}
	}

	collect(1)
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	collect(2)

	mu.Lock()
	defer mu.Unlock()
	last := statuses[len(statuses)-1]
	if want := `"reason":"graceful_shutdown"`; !strings.Contains(last, want) {
		t.Errorf("last status = %s, want %s", last, want)
	}
}
