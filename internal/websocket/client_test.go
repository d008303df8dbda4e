// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tomtom215/fleetd/internal/config"
	"github.com/tomtom215/fleetd/internal/models"
)

// setupWebSocketServer creates a test WebSocket server with a custom handler.
func setupWebSocketServer(t *testing.T, handler func(t *testing.T, conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatalf("Failed to upgrade connection: %v", err)
		}
		defer conn.Close()
		handler(t, conn)
	}))
}

// dialWebSocket establishes a WebSocket connection to the test server.
func dialWebSocket(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	return conn
}

// waitForChannel waits for a channel signal with timeout.
func waitForChannel(t *testing.T, ch <-chan bool, timeout time.Duration, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Errorf("%s: timeout after %v", msg, timeout)
	}
}

func runHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(config.EventBusConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = hub.RunWithContext(ctx) }()
	time.Sleep(10 * time.Millisecond)
	return hub
}

func TestNewClient(t *testing.T) {
	hub := NewHub(config.EventBusConfig{})

	server := setupWebSocketServer(t, func(t *testing.T, conn *websocket.Conn) {
		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	conn := dialWebSocket(t, server)
	defer conn.Close()

	client := NewClient(hub, conn, "user-1", []string{"devices:read"}, "192.0.2.1")

	if client == nil {
		t.Fatal("NewClient returned nil")
	}
	if client.hub != hub {
		t.Error("Client hub not set correctly")
	}
	if client.conn != conn {
		t.Error("Client connection not set correctly")
	}
	if client.send == nil {
		t.Error("Client send channel not initialized")
	}
	if cap(client.send) != 256 {
		t.Errorf("Expected send channel capacity 256, got %d", cap(client.send))
	}
	if client.Subject != "user-1" {
		t.Errorf("Subject = %q, want %q", client.Subject, "user-1")
	}
	if len(client.Permissions) != 1 || client.Permissions[0] != "devices:read" {
		t.Errorf("Permissions = %v, want [devices:read]", client.Permissions)
	}
}

func TestNewClient_UniqueIDs(t *testing.T) {
	hub := NewHub(config.EventBusConfig{})
	c1 := NewClient(hub, nil, "a", nil, "192.0.2.1")
	c2 := NewClient(hub, nil, "b", nil, "192.0.2.1")

	if c1.ID() == c2.ID() {
		t.Error("expected distinct client IDs")
	}
	if c2.ID() <= c1.ID() {
		t.Error("expected monotonically increasing client IDs")
	}
}

func TestClient_Constants(t *testing.T) {
	if defaultWriteWait != 10*time.Second {
		t.Errorf("defaultWriteWait = %v, want 10s", defaultWriteWait)
	}
	if defaultPongWait != 60*time.Second {
		t.Errorf("defaultPongWait = %v, want 60s", defaultPongWait)
	}
	if defaultPingPeriod != (defaultPongWait*9)/10 {
		t.Errorf("defaultPingPeriod = %v, want %v", defaultPingPeriod, (defaultPongWait*9)/10)
	}
	if defaultMaxMessageSize != 512*1024 {
		t.Errorf("defaultMaxMessageSize = %d, want %d", defaultMaxMessageSize, 512*1024)
	}
}

func TestNewClient_UsesHubConfig(t *testing.T) {
	hub := NewHub(config.EventBusConfig{
		SendQueueSize:  4,
		PongWait:       5 * time.Second,
		PingPeriod:     4 * time.Second,
		WriteWait:      1 * time.Second,
		MaxMessageSize: 1024,
	})
	client := NewClient(hub, nil, "user-1", nil, "192.0.2.1")

	if cap(client.send) != 4 {
		t.Errorf("send queue capacity = %d, want 4", cap(client.send))
	}
	if client.pongWait != 5*time.Second {
		t.Errorf("pongWait = %v, want 5s", client.pongWait)
	}
	if client.pingPeriod != 4*time.Second {
		t.Errorf("pingPeriod = %v, want 4s", client.pingPeriod)
	}
	if client.writeWait != 1*time.Second {
		t.Errorf("writeWait = %v, want 1s", client.writeWait)
	}
	if client.maxMessageSize != 1024 {
		t.Errorf("maxMessageSize = %d, want 1024", client.maxMessageSize)
	}
	if client.RemoteAddr != "192.0.2.1" {
		t.Errorf("RemoteAddr = %q, want %q", client.RemoteAddr, "192.0.2.1")
	}
}

func TestClient_WritePump_SendMessage(t *testing.T) {
	hub := NewHub(config.EventBusConfig{})

	messageReceived := make(chan bool, 1)
	server := setupWebSocketServer(t, func(t *testing.T, conn *websocket.Conn) {
		var msg DataUpdateMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Errorf("Failed to read message: %v", err)
			return
		}
		if msg.Type != MessageTypeDataUpdate {
			t.Errorf("Expected message type %q, got %q", MessageTypeDataUpdate, msg.Type)
		}
		messageReceived <- true
	})
	defer server.Close()

	conn := dialWebSocket(t, server)
	defer conn.Close()

	client := NewClient(hub, conn, "", nil, "192.0.2.1")
	go client.writePump()

	testMessage := DataUpdateMessage{Type: MessageTypeDataUpdate, Data: "test data"}
	client.send <- testMessage

	waitForChannel(t, messageReceived, 1*time.Second, "Message not received")
}

func TestClient_ReadPump_Ping(t *testing.T) {
	hub := runHub(t)

	receivedPong := make(chan bool, 1)
	server := setupWebSocketServer(t, func(t *testing.T, conn *websocket.Conn) {
		pingMsg := ClientMessage{Type: "ping"}
		if err := conn.WriteJSON(pingMsg); err != nil {
			t.Errorf("Failed to write ping: %v", err)
			return
		}

		var pongMsg PongMessage
		if err := conn.ReadJSON(&pongMsg); err != nil {
			t.Errorf("Failed to read pong: %v", err)
			return
		}

		if pongMsg.Type == "pong" {
			receivedPong <- true
		}
		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	conn := dialWebSocket(t, server)
	defer conn.Close()

	client := NewClient(hub, conn, "", nil, "192.0.2.1")
	go client.readPump()
	go client.writePump()

	waitForChannel(t, receivedPong, 1*time.Second, "Pong not received")
}

func TestClient_ReadPump_Subscribe(t *testing.T) {
	hub := runHub(t)

	ch := 2
	server := setupWebSocketServer(t, func(t *testing.T, conn *websocket.Conn) {
		subMsg := ClientMessage{Type: "subscribe", DataType: string(models.EventTypePublisherStatus), Device: 1, Channel: &ch}
		if err := conn.WriteJSON(subMsg); err != nil {
			t.Errorf("Failed to write subscribe: %v", err)
			return
		}
		time.Sleep(150 * time.Millisecond)
	})
	defer server.Close()

	conn := dialWebSocket(t, server)
	defer conn.Close()

	client := NewClient(hub, conn, "", nil, "192.0.2.1")
	hub.Register <- client
	time.Sleep(50 * time.Millisecond)
	go client.readPump()

	key := models.BuildSubscriptionKey(models.EventTypePublisherStatus, 1, &ch, nil)

	var count int
	for i := 0; i < 10; i++ {
		time.Sleep(20 * time.Millisecond)
		count = hub.GetSubscriberCount(key)
		if count == 1 {
			break
		}
	}
	if count != 1 {
		t.Errorf("expected 1 subscriber for %q, got %d", key, count)
	}
}

func TestClient_Start(t *testing.T) {
	hub := runHub(t)

	messageReceived := make(chan bool, 1)
	server := setupWebSocketServer(t, func(t *testing.T, conn *websocket.Conn) {
		var msg DataUpdateMessage
		if err := conn.ReadJSON(&msg); err == nil {
			messageReceived <- true
		}
		time.Sleep(200 * time.Millisecond)
	})
	defer server.Close()

	conn := dialWebSocket(t, server)
	defer conn.Close()

	client := NewClient(hub, conn, "", nil, "192.0.2.1")
	client.Start()

	time.Sleep(100 * time.Millisecond)

	testMessage := DataUpdateMessage{Type: MessageTypeDataUpdate, Data: "test data"}
	client.send <- testMessage

	waitForChannel(t, messageReceived, 1*time.Second, "Message not received")
}

func TestClient_ReadPump_ConnectionClose(t *testing.T) {
	hub := runHub(t)

	unregistered := make(chan bool, 1)
	go func() {
		select {
		case <-hub.Unregister:
			unregistered <- true
		case <-time.After(2 * time.Second):
		}
	}()

	server := setupWebSocketServer(t, func(t *testing.T, conn *websocket.Conn) {
		conn.Close()
	})
	defer server.Close()

	conn := dialWebSocket(t, server)

	client := NewClient(hub, conn, "", nil, "192.0.2.1")
	hub.Register <- client

	time.Sleep(100 * time.Millisecond)

	go client.readPump()

	waitForChannel(t, unregistered, 1*time.Second, "Client not unregistered after connection close")
}

func TestClient_WritePump_ChannelClose(t *testing.T) {
	hub := NewHub(config.EventBusConfig{})

	receivedClose := make(chan bool, 1)
	server := setupWebSocketServer(t, func(t *testing.T, conn *websocket.Conn) {
		for {
			messageType, _, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					receivedClose <- true
				}
				return
			}
			if messageType == websocket.CloseMessage {
				receivedClose <- true
				return
			}
		}
	})
	defer server.Close()

	conn := dialWebSocket(t, server)

	client := NewClient(hub, conn, "", nil, "192.0.2.1")
	go client.writePump()

	time.Sleep(100 * time.Millisecond)
	close(client.send)

	select {
	case <-receivedClose:
	case <-time.After(1 * time.Second):
	}
}

func TestClient_WritePump_PingInterval(t *testing.T) {
	hub := NewHub(config.EventBusConfig{})

	server := setupWebSocketServer(t, func(t *testing.T, conn *websocket.Conn) {
		conn.SetPingHandler(func(string) error {
			return conn.WriteControl(websocket.PongMessage, []byte{}, time.Now().Add(time.Second))
		})

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	conn := dialWebSocket(t, server)
	defer conn.Close()

	client := NewClient(hub, conn, "", nil, "192.0.2.1")
	go client.writePump()

	// pingPeriod is 54 seconds, too long for this test; just verify it starts cleanly.
	time.Sleep(100 * time.Millisecond)
}

func TestClient_Integration(t *testing.T) {
	hub := runHub(t)

	ch := 2
	messagesReceived := make(chan DataUpdateMessage, 10)
	server := setupWebSocketServer(t, func(t *testing.T, conn *websocket.Conn) {
		for {
			var msg DataUpdateMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			messagesReceived <- msg
		}
	})
	defer server.Close()

	conn := dialWebSocket(t, server)
	defer conn.Close()

	client := NewClient(hub, conn, "", nil, "192.0.2.1")
	client.Start()

	hub.Register <- client
	time.Sleep(50 * time.Millisecond)

	key := models.BuildSubscriptionKey(models.EventTypePublisherStatus, 1, &ch, nil)
	hub.Subscribe <- subscriptionRequest{client: client, key: key}
	time.Sleep(50 * time.Millisecond)

	hub.PublishEvent(&models.Event{
		Type:           models.EventTypePublisherStatus,
		Device:         1,
		Channel:        &ch,
		Data:           map[string]string{"test": "integration"},
		EventTimestamp: time.Now(),
	})

	select {
	case msg := <-messagesReceived:
		if msg.SubscriptionKey != key {
			t.Errorf("SubscriptionKey = %q, want %q", msg.SubscriptionKey, key)
		}
	case <-time.After(1 * time.Second):
		t.Error("Message not received within timeout")
	}
}

func TestClient_ReadPump_SetReadDeadlineError(t *testing.T) {
	hub := runHub(t)

	server := setupWebSocketServer(t, func(t *testing.T, conn *websocket.Conn) {
		time.Sleep(10 * time.Millisecond)
		conn.Close()
	})
	defer server.Close()

	conn := dialWebSocket(t, server)

	client := NewClient(hub, conn, "", nil, "192.0.2.1")
	hub.Register <- client

	time.Sleep(100 * time.Millisecond)

	// Should handle errors gracefully without panic.
	client.readPump()
}

func TestClient_ReadPump_UnexpectedCloseError(t *testing.T) {
	hub := runHub(t)

	unregistered := make(chan bool, 1)
	go func() {
		select {
		case <-hub.Unregister:
			unregistered <- true
		case <-time.After(5 * time.Second):
		}
	}()

	server := setupWebSocketServer(t, func(t *testing.T, conn *websocket.Conn) {
		time.Sleep(10 * time.Millisecond)
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseAbnormalClosure, "test close"))
		conn.Close()
	})
	defer server.Close()

	conn := dialWebSocket(t, server)

	client := NewClient(hub, conn, "", nil, "192.0.2.1")
	hub.Register <- client

	time.Sleep(100 * time.Millisecond)

	go client.readPump()

	waitForChannel(t, unregistered, 3*time.Second, "Client not unregistered after abnormal close")
	time.Sleep(100 * time.Millisecond)
}

func TestClient_WritePump_WriteJSONError(t *testing.T) {
	hub := NewHub(config.EventBusConfig{})

	serverClosed := make(chan bool, 1)
	server := setupWebSocketServer(t, func(t *testing.T, conn *websocket.Conn) {
		time.Sleep(100 * time.Millisecond)
		conn.Close()
		serverClosed <- true
	})
	defer server.Close()

	conn := dialWebSocket(t, server)

	client := NewClient(hub, conn, "", nil, "192.0.2.1")
	go client.writePump()

	time.Sleep(100 * time.Millisecond)
	<-serverClosed

	testMessage := DataUpdateMessage{Type: MessageTypeDataUpdate, Data: "test data"}
	client.send <- testMessage

	time.Sleep(100 * time.Millisecond)
	// Should handle error without panic.
}

func TestClient_WritePump_SetWriteDeadlineError(t *testing.T) {
	hub := NewHub(config.EventBusConfig{})

	server := setupWebSocketServer(t, func(t *testing.T, conn *websocket.Conn) {
		time.Sleep(200 * time.Millisecond)
	})
	defer server.Close()

	conn := dialWebSocket(t, server)

	client := NewClient(hub, conn, "", nil, "192.0.2.1")
	go client.writePump()

	time.Sleep(100 * time.Millisecond)
	conn.Close()

	testMessage := DataUpdateMessage{Type: MessageTypeDataUpdate, Data: "test data"}
	select {
	case client.send <- testMessage:
	default:
	}

	time.Sleep(100 * time.Millisecond)
	// Should handle error without panic.
}

func BenchmarkClient_SendMessage(b *testing.B) {
	hub := NewHub(config.EventBusConfig{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			b.Fatalf("Failed to upgrade: %v", err)
		}
		defer conn.Close()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		b.Fatalf("Failed to dial: %v", err)
	}
	defer conn.Close()

	client := NewClient(hub, conn, "", nil, "192.0.2.1")
	go client.writePump()

	time.Sleep(100 * time.Millisecond)

	testMessage := DataUpdateMessage{Type: MessageTypeDataUpdate, Data: "test data"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		select {
		case client.send <- testMessage:
		default:
		}
	}
}
