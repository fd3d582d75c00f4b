// FilePath: internal/mqtt/mqtt.gateway.go

// Package mqtt is the device-facing gateway: it receives wake metadata and
// chunked image uploads from ESP32-CAM field units, reassembles images,
// requests missing chunks, and acknowledges completed transmissions with the
// device's next scheduled wake time.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	nuts "github.com/vaudience/go-nuts"

	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/config"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/hubservice"
	"github.com/putYourWifeOuttaWork/brainlytree-hub/internal/models"
)

const (
	topicData   = "ESP32CAM/+/data"
	topicStatus = "device/+/status"
)

// dataMessage is the shared shape of the two message kinds devices publish on
// their data topic. Metadata carries TotalChunks and no ChunkID; chunks carry
// ChunkID and the payload bytes.
type dataMessage struct {
	DeviceID      string          `json:"device_id"`
	CaptureTime   string          `json:"capture_timestamp"`
	ImageName     string          `json:"image_name"`
	ImageSize     *int64          `json:"image_size"`
	MaxChunkSize  *int            `json:"max_chunk_size"`
	TotalChunks   *int            `json:"total_chunks_count"`
	ChunkID       *int            `json:"chunk_id"`
	Payload       json.RawMessage `json:"payload"`
	Temperature   *float64        `json:"temperature"`
	Humidity      *float64        `json:"humidity"`
	Pressure      *float64        `json:"pressure"`
	GasResistance *float64        `json:"gas_resistance"`
	Battery       *float64        `json:"battery_voltage"`
	RSSI          *float64        `json:"signal_strength"`
}

type statusMessage struct {
	DeviceID   string `json:"device_id"`
	Status     string `json:"status"`
	PendingImg int    `json:"pendingImg"`
}

type ackOK struct {
	NextWakeTime string `json:"next_wake_time"`
}

// Gateway bridges the MQTT device protocol onto the hub service.
type Gateway struct {
	client     paho.Client
	hub        *hubservice.HubService
	assemblies *assembler
	cfg        config.MQTTConfig
}

// NewGateway creates and connects the gateway. Subscriptions are installed
// from the on-connect handler so they survive broker reconnects.
func NewGateway(cfg config.MQTTConfig, hub *hubservice.HubService) (*Gateway, error) {
	g := &Gateway{
		hub:        hub,
		assemblies: newAssembler(),
		cfg:        cfg,
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetKeepAlive(60 * time.Second).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(10 * time.Second).
		SetCleanSession(true).
		SetOnConnectHandler(g.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			nuts.L.Warnf("[MQTTGateway] Connection lost, reconnecting: %v", err)
		})

	g.client = paho.NewClient(opts)
	if token := g.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", cfg.Broker, token.Error())
	}
	return g, nil
}

// Disconnect gracefully disconnects from the broker.
func (g *Gateway) Disconnect() {
	if g.client.IsConnected() {
		g.client.Disconnect(250)
		nuts.L.Infof("[MQTTGateway] Disconnected")
	}
}

func (g *Gateway) onConnect(_ paho.Client) {
	nuts.L.Infof("[MQTTGateway] Connected to broker, subscribing")
	g.subscribe(topicData, g.handleData)
	g.subscribe(topicStatus, g.handleStatus)
}

func (g *Gateway) subscribe(topic string, handler paho.MessageHandler) {
	if token := g.client.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
		nuts.L.Errorf("[MQTTGateway] Failed to subscribe to %s: %v", topic, token.Error())
		return
	}
	nuts.L.Infof("[MQTTGateway] Subscribed to %s", topic)
}

// deviceFromTopic extracts the MAC segment of a device topic.
func deviceFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

func (g *Gateway) handleData(_ paho.Client, msg paho.Message) {
	var dm dataMessage
	if err := json.Unmarshal(msg.Payload(), &dm); err != nil {
		nuts.L.Warnf("[MQTTGateway] Malformed data message on %s: %v", msg.Topic(), err)
		return
	}
	if dm.DeviceID == "" {
		dm.DeviceID = deviceFromTopic(msg.Topic())
	}

	switch {
	case dm.ChunkID != nil:
		g.handleChunk(&dm)
	case dm.TotalChunks != nil:
		g.handleMetadata(&dm)
	default:
		nuts.L.Warnf("[MQTTGateway] Unrecognized data message from %s", dm.DeviceID)
	}
}

// handleMetadata ingests the wake and opens the chunk assembly for the
// announced image.
func (g *Gateway) handleMetadata(dm *dataMessage) {
	ctx := context.Background()

	capturedAt := time.Now().UTC()
	if dm.CaptureTime != "" {
		if t, err := time.Parse(time.RFC3339, dm.CaptureTime); err == nil {
			capturedAt = t
		} else {
			nuts.L.Warnf("[MQTTGateway] Device %s sent unparseable capture_timestamp %q",
				dm.DeviceID, dm.CaptureTime)
		}
	}

	req := &hubservice.WakeRequest{
		DeviceID:   dm.DeviceID,
		CapturedAt: capturedAt,
		ImageName:  dm.ImageName,
		ImageSize:  dm.ImageSize,
		ChunkCount: dm.TotalChunks,
		Telemetry: models.Telemetry{
			TemperatureC:  dm.Temperature,
			Humidity:      dm.Humidity,
			Pressure:      dm.Pressure,
			GasResistance: dm.GasResistance,
			BatteryVolts:  dm.Battery,
			SignalRSSI:    dm.RSSI,
		},
	}

	result, err := g.hub.IngestWake(ctx, req)
	if err != nil {
		// Drop any stale assembly for the image so its grace timer dies
		// with the rejected wake.
		g.assemblies.finish(dm.DeviceID, dm.ImageName)
		nuts.L.Errorf("[MQTTGateway] Ingest failed for device %s: %v", dm.DeviceID, err)
		return
	}
	if result.ImageID == nil || dm.ImageName == "" {
		return
	}

	g.assemblies.begin(dm.DeviceID, dm.ImageName, *result.ImageID, *dm.TotalChunks)
	g.armGraceTimer(dm.DeviceID, dm.ImageName)
	nuts.L.Infof("[MQTTGateway] Expecting %d chunks of %s from %s",
		*dm.TotalChunks, dm.ImageName, dm.DeviceID)
}

func (g *Gateway) handleChunk(dm *dataMessage) {
	data, err := decodeChunkPayload(dm.Payload)
	if err != nil {
		nuts.L.Warnf("[MQTTGateway] Bad chunk %d of %s from %s: %v",
			*dm.ChunkID, dm.ImageName, dm.DeviceID, err)
		return
	}

	s := g.assemblies.addChunk(dm.DeviceID, dm.ImageName, *dm.ChunkID, data)
	if s == nil {
		nuts.L.Warnf("[MQTTGateway] Chunk for unknown image %s from %s, no metadata seen",
			dm.ImageName, dm.DeviceID)
		return
	}
	if s.complete {
		g.finalize(s)
	}
}

// finalize stores the assembled image, completes it in the hub and sends the
// device its ACK with the next wake time. The assembler has already retired
// the assembly; s is the gateway's private copy of its final state.
func (g *Gateway) finalize(s *snapshot) {
	ctx := context.Background()

	url, err := g.storeImage(s)
	if err != nil {
		nuts.L.Errorf("[MQTTGateway] Failed to store image %s from %s: %v",
			s.imageName, s.deviceID, err)
		if ferr := g.hub.FailImage(ctx, s.imageID, "storage_error", err.Error()); ferr != nil {
			nuts.L.Errorf("[MQTTGateway] Failed to mark image %s failed: %v", s.imageID, ferr)
		}
		return
	}

	if s.askCount > 0 {
		// Completion arrived via resent chunks; route through the retry
		// path so the image row records the resend.
		if _, err := g.hub.RetryByStableID(ctx, s.deviceID, s.imageName, &url, time.Now()); err != nil {
			nuts.L.Errorf("[MQTTGateway] Retry completion failed for %s/%s: %v",
				s.deviceID, s.imageName, err)
			return
		}
	} else {
		if err := g.hub.CompleteImage(ctx, s.imageID, url); err != nil {
			nuts.L.Errorf("[MQTTGateway] Completion failed for image %s: %v", s.imageID, err)
			return
		}
	}

	g.sendAckOK(ctx, s.deviceID)
	nuts.L.Infof("[MQTTGateway] Image %s from %s complete (%d chunks, %d asks)",
		s.imageName, s.deviceID, s.totalChunks, s.askCount)
}

// storeImage writes the assembled bytes under a collision-free name and
// returns the public URL.
func (g *Gateway) storeImage(s *snapshot) (string, error) {
	if err := os.MkdirAll(g.cfg.ImageDir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%d_%s_%s", time.Now().UnixMilli(), s.deviceID, s.imageName)
	if err := os.WriteFile(filepath.Join(g.cfg.ImageDir, name), s.data, 0o644); err != nil {
		return "", err
	}
	return strings.TrimRight(g.cfg.ImageBaseURL, "/") + "/" + name, nil
}

// armGraceTimer starts (or restarts) the window in which the remaining
// chunks must arrive before the gateway asks for them.
func (g *Gateway) armGraceTimer(deviceID, imageName string) {
	g.assemblies.arm(deviceID, imageName, g.cfg.ChunkGrace, func() {
		g.onGraceExpired(deviceID, imageName)
	})
}

// onGraceExpired asks the device for missing chunks, or gives up on the
// image once the ask budget is spent.
func (g *Gateway) onGraceExpired(deviceID, imageName string) {
	ctx := context.Background()

	s, action := g.assemblies.expire(deviceID, imageName, g.cfg.MaxRetryAsks)
	switch action {
	case expireNone:
		return

	case expireGiveUp:
		msg := fmt.Sprintf("%d chunks missing after %d retry requests", len(s.missing), s.askCount)
		if err := g.hub.FailImage(ctx, s.imageID, "missing_chunks", msg); err != nil {
			nuts.L.Errorf("[MQTTGateway] Failed to mark image %s failed: %v", s.imageID, err)
		}
		nuts.L.Warnf("[MQTTGateway] Giving up on %s from %s: %s", imageName, deviceID, msg)

	case expireAsk:
		if _, err := g.hub.RetryByStableID(ctx, deviceID, imageName, nil, time.Now()); err != nil {
			nuts.L.Errorf("[MQTTGateway] Failed to record resend for %s/%s: %v", deviceID, imageName, err)
		}
		g.publishAck(deviceID, map[string]any{"missing_chunks": s.missing})
		g.armGraceTimer(deviceID, imageName)
		nuts.L.Infof("[MQTTGateway] Requested %d missing chunks of %s from %s (ask %d/%d)",
			len(s.missing), imageName, deviceID, s.askCount, g.cfg.MaxRetryAsks)
	}
}

func (g *Gateway) sendAckOK(ctx context.Context, deviceID string) {
	ack := ackOK{NextWakeTime: "unknown"}
	if next, err := g.hub.NextWakeTime(ctx, deviceID, time.Now()); err == nil {
		ack.NextWakeTime = next.Format(time.RFC3339)
	} else {
		nuts.L.Warnf("[MQTTGateway] No next wake time for %s: %v", deviceID, err)
	}
	g.publishAck(deviceID, map[string]any{"ACK_OK": ack})
}

func (g *Gateway) publishAck(deviceID string, body map[string]any) {
	payload, err := json.Marshal(body)
	if err != nil {
		return
	}
	topic := fmt.Sprintf("device/%s/ack", deviceID)
	if token := g.client.Publish(topic, 1, false, payload); token.Wait() && token.Error() != nil {
		nuts.L.Errorf("[MQTTGateway] Failed to publish ack to %s: %v", topic, token.Error())
	}
}

func (g *Gateway) handleStatus(_ paho.Client, msg paho.Message) {
	var sm statusMessage
	if err := json.Unmarshal(msg.Payload(), &sm); err != nil {
		nuts.L.Warnf("[MQTTGateway] Malformed status message on %s: %v", msg.Topic(), err)
		return
	}
	if sm.DeviceID == "" {
		sm.DeviceID = deviceFromTopic(msg.Topic())
	}

	if err := g.hub.RecordDeviceStatus(context.Background(), sm.DeviceID, sm.PendingImg, time.Now()); err != nil {
		nuts.L.Warnf("[MQTTGateway] Failed to record status for %s: %v", sm.DeviceID, err)
	}
}
