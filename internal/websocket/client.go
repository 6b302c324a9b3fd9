package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/satriahrh/fluent/domain/entities"
	"github.com/satriahrh/fluent/internal/orchestrator"
	"github.com/satriahrh/fluent/internal/recorder"
)

var errConnectionClosed = errors.New("connection closed")

type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

func jsonFrame(v any) WriteData {
	payload, _ := json.Marshal(v)
	return WriteData{Type: websocket.TextMessage, Payload: payload}
}

// Client is one conversation session bound to a websocket connection.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan WriteData

	// Closed when the session ends; send is never closed.
	closed    chan struct{}
	closeOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	sessionID string
	logger    *zap.Logger

	orch     *orchestrator.Orchestrator
	mic      *socketMicrophone
	player   *socketPlayer
	limiter  *rate.Limiter
	commands chan *ClientMessage

	// Unix nanoseconds of the last frame received.
	lastActivity atomic.Int64

	// Newest state that did not fit in send. While set, later states replace
	// it instead of queueing, and the write pump sends it once send drains.
	stateMu      sync.Mutex
	stateBacklog *entities.StateSnapshot
}

var (
	_ orchestrator.Observer = (*Client)(nil)
	_ outbox                = (*Client)(nil)
)

func newClient(hub *Hub, conn *websocket.Conn) (*Client, error) {
	sessionID := uuid.NewString()
	logger := hub.logger.With(zap.String("sessionID", sessionID))
	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan WriteData, 256),
		closed:    make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		sessionID: sessionID,
		logger:    logger,
		limiter:   rate.NewLimiter(hub.config.ControlRate, hub.config.ControlBurst),
		commands:  make(chan *ClientMessage, 8),
	}
	c.touch()

	c.mic = newSocketMicrophone(c, hub.config.CaptureTimeout, hub.config.MaxCaptureBytes, logger)
	c.player = newSocketPlayer(c, hub.config.PlaybackTimeout, logger)

	orch, err := orchestrator.New(hub.config.Session, orchestrator.Dependencies{
		Recorder: recorder.New(c.mic, logger),
		Pipeline: hub.pipeline,
		Player:   c.player,
		Clock:    hub.config.Clock,
		Observer: c,
	}, logger)
	if err != nil {
		cancel()
		return nil, err
	}
	c.orch = orch

	return c, nil
}

// SessionID identifies the session
func (c *Client) SessionID() string {
	return c.sessionID
}

// Close ends the session; the connection is closed by the write pump.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.cancel()
		if c.orch != nil {
			c.orch.Close()
		}
		c.logger.Info("Session closed")
	})
}

func (c *Client) greet() {
	c.offer(jsonFrame(&SessionMessage{
		BaseMessage: base(MessageTypeSession),
		SessionID:   c.sessionID,
		State:       c.orch.Snapshot(),
		Voices:      entities.Voices(),
	}))
}

// StateChanged implements orchestrator.Observer
func (c *Client) StateChanged(snap entities.StateSnapshot) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.stateBacklog == nil {
		if c.offer(jsonFrame(CreateStateMessage(snap))) {
			return
		}
		c.logger.Warn("Send queue full, holding latest state", zap.String("phase", snap.Phase.String()))
	}
	c.stateBacklog = &snap
}

// takeStateBacklog returns the held state frame once everything queued
// before it has been written.
func (c *Client) takeStateBacklog() (WriteData, bool) {
	if len(c.send) > 0 {
		return WriteData{}, false
	}
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.stateBacklog == nil {
		return WriteData{}, false
	}
	frame := jsonFrame(CreateStateMessage(*c.stateBacklog))
	c.stateBacklog = nil
	return frame, true
}

// Revealed implements orchestrator.Observer
func (c *Client) Revealed(visible string, index, length int) {
	c.offer(jsonFrame(CreateRevealMessage(visible, index, length)))
}

func (c *Client) deliver(ctx context.Context, msg WriteData) error {
	select {
	case c.send <- msg:
		return nil
	case <-c.closed:
		return errConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) offer(msg WriteData) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) sendError(code, message, details string) {
	c.offer(jsonFrame(CreateErrorMessage(code, message, details)))
}

func (c *Client) touch() {
	c.lastActivity.Store(c.hub.config.Clock.Now().UnixNano())
}

func (c *Client) lastSeen() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

func (c *Client) idle() bool {
	return c.orch.Snapshot().Phase == entities.PhaseIdle
}

// readPump pumps messages from the websocket connection to the session.
func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}
		c.touch()

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(message)
		case websocket.BinaryMessage:
			c.processBinaryAudioChunk(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps messages from the session to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				c.Close()
				return
			}
			if state, ok := c.takeStateBacklog(); ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.conn.WriteMessage(state.Type, state.Payload); err != nil {
					c.logger.Error("Failed to write message", zap.Error(err))
					c.Close()
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.closed:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
			return
		}
	}
}

// commandLoop runs conversation commands one at a time. It is separate from
// the read pump because starting a capture waits on a reply read by it.
func (c *Client) commandLoop() {
	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.commands:
			c.handleCommand(msg)
		}
	}
}

// processMessage processes incoming JSON messages
func (c *Client) processMessage(message []byte) {
	msg, err := c.hub.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Invalid message", zap.Error(err))
		c.sendError("invalid_message", "Invalid message", err.Error())
		return
	}

	if msg.IsControl() {
		if !c.limiter.Allow() {
			c.sendError("rate_limited", "Too many requests. Please slow down.", string(msg.Type))
			return
		}
		select {
		case c.commands <- msg:
		default:
			c.sendError("busy", "Please wait for the current action to finish.", string(msg.Type))
		}
		return
	}

	switch msg.Type {
	case MessageTypePing:
		c.offer(jsonFrame(CreatePongMessage(msg.Data)))
	case MessageTypeCaptureReady:
		if !c.mic.resolve(msg.MimeType, nil) {
			c.logger.Debug("Ignoring capture confirmation")
		}
	case MessageTypeCaptureDenied:
		c.mic.resolve("", errors.New(msg.Reason))
	case MessageTypePlaybackEnded:
		if !c.player.ended(msg.PlaybackID, nil) {
			c.logger.Debug("Ignoring stale playback event", zap.String("playbackID", msg.PlaybackID))
		}
	case MessageTypePlaybackError:
		c.player.ended(msg.PlaybackID, fmt.Errorf("client playback failed: %s", msg.Reason))
	}
}

// processBinaryAudioChunk appends microphone audio to the open capture
func (c *Client) processBinaryAudioChunk(data []byte) {
	if !c.mic.write(data) {
		c.logger.Warn("Received binary audio chunk but no capture is open",
			zap.Int("size", len(data)))
	}
}

func (c *Client) handleCommand(msg *ClientMessage) {
	var err error
	switch msg.Type {
	case MessageTypeStartRecording:
		err = c.orch.StartRecording(c.ctx)
	case MessageTypeStopRecording:
		err = c.orch.StopRecording(c.ctx)
	case MessageTypeStopSpeaking:
		err = c.orch.StopSpeaking()
	case MessageTypeSetProvider:
		_, err = c.orch.SetProvider(msg.Provider)
	case MessageTypeSetVoice:
		err = c.orch.SetVoice(msg.Voice)
	case MessageTypeClear:
		err = c.orch.Clear()
	}
	if err == nil {
		return
	}

	if code, message, ok := rejection(err); ok {
		c.sendError(code, message, err.Error())
		return
	}
	// Turn failures reach the client through the state's last_error.
	c.logger.Debug("Command failed", zap.String("type", string(msg.Type)), zap.Error(err))
}

// rejection maps errors for commands the session refused in its current state
func rejection(err error) (code, message string, ok bool) {
	switch {
	case errors.Is(err, orchestrator.ErrBusy):
		return "busy", "Please wait for the reply.", true
	case errors.Is(err, orchestrator.ErrNotIdle):
		return "not_idle", "Finish the current turn first.", true
	case errors.Is(err, orchestrator.ErrNotRecording):
		return "not_recording", "Recording has not started.", true
	case errors.Is(err, orchestrator.ErrNotSpeaking):
		return "not_speaking", "Nothing is being spoken.", true
	case errors.Is(err, recorder.ErrCaptureInProgress):
		return "capture_in_progress", "Already recording.", true
	case errors.Is(err, entities.ErrUnknownVoice):
		return "unknown_voice", "That voice is not available.", true
	case errors.Is(err, orchestrator.ErrClosed):
		return "closed", "The session has ended.", true
	default:
		return "", "", false
	}
}
