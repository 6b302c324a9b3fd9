package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/satriahrh/fluent/adapters"
	"github.com/satriahrh/fluent/domain/entities"
)

const (
	converseChunkSize = 4096
	converseTimeout   = 2 * time.Minute
)

var (
	converseServer   string
	converseProvider string
	converseVoice    string
)

var converseCmd = &cobra.Command{
	Use:   "converse <audio-file>",
	Short: "Run one conversation turn against a running server",
	Long: `Connect to the session websocket, stream the audio file as microphone
input and play back the coach's reply by saving it.

Example:
  fluentctl converse --server ws://localhost:8080/ws -o reply.mp3 question.webm`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		clip, err := adapters.LoadAudioClip(args[0])
		if err != nil {
			return err
		}

		conn, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), converseServer, nil)
		if err != nil {
			return fmt.Errorf("dial: %w", err)
		}
		defer conn.Close()

		go func() {
			<-cmd.Context().Done()
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		}()

		s := &converseSession{conn: conn, clip: clip, out: &typewriter{w: os.Stdout}}
		return s.run()
	},
}

func init() {
	converseCmd.Flags().StringVar(&converseServer, "server", "ws://localhost:8080/ws", "session websocket URL")
	converseCmd.Flags().StringVar(&converseProvider, "provider", "", "reply provider: openai, anthropic or gemini")
	converseCmd.Flags().StringVar(&converseVoice, "voice", "", "voice id from the catalog")
}

// serverMessage is the union of the server messages the client reads
type serverMessage struct {
	Type       string                 `json:"type"`
	SessionID  string                 `json:"session_id"`
	State      entities.StateSnapshot `json:"state"`
	Text       string                 `json:"text"`
	Index      int                    `json:"index"`
	PlaybackID string                 `json:"playback_id"`
	MimeType   string                 `json:"mime_type"`
	Size       int                    `json:"size"`
	ErrorCode  string                 `json:"error_code"`
	Message    string                 `json:"message"`
}

type converseSession struct {
	conn *websocket.Conn
	clip entities.AudioClip
	out  *typewriter

	// turn progress
	submitted bool
	messages  int
	audio     []byte
	speaking  string
}

func (s *converseSession) run() error {
	greeting, err := s.next()
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Connected to session %s\n", greeting.SessionID)
	s.messages = len(greeting.State.Messages)

	if converseProvider != "" {
		if err := s.send(map[string]any{"type": "set_provider", "provider": converseProvider}); err != nil {
			return err
		}
	}
	if converseVoice != "" {
		if err := s.send(map[string]any{"type": "set_voice", "voice": converseVoice}); err != nil {
			return err
		}
	}
	if err := s.send(map[string]any{"type": "start_recording"}); err != nil {
		return err
	}

	for {
		msg, err := s.next()
		if err != nil {
			return err
		}
		done, err := s.handle(msg)
		if err != nil || done {
			return err
		}
	}
}

// handle reacts to one server message and reports whether the turn is over
func (s *converseSession) handle(msg *serverMessage) (bool, error) {
	switch msg.Type {
	case "capture_start":
		return false, s.stream()

	case "reveal":
		s.out.reveal(msg.Text, msg.Index)

	case "speaking_start":
		s.speaking = msg.PlaybackID
		s.audio = make([]byte, 0, msg.Size)

	case "speaking_audio_end":
		if outputFile != "" {
			if err := os.WriteFile(outputFile, s.audio, 0o644); err != nil {
				return true, fmt.Errorf("failed to write output: %w", err)
			}
		}
		return false, s.send(map[string]any{"type": "playback_ended", "playback_id": msg.PlaybackID})

	case "state":
		if !s.submitted || msg.State.Phase != entities.PhaseIdle {
			return false, nil
		}
		s.out.reset()
		if msg.State.LastError != "" {
			return true, fmt.Errorf("turn failed: %s", msg.State.LastError)
		}
		if len(msg.State.Messages) > s.messages {
			return true, nil
		}

	case "error":
		return true, fmt.Errorf("server rejected request: %s (%s)", msg.Message, msg.ErrorCode)
	}
	return false, nil
}

// stream sends the clip as microphone chunks and ends the recording
func (s *converseSession) stream() error {
	if err := s.send(map[string]any{"type": "capture_ready", "mime_type": s.clip.MimeType}); err != nil {
		return err
	}
	for offset := 0; offset < len(s.clip.Data); offset += converseChunkSize {
		end := min(offset+converseChunkSize, len(s.clip.Data))
		if err := s.conn.WriteMessage(websocket.BinaryMessage, s.clip.Data[offset:end]); err != nil {
			return fmt.Errorf("failed to send audio: %w", err)
		}
	}
	s.submitted = true
	return s.send(map[string]any{"type": "stop_recording"})
}

func (s *converseSession) send(msg map[string]any) error {
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return s.conn.WriteJSON(msg)
}

// next returns the next JSON message, collecting reply audio on the way
func (s *converseSession) next() (*serverMessage, error) {
	for {
		s.conn.SetReadDeadline(time.Now().Add(converseTimeout))
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil, errors.New("server closed the session")
			}
			return nil, err
		}
		if kind == websocket.BinaryMessage {
			if s.speaking != "" {
				s.audio = append(s.audio, data...)
			}
			continue
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid server message: %w", err)
		}
		return &msg, nil
	}
}
