// Package live talks to a real-time speech-to-speech session over a
// websocket.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"juru/pcm"

	"nhooyr.io/websocket"
)

const (
	DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	DefaultModel    = "gemini-2.5-flash-native-audio-preview-09-2025"

	readLimit    = 16 << 20
	setupTimeout = 15 * time.Second
)

// Config is the per-session setup sent right after connecting.
type Config struct {
	Model               string
	Instruction         string
	InputTranscription  bool
	OutputTranscription bool
}

// Dialer opens a session. Dial returns once the server acknowledged setup,
// so a returned Stream is ready for audio.
type Dialer interface {
	Dial(ctx context.Context, cfg Config) (Stream, error)
}

// Stream is an open session. Recv returns io.EOF after a normal close.
// SendAudio and Recv may be called from different goroutines.
type Stream interface {
	SendAudio(blob pcm.Blob) error
	Recv() (ServerMessage, error)
	Close() error
}

// StatsReporter is implemented by streams that keep traffic counters.
type StatsReporter interface {
	Stats() Stats
}

type Stats struct {
	ConnectDur   time.Duration
	SentFrames   int
	SentBytes    uint64
	RecvMessages int
}

type Client struct {
	apiKey   string
	endpoint string
}

func NewClient(apiKey, endpoint string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{apiKey: apiKey, endpoint: endpoint}
}

func (c *Client) url() (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("live: endpoint: %w", err)
	}
	if c.apiKey != "" {
		q := u.Query()
		q.Set("key", c.apiKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Client) Dial(ctx context.Context, cfg Config) (Stream, error) {
	endpoint, err := c.url()
	if err != nil {
		return nil, err
	}

	connectStart := time.Now()
	streamCtx, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	conn, _, err := websocket.Dial(streamCtx, endpoint, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("live: dial: %w", err)
	}
	conn.SetReadLimit(readLimit)

	s := &geminiStream{conn: conn, ctx: streamCtx, cancel: cancel}
	if err := s.handshake(ctx, cfg); err != nil {
		s.Close()
		return nil, err
	}
	s.stats.ConnectDur = time.Since(connectStart)
	return s, nil
}

type geminiStream struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	stats Stats

	closeOnce sync.Once
	closeErr  error
}

func (s *geminiStream) handshake(ctx context.Context, cfg Config) error {
	if err := s.writeJSON(newSetupMessage(cfg)); err != nil {
		return fmt.Errorf("live: send setup: %w", err)
	}

	timer := time.AfterFunc(setupTimeout, s.cancel)
	defer timer.Stop()
	for {
		msg, err := s.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return errors.New("live: connection closed before setup completed")
			}
			return fmt.Errorf("live: waiting for setup: %w", err)
		}
		if msg.Error != nil {
			return msg.Error
		}
		if msg.SetupComplete {
			return nil
		}
	}
}

func (s *geminiStream) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

func (s *geminiStream) SendAudio(blob pcm.Blob) error {
	var msg realtimeInputMessage
	msg.RealtimeInput.Audio = blob
	if err := s.writeJSON(msg); err != nil {
		return fmt.Errorf("live: send audio: %w", err)
	}
	s.mu.Lock()
	s.stats.SentFrames++
	s.stats.SentBytes += uint64(len(blob.Data))
	s.mu.Unlock()
	return nil
}

func (s *geminiStream) Recv() (ServerMessage, error) {
	_, data, err := s.conn.Read(s.ctx)
	if err != nil {
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			return ServerMessage{}, io.EOF
		}
		return ServerMessage{}, err
	}
	s.mu.Lock()
	s.stats.RecvMessages++
	s.mu.Unlock()
	return ParseServerMessage(data)
}

func (s *geminiStream) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *geminiStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close(websocket.StatusNormalClosure, "")
		s.cancel()
	})
	return s.closeErr
}
