package speech

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

// GeminiClient implements Opener against the Gemini Live API.
type GeminiClient struct {
	client *genai.Client
}

// NewGeminiClient creates a client for the Gemini Live API.
func NewGeminiClient(ctx context.Context, apiKey string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiClient{client: client}, nil
}

// Open connects a Live session with audio responses enabled.
func (g *GeminiClient) Open(ctx context.Context, cfg SessionConfig) (Session, error) {
	connectCfg := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
	}
	if cfg.Instructions != "" {
		connectCfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: cfg.Instructions}},
		}
	}
	if cfg.Voice != "" {
		connectCfg.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}

	session, err := g.client.Live.Connect(ctx, cfg.Model, connectCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect Live session: %w", err)
	}

	s := &geminiSession{
		session: session,
		events:  make(chan Event, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}

	s.wg.Add(1)
	go s.readLoop()

	return s, nil
}

// geminiSession wraps one genai Live session. The underlying session handle
// is shared by both relay flows, so sends are serialized behind sendMu.
type geminiSession struct {
	session   *genai.Session
	events    chan Event
	errors    chan error
	done      chan struct{}
	closeOnce sync.Once
	sendMu    sync.Mutex
	wg        sync.WaitGroup
}

func (s *geminiSession) SendText(ctx context.Context, text string) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	select {
	case <-s.done:
		return fmt.Errorf("session is closed")
	default:
	}

	err := s.session.SendClientContent(genai.LiveClientContentInput{
		Turns: []*genai.Content{
			{Role: "user", Parts: []*genai.Part{{Text: text}}},
		},
		TurnComplete: genai.Ptr(true),
	})
	if err != nil {
		return fmt.Errorf("failed to send text turn: %w", err)
	}
	return nil
}

func (s *geminiSession) SendAudio(ctx context.Context, audio []byte, sampleRate int) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	select {
	case <-s.done:
		return fmt.Errorf("session is closed")
	default:
	}

	err := s.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{
			Data:     audio,
			MIMEType: fmt.Sprintf("audio/pcm;rate=%d", sampleRate),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send audio: %w", err)
	}
	return nil
}

func (s *geminiSession) Events() <-chan Event {
	return s.events
}

func (s *geminiSession) Errors() <-chan error {
	return s.errors
}

func (s *geminiSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.session.Close()

		// Wait for readLoop to finish before closing channels.
		s.wg.Wait()
		close(s.events)
		close(s.errors)
	})
	return err
}

// readLoop receives Live server messages and translates them to Events.
func (s *geminiSession) readLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		msg, err := s.session.Receive()
		if err != nil {
			select {
			case <-s.done:
				return
			case s.errors <- fmt.Errorf("receive error: %w", err):
			default:
			}
			return
		}

		for _, ev := range translateServerMessage(msg) {
			select {
			case <-s.done:
				return
			case s.events <- ev:
			}
		}
	}
}

// translateServerMessage flattens one Live server message into relay events,
// preserving part order. Audio frames come from inline data parts of the
// model turn; text parts are surfaced for diagnostics.
func translateServerMessage(msg *genai.LiveServerMessage) []Event {
	if msg == nil {
		return nil
	}

	var events []Event

	if msg.SetupComplete != nil {
		events = append(events, Event{Kind: EventSetupComplete})
	}

	if sc := msg.ServerContent; sc != nil {
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part == nil {
					continue
				}
				if part.InlineData != nil && len(part.InlineData.Data) > 0 {
					events = append(events, Event{Kind: EventAudio, Audio: part.InlineData.Data})
				}
				if part.Text != "" {
					events = append(events, Event{Kind: EventText, Text: part.Text})
				}
			}
		}
		if sc.TurnComplete {
			events = append(events, Event{Kind: EventTurnComplete})
		}
	}

	return events
}
