// Package google provides a Google Cloud Speech-to-Text recognition engine.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ai-live-copilot-service/internal/service/stt"
)

// chunkDuration is the audio span sent per request.
const chunkDuration = 100 * time.Millisecond

// chunkBytes returns the size of one chunk of 16-bit mono audio at rate Hz.
func chunkBytes(rate int32) int {
	if rate <= 0 {
		rate = DefaultConfig().SampleRateHz
	}
	return int(rate) * 2 * int(chunkDuration/time.Millisecond) / 1000
}

// Config holds recognition settings.
type Config struct {
	LanguageCode   string
	SampleRateHz   int32
	InterimResults bool
	AudioEncoding  string
}

// DefaultConfig returns default recognition settings.
func DefaultConfig() Config {
	return Config{
		LanguageCode:   "en-US",
		SampleRateHz:   8000,
		InterimResults: true,
		AudioEncoding:  "LINEAR16",
	}
}

// Adapter implements stt.Engine using Google Cloud Speech-to-Text streaming
// recognition. Google closes a stream after roughly five minutes; that is
// reported as OnEnd so the caller restarts it.
type Adapter struct {
	client *speech.Client
	cfg    Config
	source io.Reader

	mu     sync.Mutex
	cancel context.CancelFunc
	stream speechpb.Speech_StreamingRecognizeClient
}

// New creates a Google engine reading audio from source.
// Requires GOOGLE_APPLICATION_CREDENTIALS to be set.
func New(ctx context.Context, cfg Config, source io.Reader) (*Adapter, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", stt.ErrUnsupported, err)
	}
	return &Adapter{client: c, cfg: cfg, source: source}, nil
}

func (a *Adapter) Name() string { return "google" }

// Start opens a streaming recognition session and sends the config.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		a.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)

	stream, err := a.client.StreamingRecognize(runCtx)
	if err != nil {
		cancel()
		return classify(err)
	}

	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   parseAudioEncoding(a.cfg.AudioEncoding),
					SampleRateHertz:            a.cfg.SampleRateHz,
					LanguageCode:               a.cfg.LanguageCode,
					EnableAutomaticPunctuation: true,
				},
				InterimResults: a.cfg.InterimResults,
			},
		},
	})
	if err != nil {
		cancel()
		return classify(err)
	}

	a.cancel = cancel
	a.stream = stream

	go a.pump(runCtx, stream)
	go a.listen(runCtx, stream, cb)
	return nil
}

// Stop cancels the current stream. Idempotent.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.stream = nil
	return nil
}

// Close releases the underlying client.
func (a *Adapter) Close() error {
	a.Stop()
	return a.client.Close()
}

// pump forwards audio from the source until the run ends or the source is
// exhausted.
func (a *Adapter) pump(ctx context.Context, stream speechpb.Speech_StreamingRecognizeClient) {
	buf := make([]byte, chunkBytes(a.cfg.SampleRateHz))
	for ctx.Err() == nil {
		n, err := a.source.Read(buf)
		if n > 0 {
			sendErr := stream.Send(&speechpb.StreamingRecognizeRequest{
				StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
					AudioContent: append([]byte(nil), buf[:n]...),
				},
			})
			if sendErr != nil {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warn().Err(err).Str("sttProvider", "google").Msg("Audio source read failed")
			}
			_ = stream.CloseSend()
			return
		}
	}
}

// listen receives responses and invokes callbacks until the stream ends.
func (a *Adapter) listen(ctx context.Context, stream speechpb.Speech_StreamingRecognizeClient, cb stt.Callback) {
	for {
		resp, err := stream.Recv()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			a.finish(err, cb)
			return
		}
		if st := resp.GetError(); st != nil && st.GetCode() != int32(codes.OK) {
			a.finish(status.ErrorProto(st), cb)
			return
		}

		var r stt.Result
		var interim []string
		for _, res := range resp.GetResults() {
			alts := res.GetAlternatives()
			if len(alts) == 0 {
				continue
			}
			alt := alts[0]
			if res.GetIsFinal() {
				r.Finals = append(r.Finals, stt.Final{Text: alt.GetTranscript(), Confidence: float64(alt.GetConfidence())})
			} else {
				interim = append(interim, alt.GetTranscript())
			}
		}
		r.Interim = strings.TrimSpace(strings.Join(interim, ""))
		cb.OnResult(r)
	}
}

// finish maps stream termination onto the callback contract: normal ends and
// duration limits are OnEnd, terminal failures are OnError only, and other
// faults are reported before the stream is treated as ended.
func (a *Adapter) finish(err error, cb stt.Callback) {
	if errors.Is(err, io.EOF) || status.Code(err) == codes.OutOfRange {
		cb.OnEnd()
		return
	}
	err = classify(err)
	cb.OnError(err)
	if !stt.IsTerminal(err) {
		cb.OnEnd()
	}
}

func classify(err error) error {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated:
		return fmt.Errorf("%w: %v", stt.ErrPermissionDenied, err)
	case codes.Unimplemented:
		return fmt.Errorf("%w: %v", stt.ErrUnsupported, err)
	default:
		return err
	}
}

func parseAudioEncoding(s string) speechpb.RecognitionConfig_AudioEncoding {
	switch s {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}
