package completion

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/sashabaranov/go-openai"

	"jan-server/services/envchat-api/internal/utils/platformerrors"
)

// ContentTypeNDJSON is the media type of streamed envelopes.
const ContentTypeNDJSON = "application/json-lines"

// Envelope is the one response shape returned for batch results and stream
// fragments alike.
type Envelope struct {
	ID              string         `json:"id"`
	Model           string         `json:"model"`
	Created         int64          `json:"created"`
	Object          string         `json:"object"`
	Choices         []Choice       `json:"choices"`
	HistoryMetadata map[string]any `json:"history_metadata"`
	CorrelationID   string         `json:"apim-request-id,omitempty"`
}

// StreamError is written as the last record when a stream fails midway.
type StreamError struct {
	Error string `json:"error"`
}

// Normalize shapes a batch result. Choices keep their message, including any
// grounding context.
func Normalize(result *Result, historyMetadata map[string]any) Envelope {
	envelope := newEnvelope(result, historyMetadata)
	for _, choice := range result.Choices {
		envelope.Choices = append(envelope.Choices, Choice{
			Index:        choice.Index,
			Message:      choice.Message,
			FinishReason: choice.FinishReason,
		})
	}
	return envelope
}

// NormalizeFragment shapes one stream fragment. Choices keep only their delta.
func NormalizeFragment(fragment *Result, historyMetadata map[string]any, correlationID string) Envelope {
	envelope := newEnvelope(fragment, historyMetadata)
	if envelope.CorrelationID == "" {
		envelope.CorrelationID = correlationID
	}
	for _, choice := range fragment.Choices {
		delta := choice.Delta
		if delta == nil {
			delta = choice.Message
		}
		envelope.Choices = append(envelope.Choices, Choice{
			Index:        choice.Index,
			Delta:        delta,
			FinishReason: choice.FinishReason,
		})
	}
	return envelope
}

func newEnvelope(result *Result, historyMetadata map[string]any) Envelope {
	if historyMetadata == nil {
		historyMetadata = map[string]any{}
	}
	return Envelope{
		ID:              result.ID,
		Model:           result.Model,
		Created:         result.Created,
		Object:          result.Object,
		Choices:         []Choice{},
		HistoryMetadata: historyMetadata,
		CorrelationID:   result.CorrelationID,
	}
}

// WriteStream drains stream into w as newline-delimited envelopes, one per
// fragment. Each record is flushed before the next fragment is requested. When
// the provider's last fragment carries no finish reason, one extra terminal
// record carries the last reason seen, or stop. The stream is closed on return.
func WriteStream(ctx context.Context, w io.Writer, flush func(), stream FragmentStream, historyMetadata map[string]any, correlationID string) (int, error) {
	defer stream.Close()

	encoder := json.NewEncoder(w)
	written := 0
	var lastReason openai.FinishReason
	var last *Result
	terminated := false

	emit := func(envelope Envelope) error {
		if err := encoder.Encode(envelope); err != nil {
			return err
		}
		written++
		if flush != nil {
			flush()
		}
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		current, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			writeStreamError(encoder, flush, err)
			return written, err
		}

		envelope := NormalizeFragment(current, historyMetadata, correlationID)
		terminated = false
		for _, choice := range envelope.Choices {
			if choice.FinishReason != "" {
				lastReason = choice.FinishReason
				terminated = true
			}
		}
		if err := emit(envelope); err != nil {
			return written, err
		}
		last = current
	}

	if last == nil || terminated {
		return written, nil
	}
	envelope := NormalizeFragment(&Result{
		ID:            last.ID,
		Model:         last.Model,
		Created:       last.Created,
		Object:        last.Object,
		CorrelationID: last.CorrelationID,
	}, historyMetadata, correlationID)
	markTerminal(&envelope, lastReason)
	if err := emit(envelope); err != nil {
		return written, err
	}
	return written, nil
}

// markTerminal ensures the final record carries a finish reason.
func markTerminal(envelope *Envelope, lastReason openai.FinishReason) {
	if lastReason == "" {
		lastReason = openai.FinishReasonStop
	}
	if len(envelope.Choices) == 0 {
		envelope.Choices = append(envelope.Choices, Choice{
			Delta:        &ResultMessage{},
			FinishReason: lastReason,
		})
		return
	}
	for i := range envelope.Choices {
		if envelope.Choices[i].FinishReason == "" {
			envelope.Choices[i].FinishReason = lastReason
		}
	}
}

func writeStreamError(encoder *json.Encoder, flush func(), err error) {
	message := "stream interrupted"
	if platformErr := platformerrors.GetPlatformError(err); platformErr != nil {
		message = platformErr.Message
	}
	_ = encoder.Encode(StreamError{Error: message})
	if flush != nil {
		flush()
	}
}
