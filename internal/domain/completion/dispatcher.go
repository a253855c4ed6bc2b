package completion

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"jan-server/services/envchat-api/internal/domain/environment"
	"jan-server/services/envchat-api/internal/infrastructure/logger"
	"jan-server/services/envchat-api/internal/utils/platformerrors"
)

// FragmentStream is a lazy, single-consumer sequence of response fragments. Recv
// returns io.EOF after the last fragment. Fragments are not buffered.
type FragmentStream interface {
	Recv() (*Result, error)
	Close() error
}

// Client executes completion requests against one provider endpoint.
type Client interface {
	Complete(ctx context.Context, req *Request) (*Result, error)
	Stream(ctx context.Context, req *Request) (FragmentStream, error)
}

// ClientProvider selects the client for an environment: a scoped client when the
// environment carries credentials, the default client otherwise.
type ClientProvider interface {
	ClientFor(ctx context.Context, env *environment.Environment) (Client, error)
}

// Outcome holds either a batch result or a stream.
type Outcome struct {
	Result *Result
	Stream FragmentStream
}

// Dispatcher executes built requests.
type Dispatcher struct {
	clients ClientProvider
	log     zerolog.Logger
}

func NewDispatcher(clients ClientProvider) *Dispatcher {
	return &Dispatcher{
		clients: clients,
		log:     logger.Component("completion_dispatcher"),
	}
}

// Dispatch runs req in the mode it asks for.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request, env *environment.Environment) (*Outcome, error) {
	if req.Stream {
		stream, err := d.Stream(ctx, req, env)
		if err != nil {
			return nil, err
		}
		return &Outcome{Stream: stream}, nil
	}
	result, err := d.Complete(ctx, req, env)
	if err != nil {
		return nil, err
	}
	return &Outcome{Result: result}, nil
}

// Complete runs req as a single non-streaming call.
func (d *Dispatcher) Complete(ctx context.Context, req *Request, env *environment.Environment) (*Result, error) {
	client, err := d.clientFor(ctx, env)
	if err != nil {
		return nil, err
	}
	sendable := withoutToolTurns(req)
	sendable.Stream = false

	result, err := client.Complete(ctx, sendable)
	if err != nil {
		return nil, d.providerError(ctx, err, "completion request failed")
	}
	return result, nil
}

// Stream runs req as a streaming call. The caller owns the returned stream and
// must Close it.
func (d *Dispatcher) Stream(ctx context.Context, req *Request, env *environment.Environment) (FragmentStream, error) {
	client, err := d.clientFor(ctx, env)
	if err != nil {
		return nil, err
	}
	sendable := withoutToolTurns(req)
	sendable.Stream = true

	stream, err := client.Stream(ctx, sendable)
	if err != nil {
		return nil, d.providerError(ctx, err, "streaming completion request failed")
	}
	return stream, nil
}

func (d *Dispatcher) clientFor(ctx context.Context, env *environment.Environment) (Client, error) {
	if d.clients == nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeNotConfigured, "completion provider is not configured", nil, "5a9c3e7f-2d1b-4f8e-a6c4-9b3d7e1f5a82")
	}
	client, err := d.clients.ClientFor(ctx, env)
	if err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to create completion client")
	}
	return client, nil
}

// providerError keeps platform errors as they are and marks anything else as an
// upstream failure.
func (d *Dispatcher) providerError(ctx context.Context, err error, message string) error {
	d.log.Error().Err(err).Int("provider_status", platformerrors.ProviderStatus(err)).Msg(message)
	if platformerrors.GetPlatformError(err) != nil {
		return err
	}
	return platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeExternal, message, err, "e7b1d5a9-3c8f-4e2b-9d6a-1f4c8b2e7d53")
}

// withoutToolTurns returns a shallow copy of req without tool-role messages.
func withoutToolTurns(req *Request) *Request {
	out := *req
	out.Messages = make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, message := range req.Messages {
		if message.Role == openai.ChatMessageRoleTool {
			continue
		}
		out.Messages = append(out.Messages, message)
	}
	return &out
}
