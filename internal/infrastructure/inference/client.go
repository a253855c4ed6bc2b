package inference

import (
	"context"
	"errors"
	"io"

	"jan-server/services/envchat-api/internal/domain/completion"
	chatclient "jan-server/services/envchat-api/internal/utils/httpclients/chat"
)

const userAgentHeader = "x-ms-useragent"

// Client adapts the chat completion HTTP client to completion.Client.
type Client struct {
	chat       *chatclient.ChatCompletionClient
	creds      func(context.Context) (chatclient.Credentials, error)
	apiVersion string
	userAgent  string
	// withTransport forwards gateway headers and query parameters. Scoped clients
	// talk to the provider directly and only send the user agent.
	withTransport bool
}

var _ completion.Client = (*Client)(nil)

func (c *Client) Complete(ctx context.Context, req *completion.Request) (*completion.Result, error) {
	creds, err := c.creds(ctx)
	if err != nil {
		return nil, err
	}
	body := *req
	body.Stream = false
	resp, err := c.chat.CreateChatCompletion(ctx, creds, c.call(req), &body)
	if err != nil {
		return nil, err
	}
	return toResult(resp), nil
}

func (c *Client) Stream(ctx context.Context, req *completion.Request) (completion.FragmentStream, error) {
	creds, err := c.creds(ctx)
	if err != nil {
		return nil, err
	}
	body := *req
	body.Stream = true
	stream, err := c.chat.CreateChatCompletionStream(ctx, creds, c.call(req), &body)
	if err != nil {
		return nil, err
	}
	return &fragmentStream{stream: stream}, nil
}

func (c *Client) call(req *completion.Request) chatclient.Call {
	call := chatclient.Call{
		Deployment: req.Model,
		APIVersion: c.apiVersion,
		Headers:    map[string]string{},
	}
	if c.userAgent != "" {
		call.Headers[userAgentHeader] = c.userAgent
	}
	if c.withTransport {
		for key, value := range req.Transport.Headers {
			call.Headers[key] = value
		}
		call.Query = req.Transport.Query
	}
	return call
}

type fragmentStream struct {
	stream *chatclient.ChatCompletionStream
}

func (s *fragmentStream) Recv() (*completion.Result, error) {
	chunk, err := s.stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	return toResult(chunk), nil
}

func (s *fragmentStream) Close() error {
	return s.stream.Close()
}

func toResult(resp *chatclient.Completion) *completion.Result {
	result := &completion.Result{
		ID:            resp.ID,
		Object:        resp.Object,
		Created:       resp.Created,
		Model:         resp.Model,
		Usage:         resp.Usage,
		CorrelationID: resp.CorrelationID,
		Choices:       make([]completion.Choice, 0, len(resp.Choices)),
	}
	for _, choice := range resp.Choices {
		result.Choices = append(result.Choices, completion.Choice{
			Index:        choice.Index,
			Message:      toMessage(choice.Message),
			Delta:        toMessage(choice.Delta),
			FinishReason: choice.FinishReason,
		})
	}
	return result
}

func toMessage(msg *chatclient.CompletionMessage) *completion.ResultMessage {
	if msg == nil {
		return nil
	}
	return &completion.ResultMessage{
		Role:    msg.Role,
		Content: msg.Content,
		Context: msg.Context,
	}
}
