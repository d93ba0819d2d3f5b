package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/normative-retrieval/internal/core/domain"
	"github.com/kirillkom/normative-retrieval/internal/core/ports"
)

// RetrievalReply carries either a result or a typed error. A no-results
// reply carries both.
type RetrievalReply struct {
	Result *domain.RetrieveResult `json:"result,omitempty"`
	Error  *ReplyError            `json:"error,omitempty"`
}

type ReplyError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

const (
	kindInvalidInput = "invalid_input"
	kindCanceled     = "canceled"
)

// HandleRetrieval decodes one request, runs it and encodes the reply. The
// returned status is the error kind, empty on success.
func HandleRetrieval(ctx context.Context, retriever ports.Retriever, data []byte) ([]byte, string) {
	var req domain.RetrieveRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return encodeReply(RetrievalReply{Error: &ReplyError{
			Kind:    kindInvalidInput,
			Message: fmt.Sprintf("decode request: %v", err),
		}}), kindInvalidInput
	}

	result, err := retriever.Retrieve(ctx, req.ToQuery(), req.ResolveOptions(retriever.DefaultOptions()))
	reply := RetrievalReply{Result: result}
	if err != nil {
		reply.Error = &ReplyError{Kind: errorKind(err), Message: err.Error()}
		return encodeReply(reply), reply.Error.Kind
	}
	return encodeReply(reply), ""
}

func errorKind(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return kindInvalidInput
	case domain.IsKind(err, domain.ErrNoResults):
		return "no_results"
	case domain.IsKind(err, domain.ErrTemporary):
		return "temporary"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	case errors.Is(err, context.Canceled):
		return kindCanceled
	default:
		return "internal"
	}
}

func shutdownReply() []byte {
	return encodeReply(RetrievalReply{Error: &ReplyError{Kind: kindCanceled, Message: "worker is shutting down"}})
}

func encodeReply(reply RetrievalReply) []byte {
	body, err := json.Marshal(reply)
	if err != nil {
		body, _ = json.Marshal(RetrievalReply{Error: &ReplyError{Kind: "internal", Message: err.Error()}})
	}
	return body
}
