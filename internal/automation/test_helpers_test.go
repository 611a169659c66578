package automation

import (
	"context"
	"strings"
	"sync"
)

type recordingChatCollaborator struct {
	mutex     sync.Mutex
	requests  []ChatRequest
	responses map[string]string
	model     string
	failure   error
}

func (collaborator *recordingChatCollaborator) Complete(_ context.Context, request ChatRequest) (ChatResponse, error) {
	collaborator.mutex.Lock()
	defer collaborator.mutex.Unlock()
	collaborator.requests = append(collaborator.requests, request)
	if collaborator.failure != nil {
		return ChatResponse{}, collaborator.failure
	}
	text := "reply"
	for fragment, response := range collaborator.responses {
		if strings.Contains(request.Message, fragment) {
			text = response
		}
	}
	return ChatResponse{Text: text, Model: collaborator.model}, nil
}

func (collaborator *recordingChatCollaborator) recordedRequests() []ChatRequest {
	collaborator.mutex.Lock()
	defer collaborator.mutex.Unlock()
	return append([]ChatRequest(nil), collaborator.requests...)
}

type stubCapabilityService struct {
	mutex       sync.Mutex
	invocations []CapabilityInvocation
	result      any
	failure     error
}

func (service *stubCapabilityService) Invoke(_ context.Context, invocation CapabilityInvocation) (any, error) {
	service.mutex.Lock()
	defer service.mutex.Unlock()
	service.invocations = append(service.invocations, invocation)
	if service.failure != nil {
		return nil, service.failure
	}
	return service.result, nil
}

type remoteCall struct {
	endpoint string
	payload  any
}

type stubRemoteInvoker struct {
	mutex    sync.Mutex
	calls    []remoteCall
	response any
	failure  error
}

func (invoker *stubRemoteInvoker) PostJSON(_ context.Context, endpoint string, payload any) (any, error) {
	invoker.mutex.Lock()
	defer invoker.mutex.Unlock()
	invoker.calls = append(invoker.calls, remoteCall{endpoint: endpoint, payload: payload})
	if invoker.failure != nil {
		return nil, invoker.failure
	}
	return invoker.response, nil
}
