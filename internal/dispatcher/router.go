package dispatcher

import (
	"context"
	"fmt"

	"github.com/aipp-workbench/engine/internal/mcpregistry"
)

// Router combines a built-in executor and a transport executor into a single
// Executor, dispatching on handle.Kind.
type Router struct {
	Builtin   Executor
	Transport Executor
}

// Execute implements Executor.
func (r *Router) Execute(ctx context.Context, conversationID string, handle *mcpregistry.Handle, parameters string) (string, error) {
	switch handle.Kind {
	case mcpregistry.HandleBuiltin:
		if r.Builtin == nil {
			return "", fmt.Errorf("dispatcher: no built-in executor configured for namespace %q", handle.Namespace)
		}
		return r.Builtin.Execute(ctx, conversationID, handle, parameters)
	case mcpregistry.HandleTransport:
		if r.Transport == nil {
			return "", fmt.Errorf("dispatcher: no transport executor configured for server %q", handle.Server.Name)
		}
		return r.Transport.Execute(ctx, conversationID, handle, parameters)
	default:
		return "", fmt.Errorf("dispatcher: unknown handle kind %q", handle.Kind)
	}
}
