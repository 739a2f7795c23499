package mcpservice

import "github.com/ggoodman/mcp-stdio-go/mcp"

// Server describes what an MCP server advertises and dispatches into. It is
// a plain value assembled once with NewServer and handed to a transport.
type Server struct {
	Info            mcp.ImplementationInfo
	Instructions    string
	ProtocolVersion string

	Tools     *ToolRegistry
	Resources *ResourceRegistry
	Prompts   *PromptRegistry
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// NewServer builds a Server identified by info. Registries left unset list
// nothing.
func NewServer(info mcp.ImplementationInfo, opts ...ServerOption) *Server {
	s := &Server{Info: info, ProtocolVersion: mcp.ProtocolVersion20241105}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// WithTools sets the tool registry.
func WithTools(r *ToolRegistry) ServerOption {
	return func(s *Server) { s.Tools = r }
}

// WithResources sets the resource registry.
func WithResources(r *ResourceRegistry) ServerOption {
	return func(s *Server) { s.Resources = r }
}

// WithPrompts sets the prompt registry.
func WithPrompts(r *PromptRegistry) ServerOption {
	return func(s *Server) { s.Prompts = r }
}

// WithInstructions sets static human-readable instructions returned during initialize.
func WithInstructions(instr string) ServerOption {
	return func(s *Server) { s.Instructions = instr }
}

// WithPreferredProtocolVersion sets the version answered when a client
// requests one this server does not speak.
func WithPreferredProtocolVersion(version string) ServerOption {
	return func(s *Server) {
		if version != "" {
			s.ProtocolVersion = version
		}
	}
}
