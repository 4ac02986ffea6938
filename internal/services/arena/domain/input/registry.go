package input

// CommandHandler executes one frozen command on the authoritative goroutine.
type CommandHandler func(Command) error

// Registry maps command kinds to handlers. It is populated at wiring time
// and read-only afterwards; unknown kinds are a counting matter for the
// caller, never fatal.
type Registry struct {
	handlers map[CommandKind]CommandHandler
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[CommandKind]CommandHandler)}
}

// Register binds a handler to a kind, replacing any previous binding.
func (r *Registry) Register(kind CommandKind, h CommandHandler) {
	r.handlers[kind] = h
}

// Handler returns the handler bound to kind.
func (r *Registry) Handler(kind CommandKind) (CommandHandler, bool) {
	h, ok := r.handlers[kind]
	return h, ok
}
