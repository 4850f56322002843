package tools

import "github.com/haasonsaas/relay/internal/policy"

// DefaultRegistry wires the five built-in tools against one policy engine.
func DefaultRegistry(engine *policy.Engine) *Registry {
	r := NewRegistry()
	r.MustRegister(NewReadFileTool(engine))
	r.MustRegister(NewListDirTool(engine))
	r.MustRegister(NewWriteFileTool(engine))
	r.MustRegister(NewCalculatorTool())
	r.MustRegister(NewRunCmdTool(engine))
	return r
}
