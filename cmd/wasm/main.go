//go:build js && wasm

// Command wasm exposes the railway simulator to the browser via WebAssembly.
// After loading, it registers global JavaScript functions:
//
//	runSimulation(scenarioJSON) -> logJSON
//	exportGraph(scenarioJSON, "dot"|"svg") -> string
//
// The scenario is the same document accepted by the railsim CLI.
package main

import (
	"syscall/js"

	"github.com/cxd309/railsim/internal/config"
	"github.com/cxd309/railsim/internal/engine"
	"github.com/cxd309/railsim/internal/export"
)

func main() {
	js.Global().Set("runSimulation", js.FuncOf(runSimulation))
	js.Global().Set("exportGraph", js.FuncOf(exportGraph))
	select {} // keep the WASM module alive until the page is closed
}

func runSimulation(_ js.Value, args []js.Value) any {
	if len(args) < 1 {
		return map[string]any{"error": "no input provided"}
	}

	result, err := engine.RunJSON(args[0].String())
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	return result
}

func exportGraph(_ js.Value, args []js.Value) any {
	if len(args) < 2 {
		return map[string]any{"error": "usage: exportGraph(scenario, format)"}
	}
	s, err := config.Parse([]byte(args[0].String()))
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	g, err := s.Graph.Build()
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	out, err := export.Format(g, args[1].String(), export.DefaultSVGOptions())
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	return out
}
