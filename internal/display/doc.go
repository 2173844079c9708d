// Package display provides terminal output helpers shared by the briefflow
// commands: warnings and aligned tables.
//
// Display warnings with optional components:
//
//	warning := display.Warning{
//	    Title:      "Workflow definition changed",
//	    Message:    "run 7f3c... was recorded with a different fingerprint",
//	    Suggestion: "Start a new run with --fresh",
//	}
//	warning.Display(os.Stderr)
//
// Print aligned columns:
//
//	t := display.NewTable("TASK", "STATUS")
//	t.Row("collect", "succeeded")
//	t.Render(os.Stdout)
//
// Colors are only written when the writer is a terminal.
package display
