// Package cli parses command-line arguments for the flowgrid binary and
// turns them into an app.Config, deciding between the run, check, and
// serve modes. Process-level concerns like usage output and exit codes
// live here so the app layer never calls os.Exit.
package cli
