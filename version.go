// Package omni is an adaptive coding assistant: it plans a goal, then
// drives a tool-calling loop that feeds every failure back to the model
// until the goal is done or the iteration budget is spent.
package omni

// Version is the current version of omni.
const Version = "0.1.0"

// GetVersion returns the current version string.
func GetVersion() string {
	return Version
}
