// Package tools defines the callable tool interface and the registry that
// maps tool names to schema-validated handlers. The registry drives both
// dispatch and self-description: every registered tool carries a reflected
// input schema used to validate arguments before its handler runs.
package tools
