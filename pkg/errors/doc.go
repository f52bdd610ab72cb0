// Package errors provides standardized error definitions for the wcferry
// client. All error definitions are centralized here so callers can test
// failure kinds with errors.Is regardless of which component produced them.
package errors
