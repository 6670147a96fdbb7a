// Package console provides an interactive input source for development.
//
// Typing a line at the prompt is equivalent to sending it over a UART with
// the configured terminator. Messages from the broker are printed through
// Stdout so the prompt stays intact.
package console
