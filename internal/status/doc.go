// Package status publishes periodic device status from steady state.
//
// The connection machine calls Reporter.Tick on every steady tick; the
// reporter rate-limits to status.interval and publishes a Report to the
// status topic as JSON or canonical CBOR.
package status
