// Package wifi provides the network station used during bring-up.
//
// Station is the contract the connection machine relies on: Connect returns
// immediately and status changes arrive on a callback. HostStation
// implements it on a Linux host by polling an interface for an IPv4 address,
// optionally supervising wpa_supplicant for that interface.
//
// Status mapping:
//   - interface missing: no_ap_found
//   - interface present without IPv4: connecting
//   - IPv4 assigned: got_ip
//   - supplicant could not be kept running: connect_fail
package wifi
