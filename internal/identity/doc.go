// Package identity keeps the device's stable identity across restarts.
//
// The uid is what the device announces in its checkin message and what
// {id} expands to in topic templates. It is generated once (a random UUID)
// unless device.id is set in config, in which case the store is not consulted
// for the uid and only counts boots.
package identity
