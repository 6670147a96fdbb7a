// Package node assembles one Neurite device.
//
// A Node is constructed explicitly from config and its collaborators (broker
// session, network station, output sink) and owns everything else: the
// connection machine, the command pipeline and the status reporter. It is
// the connection.Actions implementation, so each lifecycle step is a method
// here:
//
//	ConnectNetwork  station.Connect, statuses posted back as events
//	ConnectBroker   session.Connect, callbacks posted back as events
//	EnterSteady     start relaying, subscribe to "from", publish checkin to "to"
//	SteadyTick      status report
//
// Input sources call InputByte; broker messages on "from" are written to the
// output sink.
package node
