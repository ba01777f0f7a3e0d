// Package bot owns the synthetic broker session.
//
// Ownership boundary:
// - the session state machine (Driver)
//
// - process lifecycle wiring (Service)
//
// State order:
// - login -> discover -> [create_channel] -> select -> publish -> idle -> discover
//
// - create_channel only runs when discover returns no channels.
//
// - login, discover and create_channel transport failures end the session.
//
// - publish failures are logged and the burst continues.
package bot
