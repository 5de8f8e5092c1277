// Package signaling pairs two browser peers for a direct WebRTC file
// transfer. The Coordinator reacts to typed events from connected
// clients, mutates the session store, and relays handshake messages
// (offer/answer/ICE candidates) between the two participants. File
// bytes never pass through this package; it only brokers metadata.
package signaling
