// Package service exposes the sequence index operations: accepting bulk
// uploads that rebuild the index in the background, reporting build status,
// and answering similarity queries against the installed index.
//
// Transports such as the HTTP server and the CLI are thin wrappers around it.
package service
