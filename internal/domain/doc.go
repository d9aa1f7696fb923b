// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (pack.go, rollout.go, booking.go, business.go, ...) hold shared
// types, the pure rules that govern them and the repository contracts the adapters
// implement. Nothing here talks to a database, Redis or the network.
package domain
