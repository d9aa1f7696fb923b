// Package app provides the application service layer.
//
// Orchestrates use cases: pack versioning and rollout control, pins and resolution, the
// setup wizard, bookings and availability, staff and customer management, support cases
// and platform settings. Sits between HTTP handlers and domain repositories. Depends on
// domain interfaces, not concrete implementations.
package app
