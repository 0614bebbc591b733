// Package migration defines the contract every provider plugin must satisfy.
// It holds the shared request/result/status vocabulary, the Handler interface
// that provider implementations expose, the error taxonomy used across plugin
// boundaries, and the boundary guard that converts plugin faults into
// structured results.
//
// Provider packages implement Handler and register a factory with the plugin
// registry; callers never see a raw handler fault, only a Result or Status
// with Success=false and ErrorMessage set.
package migration
