// Package shell maps domain events to and from their stored representation
// and provides the retry helper used at append call sites.
//
// The mapping is the only place in the codebase that knows both the domain
// types and the storage format: writes serialize with encoding/json, reads
// deserialize with jsoniter's fastest config, and the event-type dispatch is
// exhaustive over the closed union in package core (an unknown stored type is
// an error, never a silent skip).
//
// In Domain-Driven Design or Hexagonal Architecture terminology, this would be
// called the 'application' or 'adapter' layer.
package shell
