// Package validation checks domain events against field-level and
// policy-level rules before they reach storage.
//
// Validation is stateless with respect to the event stream: it never reads
// prior events. The single stateful collaborator is the consent gate, an
// external lookup consulted for events that carry protected health
// information.
package validation
