// Package core contains domain events for clinical activity tracking:
// home-exercise therapy sessions observed and reviewed by therapists.
//
// This package implements domain events following proper domain-driven design
// patterns, avoiding CRUD-style antipatterns. Events represent meaningful
// clinical occurrences like ExerciseSessionCompleted and AlertRaised rather
// than generic create/update operations.
//
// The DomainEvent interface is a closed union over the five event kinds; the
// unexported marker method keeps outside packages from adding variants, so
// dispatch sites can switch exhaustively.
//
// In Domain-Driven Design or Hexagonal Architecture terminology, this would be
// called the 'domain' layer.
package core
