// Package flows contains the pure orchestration logic behind the engine's
// public operations: request classification, rotation, login, and logout.
//
// Each flow takes a Deps struct of funcs and returns a result struct with
// a failure-kind enum, so the decision logic is testable without Redis,
// SQL, or the root package. Flows never import the root package.
package flows
