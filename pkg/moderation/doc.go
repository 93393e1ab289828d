// Package moderation rejects project text containing blocked terms.
//
// A TermSet is immutable; With and Without return new sets. A Filter holds
// the current set behind an atomic pointer so requests never see a
// half-loaded list, and Watch reloads the set whenever its YAML file
// changes:
//
//	terms:
//	  - injurie
//	  - "doua cuvinte"
//
// Single words match whole tokens, case-insensitively. Terms with spaces
// match consecutive tokens.
package moderation
