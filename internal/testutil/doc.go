// Package testutil provides deterministic fakes for tests: a manual wall
// clock, sequential document ids, a scriptable identity provider and
// fault-injecting wrappers around the document and blob stores.
package testutil
