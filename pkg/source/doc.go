// Package source defines the contract every policy source implements and the
// conventional priority scale used when registering sources with a resolver.
//
// A source owns the question "what policies do I currently declare, and how do
// they change over time". How it obtains that data (struct tags, fluent
// startup code, a configuration file, an operator API, a distributed
// backplane) is entirely its own business; the resolver consumes only this
// interface.
package source
