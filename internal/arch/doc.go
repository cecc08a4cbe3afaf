// Package arch holds architecture conformance tests. The checks pin the
// dependency directions between the engine, the endpoint adapters, the
// bridges and the CLI, so the engine stays free of transport libraries.
package arch
