// Package testing provides standardised tests and benchmarks for
// implementations of the kv.IStore interface.
//
// The package contains:
//   - testing: A test suite validating conformance to the IStore contract
//   - benchmark: Performance tests for measuring throughput of common
//     store operations
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func() kv.IStore {
//		return openMyStore()
//	}
//
//	// Running the standard test suite
//	kvtesting.RunStoreTests(t, "MyStore", factory)
//
//	// Running performance benchmarks
//	kvtesting.RunStoreBenchmarks(b, "MyStore", factory)
package testing
