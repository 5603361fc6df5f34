// Package shared provides common utilities and test helpers used across the
// KPI pipeline packages.
//
// # Structure
//
//   - testutil: captured slog handlers, log assertions and the sample fact
//     tables used by package tests
//
// # Usage Guidelines
//
// This package should only contain test utilities used by multiple packages.
// It should NOT contain business logic or create circular dependencies with
// other internal packages.
//
// Example usage:
//
//	func TestSomething(t *testing.T) {
//	    logger, handler := testutil.NewTestLogger(t)
//	    dir := testutil.WriteSampleCSVs(t)
//	    // ...
//	    testutil.AssertNoErrors(t, handler)
//	}
package shared
