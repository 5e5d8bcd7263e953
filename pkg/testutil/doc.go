// Package testutil provides utilities for testing wrapup components.
//
// Key components:
//   - Archive builders for every supported archive format
//   - ArtifactServer: an httptest server for release indexes and archives
//   - TestEnvironment: an isolated root with paths, configuration and a
//     scripted command runner wired together
//   - File helpers and TreeDigest for comparing end states
//
// Usage guidelines:
//   - All test data is defined inline, not in external files
//   - Each test gets its own TestEnvironment; nothing is shared
package testutil
