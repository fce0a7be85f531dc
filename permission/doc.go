// Package permission maps BENTO permission strings to bit positions in a
// 64-bit mask and assembles role masks for the four default roles.
//
// # Design
//
// Permission names follow the "resource:scope:action" convention of the
// reporting system ("users:global:create", "reports:local:read"). A
// [Registry] assigns each name a bit at registration time and is frozen
// before use; a [RoleManager] resolves a [RoleLevel] to its precomputed
// [Mask64]. Both are immutable after freeze and safe for concurrent reads.
//
// # What this package must NOT do
//
//   - Perform I/O or talk to storage.
//   - Import bentoauth or any sibling package.
package permission
