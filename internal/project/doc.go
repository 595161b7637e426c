// Package project resolves the project directory that agent activity is
// attributed to.
//
// Worktree Mapping:
//
// Agents often run inside git linked worktrees (for example
// <repo>/.worktrees/task-12). Activity there belongs to the main project,
// so a worktree directory is mapped to its main checkout:
//   - a linked worktree is detected from its ".git" file, whose gitdir
//     points into <main>/.git/worktrees/<name>
//   - directories that are no longer git checkouts but still carry a
//     "worktrees/task-" path segment are mapped by path
//
// Migration:
//
// Migrator moves sessions and events already recorded under worktree
// directories to the main project.
package project
