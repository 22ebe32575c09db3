// Package search coordinates fuzzy filename search across project roots.
//
// A Coordinator resolves a search strategy for each root once (a project's
// custom search command, or the default file index), keeps one live backend
// per root, and merges results when every tracked root is queried together.
//
// Two pieces of shared state back it, both explicitly constructed:
//
//   - ConfigCache maps a Directory to its SearchConfig. The pending
//     resolution is stored, not just the result, so concurrent callers for
//     the same root wait on one provider call. The cache is LRU-bounded and
//     an eviction is logged at error level; it is sized for the number of
//     open roots, so an eviction points at a capacity problem.
//   - Registry maps a Directory to its live backend Handle. Construction is
//     collapsed per root with singleflight and disposal happens at most once.
//
// Shared resolution and construction run detached from the caller's context:
// a caller that gives up stops waiting but does not cancel work other
// callers depend on.
package search
