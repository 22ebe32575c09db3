// Package fileindex is the default search backend: an in-memory set of the
// file paths under one root, fuzzy matched per query.
//
// An Index walks its root once on Open, skipping ignored names and
// .gitignore matches, then keeps itself current from filesystem
// notifications when watching is enabled. A .gitignore change triggers a
// full rescan.
//
//	ix, err := fileindex.Open(ctx, root, []string{".git", "node_modules"}, fileindex.DefaultOptions())
//	if err != nil {
//		return err
//	}
//	defer ix.Dispose(ctx)
//	results, err := ix.Query(ctx, "maingo", search.QueryOptions{SmartCase: true})
package fileindex
