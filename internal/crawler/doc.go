// Package crawler holds the shared vocabulary of the pension crawler: input
// rows, result items, fetch requests and the collaborator interfaces the
// search, download, export and pipeline packages are written against.
//
// It also owns the fetch policies every fetcher applies: the domain
// blacklist and the retry policy for transient failures.
package crawler
