// Package adapter turns a site's listing index and detail pages into scraper.Listing records.
//
// Every site shares one pagination state machine, implemented by Base:
//
//	Start -> FetchPage(1) -> ... -> FetchPage(n) -> Done
//	                 \-> Aborted (returns what was collected so far)
//
// Concrete sites differ only by their Profile: which pages need a headless browser, the
// container count below which a page is treated as the last one, and a few markup quirks.
package adapter
