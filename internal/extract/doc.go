// Package extract pulls a bounded excerpt of plain text out of library files.
//
// EPUB containers are read through their OPF spine and the first sections are
// stripped of markup. PDFs go through a plain-text reader and text files are
// read directly. Every result is capped at a character limit, and container
// formats are raced against a timeout so one pathological file cannot stall a
// scan.
package extract
