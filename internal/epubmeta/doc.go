// Package epubmeta pulls a best-effort title, author and cover image out of
// an EPUB file held in memory.
//
// The package document of an EPUB is located through META-INF/container.xml
// and scanned with a lenient XML tokenizer. Cover detection tries four
// heuristics in a fixed order and uses the first one that matches:
//
//  1. <meta name="cover" content="ID"/> pointing at a manifest item
//  2. a manifest item with properties="cover-image"
//  3. a manifest image item whose id contains "cover"
//  4. a manifest item whose href contains "cover" and has an image extension
//
// Neither ExtractCover nor ExtractMetadata report errors. Malformed or
// incomplete archives produce a nil cover or an empty Metadata value, which
// lets an upload flow fall back to the filename and a placeholder image.
package epubmeta
