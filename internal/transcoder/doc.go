// Package transcoder drives ffmpeg for one fetched item: it converts the
// registered audio attachment into the library output format, scraping
// stderr for elapsed-time progress and failure markers.
package transcoder
