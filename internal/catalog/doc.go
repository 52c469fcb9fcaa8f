// Package catalog manages therapeutic entertainment content and its media.
//
// Content rows live in the entertainments table; media and cover files live
// in the entertainment_media bucket under the media/ and covers/ folders.
// Rows reference files by public URL, so deleting content also removes the
// files those URLs point at. File removal is best-effort and never blocks the
// row delete.
package catalog
