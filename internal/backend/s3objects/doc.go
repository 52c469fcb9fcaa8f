// Package s3objects stores content media in an S3-compatible bucket.
//
// It is selected with storage.driver: s3 and works against AWS S3, MinIO, or
// the hosted backend's own S3 gateway. Addressing is always path style so
// custom endpoints work without DNS buckets.
package s3objects
