// Package blobstore stores named immutable blobs, the persisted index
// versions and their CURRENT pointer, on the local filesystem, MinIO or S3.
//
// Names are slash-separated ("versions/3.xref"). Every backend writes a blob
// atomically: readers see either the previous content or the new one.
package blobstore
