// File: pool/doc.go
// Package pool
// Author: momentics <momentics@gmail.com>
//
// Fixed-size byte-buffer pooling, used by progress.Engine
// to recycle recv-buffer byte slices across completions instead of
// allocating one per inbound frame.
package pool
