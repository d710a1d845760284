// Package signing builds SigV4 query-presigned URLs for the streaming
// recognition websocket.
package signing
