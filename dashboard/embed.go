// Package dashboard provides the embedded inspector page for statestore.
//
// The page subscribes to the server's Server-Sent Events stream and renders
// the current state along with the fields each update changed. It is
// embedded at compile time so the CLI ships as a single binary.
package dashboard

import "embed"

// Assets is an embedded filesystem containing the inspector page.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - Inspector page with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS
