// Package assets serves the client bundle and static files from a Source.
//
// Two sources are provided: Dir reads a local build directory and S3 reads
// objects under a bucket prefix. A Manifest maps logical names such as
// "app.js" to fingerprinted names produced by the build:
//
//	{
//	  "app.js": "app.3f9a1c2b.js",
//	  "app.css": "app.77d0e1aa.css"
//	}
//
// Fingerprinted files are served with an immutable cache policy.
package assets
