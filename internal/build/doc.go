// Package build fingerprints client assets for production.
//
// Every file under build.public is copied to build.output with a content
// hash in its name, and manifest.json maps each logical name to its
// fingerprinted file. When assets.s3.bucket is set the output is also
// uploaded so the server can serve it from the bucket.
//
//	builder := build.New(cfg, build.Options{OnProgress: fmt.Println})
//	result, err := builder.Build(ctx)
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("%d assets in %s\n", len(result.Manifest), result.Duration)
//
// # Output Structure
//
//	dist/
//	├── counter.3f9a1c0e.js
//	├── race.77d01b2a.css
//	└── manifest.json     # {"counter.js": "counter.3f9a1c0e.js", ...}
package build
