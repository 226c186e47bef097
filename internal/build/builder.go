package build

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cespare/xxhash/v2"

	"github.com/vango-dev/isomorph/internal/config"
	"github.com/vango-dev/isomorph/internal/errors"
	"github.com/vango-dev/isomorph/pkg/assets"
)

// Result contains the build output.
type Result struct {
	// Duration is how long the build took.
	Duration time.Duration

	// Output is the directory the assets were written to.
	Output string

	// Manifest maps logical names to fingerprinted names.
	Manifest map[string]string

	// Bytes is the total size of the written assets.
	Bytes int64

	// Uploaded is the number of objects written to S3.
	Uploaded int
}

// Uploader is the part of the S3 client the builder uses.
type Uploader interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Options configures the builder.
type Options struct {
	// Clean removes the output directory first.
	Clean bool

	// Upload overrides the S3 client built from configuration. Uploading
	// only happens when assets.s3.bucket is set.
	Upload Uploader

	// OnProgress is called with progress updates.
	OnProgress func(step string)
}

// Builder produces fingerprinted assets.
type Builder struct {
	config  *config.Config
	options Options
}

// New creates a new builder.
func New(cfg *config.Config, options Options) *Builder {
	return &Builder{
		config:  cfg,
		options: options,
	}
}

// Build fingerprints every public asset and writes the manifest.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	start := time.Now()
	src := b.config.PublicPath()
	out := b.config.OutputPath()
	result := &Result{Output: out, Manifest: make(map[string]string)}

	if _, err := os.Stat(src); err != nil {
		return nil, errors.New("E142").WithDetailf("public directory %s", src).Wrap(err)
	}
	if b.options.Clean {
		b.progress("Cleaning output directory...")
		if err := os.RemoveAll(out); err != nil {
			return nil, errors.New("E142").Wrap(err)
		}
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return nil, errors.New("E142").Wrap(err)
	}

	b.progress("Fingerprinting assets...")
	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if name == assets.ManifestName {
			return nil
		}

		hash, err := hashFile(p)
		if err != nil {
			return err
		}
		hashed := fingerprint(name, hash)
		dst := filepath.Join(out, filepath.FromSlash(hashed))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		n, err := copyFile(p, dst)
		if err != nil {
			return err
		}
		result.Manifest[name] = hashed
		result.Bytes += n
		return nil
	})
	if err != nil {
		return nil, errors.New("E142").Wrap(err)
	}

	b.progress("Writing manifest...")
	if err := b.writeManifest(out, result.Manifest); err != nil {
		return nil, errors.New("E142").Wrap(err)
	}

	if b.config.Assets.S3.Bucket != "" {
		b.progress(fmt.Sprintf("Uploading to s3://%s...", b.config.Assets.S3.Bucket))
		n, err := b.upload(ctx, out, result.Manifest)
		result.Uploaded = n
		if err != nil {
			return result, errors.New("E143").Wrap(err)
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

// fingerprint inserts the first eight hex digits of hash before the
// extension: app/counter.js becomes app/counter.1a2b3c4d.js.
func fingerprint(name string, hash uint64) string {
	ext := path.Ext(name)
	return fmt.Sprintf("%s.%08x%s", strings.TrimSuffix(name, ext), hash>>32, ext)
}

// writeManifest writes the asset manifest.
func (b *Builder) writeManifest(outputDir string, manifest map[string]string) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outputDir, assets.ManifestName), data, 0o644)
}

// upload puts the fingerprinted files, then the manifest, so a server that
// reloads the manifest never sees names that are not there yet.
func (b *Builder) upload(ctx context.Context, out string, manifest map[string]string) (int, error) {
	cfg := b.config.Assets.S3
	client := b.options.Upload
	if client == nil {
		c, err := assets.NewS3Client(assets.S3Config{
			Bucket:          cfg.Bucket,
			Prefix:          cfg.Prefix,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			UsePathStyle:    cfg.PathStyle,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			SessionToken:    cfg.SessionToken,
		})
		if err != nil {
			return 0, err
		}
		client = c
	}

	names := make([]string, 0, len(manifest)+1)
	for _, hashed := range manifest {
		names = append(names, hashed)
	}
	sort.Strings(names)
	names = append(names, assets.ManifestName)

	for i, name := range names {
		if err := b.put(ctx, client, out, name); err != nil {
			return i, fmt.Errorf("%s: %w", name, err)
		}
	}
	return len(names), nil
}

func (b *Builder) put(ctx context.Context, client Uploader, out, name string) error {
	f, err := os.Open(filepath.Join(out, filepath.FromSlash(name)))
	if err != nil {
		return err
	}
	defer f.Close()

	cache := "public, max-age=31536000, immutable"
	if name == assets.ManifestName {
		cache = "no-cache"
	}
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(b.config.Assets.S3.Bucket),
		Key:          aws.String(b.config.Assets.S3.Prefix + name),
		Body:         f,
		ContentType:  aws.String(assets.ContentType(name)),
		CacheControl: aws.String(cache),
	})
	return err
}

// progress reports build progress.
func (b *Builder) progress(step string) {
	if b.options.OnProgress != nil {
		b.options.OnProgress(step)
	}
}

// hashFile returns the xxhash digest of a file.
func hashFile(p string) (uint64, error) {
	f, err := os.Open(p)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

// copyFile copies a file and returns the number of bytes written.
func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// Clean removes the build output directory.
func (b *Builder) Clean() error {
	return os.RemoveAll(b.config.OutputPath())
}
