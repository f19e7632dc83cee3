// Package bundle packages a rendered blueprint with its payload, context
// snapshot and metadata into one checksummed archive.
package bundle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/klauspost/compress/zip"
	"golang.org/x/sync/singleflight"

	"blueprint/internal/blueprint"
	"blueprint/internal/blueprint/payload"
	"blueprint/internal/gateway/repository/artifact"
	"blueprint/internal/util/jsonutil"
)

const ContentType = "application/zip"

// Archive entry names.
const (
	EntryPayload  = "payload.json"
	EntryContext  = "context.json"
	EntryMetadata = "metadata.json"
)

var ErrNotRendered = errors.New("document has no rendered artifact")

type Bundler struct {
	objects  artifact.Store
	payloads *payload.Store
	urlTTL   time.Duration
	now      func() time.Time
	group    singleflight.Group
}

func New(objects artifact.Store, payloads *payload.Store, urlTTL time.Duration, now func() time.Time) *Bundler {
	if now == nil {
		now = time.Now
	}
	if urlTTL <= 0 {
		urlTTL = time.Hour
	}
	return &Bundler{objects: objects, payloads: payloads, urlTTL: urlTTL, now: now}
}

type metadata struct {
	ID           string                      `json:"id"`
	EngagementID string                      `json:"engagementId"`
	Analytics    blueprint.AnalyticsSnapshot `json:"analytics"`
	GeneratedAt  time.Time                   `json:"generatedAt"`
}

// Path is where the bundle of a document is stored.
func Path(doc blueprint.Document) string {
	return path.Join("blueprints", doc.EngagementID, doc.ID, "bundle.zip")
}

// buildTimeout bounds a shared build once it no longer follows any caller.
const buildTimeout = 2 * time.Minute

// Bundle builds and stores the archive for doc. Concurrent calls for the
// same document share one build; the archive bytes depend only on the
// document, so a repeated build overwrites the object with identical bytes.
// The shared build does not inherit caller cancellation; a caller whose ctx
// ends stops waiting without failing the others.
func (b *Bundler) Bundle(ctx context.Context, doc blueprint.Document) (blueprint.ArtifactRef, error) {
	ch := b.group.DoChan(doc.ID, func() (any, error) {
		buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), buildTimeout)
		defer cancel()
		return b.build(buildCtx, doc)
	})
	select {
	case res := <-ch:
		ref, _ := res.Val.(blueprint.ArtifactRef)
		return ref, res.Err
	case <-ctx.Done():
		return blueprint.ArtifactRef{}, fmt.Errorf("bundle %s: %w", doc.ID, ctx.Err())
	}
}

func (b *Bundler) build(ctx context.Context, doc blueprint.Document) (blueprint.ArtifactRef, error) {
	if doc.RenderedArtifact == nil {
		return blueprint.ArtifactRef{}, ErrNotRendered
	}
	_, payloadBytes, err := b.payloads.Load(ctx, doc.Payload)
	if err != nil {
		return blueprint.ArtifactRef{}, err
	}
	rendered, err := b.objects.Get(ctx, doc.RenderedArtifact.StoragePath)
	if err != nil {
		return blueprint.ArtifactRef{}, fmt.Errorf("load rendered artifact %s: %w", doc.RenderedArtifact.StoragePath, err)
	}
	if err := blueprint.VerifyChecksum(rendered, doc.RenderedArtifact.ChecksumSHA256); err != nil {
		return blueprint.ArtifactRef{}, fmt.Errorf("rendered artifact %s: %w", doc.RenderedArtifact.StoragePath, err)
	}

	archive, err := Archive(doc, payloadBytes, rendered)
	if err != nil {
		return blueprint.ArtifactRef{}, err
	}
	ref := blueprint.ArtifactRef{
		StoragePath:    Path(doc),
		ChecksumSHA256: blueprint.Checksum(archive),
		Bytes:          int64(len(archive)),
		ContentType:    ContentType,
		Theme:          doc.RenderedArtifact.Theme,
		CreatedAt:      b.now().UTC(),
	}
	meta := map[string]string{
		"blueprint-id":  doc.ID,
		"engagement-id": doc.EngagementID,
		"checksum":      ref.ChecksumSHA256,
	}
	if err := b.objects.Put(ctx, ref.StoragePath, archive, ContentType, meta); err != nil {
		return blueprint.ArtifactRef{}, fmt.Errorf("store bundle %s: %w", ref.StoragePath, err)
	}
	url, err := b.objects.SignedURL(ctx, ref.StoragePath, b.urlTTL)
	if err != nil {
		return blueprint.ArtifactRef{}, fmt.Errorf("sign bundle url: %w", err)
	}
	ref.DownloadURL = url
	return ref, nil
}

// Archive assembles the zip. Entry order and timestamps are fixed by the
// document, so equal inputs yield equal bytes.
func Archive(doc blueprint.Document, payloadBytes, rendered []byte) ([]byte, error) {
	contextBytes, err := jsonutil.MarshalIndentNoEscape(doc.ContextSnapshot)
	if err != nil {
		return nil, fmt.Errorf("encode context snapshot: %w", err)
	}
	metaBytes, err := jsonutil.MarshalIndentNoEscape(metadata{
		ID:           doc.ID,
		EngagementID: doc.EngagementID,
		Analytics:    doc.Analytics,
		GeneratedAt:  doc.GeneratedAt.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	modified := doc.GeneratedAt.UTC()
	if modified.Year() < 1980 {
		modified = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	entries := []struct {
		name string
		data []byte
	}{
		{EntryPayload, payloadBytes},
		{path.Base(doc.RenderedArtifact.StoragePath), rendered},
		{EntryContext, contextBytes},
		{EntryMetadata, metaBytes},
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: zip.Deflate, Modified: modified})
		if err != nil {
			return nil, fmt.Errorf("add %s: %w", e.name, err)
		}
		if _, err := w.Write(e.data); err != nil {
			return nil, fmt.Errorf("write %s: %w", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), nil
}
