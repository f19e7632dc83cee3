// Package payload persists generated payloads to object storage with a
// content checksum.
package payload

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"time"

	"blueprint/internal/blueprint"
	"blueprint/internal/gateway/repository/artifact"
	"blueprint/internal/util/jsonutil"
)

const ContentType = "application/json"

type Store struct {
	objects artifact.Store
}

func NewStore(objects artifact.Store) *Store {
	return &Store{objects: objects}
}

// Path namespaces a payload by engagement id and request time.
func Path(engagementID string, at time.Time) string {
	return path.Join("blueprints", engagementID, strconv.FormatInt(at.UTC().UnixMilli(), 10), "payload.json")
}

// Encode returns the canonical byte form of p.
func Encode(p blueprint.Payload) ([]byte, error) {
	return jsonutil.MarshalNoEscape(p)
}

// Persist writes p and returns its reference.
func (s *Store) Persist(ctx context.Context, engagementID string, at time.Time, p blueprint.Payload) (blueprint.PayloadRef, error) {
	body, err := Encode(p)
	if err != nil {
		return blueprint.PayloadRef{}, fmt.Errorf("encode payload: %w", err)
	}
	ref := blueprint.PayloadRef{
		StoragePath:    Path(engagementID, at),
		ChecksumSHA256: blueprint.Checksum(body),
		Bytes:          int64(len(body)),
		SectionCount:   len(p.Sections),
		Theme:          p.ExecutiveTheme,
	}
	meta := map[string]string{
		"engagement-id": engagementID,
		"checksum":      ref.ChecksumSHA256,
		"sections":      strconv.Itoa(ref.SectionCount),
	}
	if err := s.objects.Put(ctx, ref.StoragePath, body, ContentType, meta); err != nil {
		return blueprint.PayloadRef{}, fmt.Errorf("store payload %s: %w", ref.StoragePath, err)
	}
	return ref, nil
}

// Load reads the payload back and verifies its checksum. The raw bytes are
// returned for callers that repackage them unchanged.
func (s *Store) Load(ctx context.Context, ref blueprint.PayloadRef) (blueprint.Payload, []byte, error) {
	body, err := s.objects.Get(ctx, ref.StoragePath)
	if err != nil {
		return blueprint.Payload{}, nil, fmt.Errorf("load payload %s: %w", ref.StoragePath, err)
	}
	if ref.ChecksumSHA256 != "" {
		if err := blueprint.VerifyChecksum(body, ref.ChecksumSHA256); err != nil {
			return blueprint.Payload{}, nil, fmt.Errorf("payload %s: %w", ref.StoragePath, err)
		}
	}
	var p blueprint.Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return blueprint.Payload{}, nil, fmt.Errorf("decode payload %s: %w", ref.StoragePath, err)
	}
	return p, body, nil
}
