package config

import (
	"os"
	"strings"
)

// localConfig is the docker-compose profile: MinIO next to the gateway and
// the HTML renderer in-process. The database stays unset so stores run in
// memory unless DATABASE_URL is given.
func localConfig() Config {
	return Config{
		Artifact: ArtifactConfig{
			Enabled:   true,
			Endpoint:  firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_MINIO_ENDPOINT")), "minio:9000"),
			Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_REGION")), "us-east-1"),
			AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
			SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
			Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_BUCKET")), "engagement-blueprints"),
			Prefix:    strings.TrimSpace(os.Getenv("ARTIFACT_S3_PREFIX")),
			UseSSL:    false,
		},
		Renderer: RendererConfig{Kind: "html"},
	}
}
