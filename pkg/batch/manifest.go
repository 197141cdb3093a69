package batch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JobStatus is one manifest entry's terminal outcome.
type JobStatus string

const (
	JobOK    JobStatus = "ok"
	JobError JobStatus = "error"
)

// ManifestEntry records one scenario job's outcome, per spec.md §6's batch
// manifest: job id, scenario id, status, error if any, timings, input/
// output paths.
type ManifestEntry struct {
	JobID      string        `json:"job_id"`
	ScenarioID string        `json:"scenario_id"`
	TimeSlice  string        `json:"time,omitempty"`
	Status     JobStatus     `json:"status"`
	Error      string        `json:"error,omitempty"`
	InputPath  string        `json:"input_path,omitempty"`
	OutputPath string        `json:"output_path,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
}

// Manifest is the JSON reproducibility record for one batch invocation.
type Manifest struct {
	InvocationTime time.Time        `json:"invocation_time"`
	TaskKind       string           `json:"task_kind"`
	Jobs           []ManifestEntry  `json:"jobs"`
	Succeeded      int              `json:"succeeded"`
	Failed         int              `json:"failed"`
	InputDigest    string           `json:"input_digest"`
}

// NewManifest builds a manifest header for taskKind, computing an input
// digest over specBytes and baseModelBytes (the scenario spec's raw YAML
// and a stable serialization of the base model) so a rerun of the same
// batch can be recognized and compared.
func NewManifest(taskKind string, specBytes, baseModelBytes []byte) *Manifest {
	return &Manifest{
		InvocationTime: time.Now(),
		TaskKind:       taskKind,
		InputDigest:    inputDigest(specBytes, baseModelBytes),
	}
}

func inputDigest(specBytes, baseModelBytes []byte) string {
	h := sha256.New()
	h.Write(specBytes)
	h.Write(baseModelBytes)
	return hex.EncodeToString(h.Sum(nil))
}

// NewJobID mints a fresh manifest job id.
func NewJobID() string {
	return uuid.NewString()
}

// RecordResult appends one JobResult (from RunAll over scenario jobs) to
// the manifest as a ManifestEntry, tallying Succeeded/Failed.
func (m *Manifest) RecordResult(jr JobResult, scenarioID, timeSlice, inputPath, outputPath string) {
	entry := ManifestEntry{
		JobID:      jr.ID,
		ScenarioID: scenarioID,
		TimeSlice:  timeSlice,
		InputPath:  inputPath,
		OutputPath: outputPath,
		Duration:   jr.Duration,
	}
	if jr.Err != nil {
		entry.Status = JobError
		entry.Error = jr.Err.Error()
		m.Failed++
	} else {
		entry.Status = JobOK
		m.Succeeded++
	}
	m.Jobs = append(m.Jobs, entry)
}

// JSON serializes the manifest.
func (m *Manifest) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// ManifestClaims are the JWT claims carried by a signed manifest token: enough to
// verify a manifest's digest and succeeded/failed counts weren't altered
// after signing, without re-deriving the whole manifest body from the
// token.
type ManifestClaims struct {
	InputDigest string `json:"input_digest"`
	Succeeded   int    `json:"succeeded"`
	Failed      int    `json:"failed"`
	IssuedAt    int64  `json:"iat"`
}

// SignManifest wraps m's integrity-relevant fields in an HS256 JWT, the
// same signing approach as the teacher's pkg/auth.JWTManager, adapted from
// user-session claims to manifest-integrity claims. secret must be at
// least 32 bytes, mirroring the teacher's ErrShortSecret guard.
func SignManifest(m *Manifest, secret string) (string, error) {
	if len(secret) < 32 {
		return "", fmt.Errorf("batch: manifest signing secret must be at least 32 characters")
	}
	claims := jwt.MapClaims{
		"input_digest": m.InputDigest,
		"succeeded":    m.Succeeded,
		"failed":       m.Failed,
		"iat":          time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// VerifyManifestToken validates a SignManifest token against secret and returns
// its claims.
func VerifyManifestToken(tokenString, secret string) (*ManifestClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("batch: invalid manifest token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("batch: manifest token failed validation")
	}
	claimsMap, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("batch: manifest token has unexpected claims shape")
	}

	digest, _ := claimsMap["input_digest"].(string)
	succeeded, _ := claimsMap["succeeded"].(float64)
	failed, _ := claimsMap["failed"].(float64)
	iat, _ := claimsMap["iat"].(float64)

	return &ManifestClaims{
		InputDigest: digest,
		Succeeded:   int(succeeded),
		Failed:      int(failed),
		IssuedAt:    int64(iat),
	}, nil
}

// S3Sink uploads a manifest (and, by the same Put, any partitioned result
// file) to an S3-compatible bucket. Construction is deferred to
// NewS3Sink so importing this package never requires AWS credentials to
// be present — only batches that opt into remote upload pay that cost.
type S3Sink struct {
	bucket string
	client s3PutObjectAPI
}

// s3PutObjectAPI is the minimal aws-sdk-go-v2/service/s3 surface this sink
// needs, kept narrow so tests can fake it without standing up a real S3
// client.
type s3PutObjectAPI interface {
	PutObject(ctx context.Context, bucket, key string, body []byte) error
}

// NewS3Sink builds a sink over an already-constructed S3 client adapter.
// NewS3SinkFromEnv (s3_adapter.go) is the constructor that loads the AWS
// configuration and wires the real aws-sdk-go-v2 client; NewS3Sink itself
// performs no AWS SDK initialization.
func NewS3Sink(bucket string, client s3PutObjectAPI) *S3Sink {
	return &S3Sink{bucket: bucket, client: client}
}

// Upload writes body under key in the sink's bucket.
func (s *S3Sink) Upload(ctx context.Context, key string, body []byte) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("batch: S3Sink not configured")
	}
	return s.client.PutObject(ctx, s.bucket, key, body)
}
