package stores

import (
	"context"
	"time"

	"github.com/openfroyo/contentkit/pkg/builder"
)

// BuildRecord is one stored build.
type BuildRecord struct {
	ID         string    `json:"id"`
	Project    string    `json:"project"`
	Mode       string    `json:"mode"`
	Items      []string  `json:"items"`
	State      string    `json:"state"`
	ExitCode   int       `json:"exit_code"`
	Errors     int       `json:"errors"`
	Warnings   int       `json:"warnings"`
	Error      *string   `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns the wall time of the build.
func (r *BuildRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// BuildEventRecord is one stored line of build output.
type BuildEventRecord struct {
	ID       int64   `json:"id"`
	BuildID  string  `json:"build_id"`
	Seq      int     `json:"seq"`
	Kind     string  `json:"kind"`
	Path     *string `json:"path,omitempty"`
	Severity *string `json:"severity,omitempty"`
	Line     *int    `json:"line,omitempty"`
	Column   *string `json:"column,omitempty"`
	Code     *string `json:"code,omitempty"`
	Message  *string `json:"message,omitempty"`
	Raw      string  `json:"raw"`
}

// BuildFilter narrows ListBuilds. Zero fields match everything.
type BuildFilter struct {
	Project string
	State   string
	Limit   int
	Offset  int
}

// Store defines the build history persistence layer.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Builds
	RecordBuild(ctx context.Context, r *builder.Result) error
	GetBuild(ctx context.Context, id string) (*BuildRecord, error)
	ListBuilds(ctx context.Context, filter BuildFilter) ([]*BuildRecord, error)
	ListBuildEvents(ctx context.Context, buildID string) ([]*BuildEventRecord, error)
	PruneBuilds(ctx context.Context, project string, keep int) (int64, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
