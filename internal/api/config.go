package api

import "time"

type Config struct {
	HTTPAddr        string        `envconfig:"OSLAB_HTTP_ADDR" default:"0.0.0.0:8080"`
	DBDSN           string        `envconfig:"OSLAB_DB_DSN"`
	MetricsAddr     string        `envconfig:"OSLAB_METRICS_ADDR" default:"0.0.0.0:9090"`
	LogLevel        string        `envconfig:"OSLAB_LOG_LEVEL" default:"info"`
	ShutdownTimeout time.Duration `envconfig:"OSLAB_SHUTDOWN_TIMEOUT" default:"30s"`

	// Static bearer auth, "token:user" pairs.
	AuthTokens string `envconfig:"OSLAB_AUTH_TOKENS" default:"dev-token:dev-user"`

	SessionIdleTimeout time.Duration `envconfig:"OSLAB_SESSION_IDLE_TIMEOUT" default:"15m"`
	BootTimeout        time.Duration `envconfig:"OSLAB_BOOT_TIMEOUT" default:"2m"`
	WriteQueueMax      int           `envconfig:"OSLAB_WRITE_QUEUE_MAX" default:"256"`
	InstallCommand     []string      `envconfig:"OSLAB_INSTALL_COMMAND" default:"npm,install"`

	// SandboxProvider is "docker" or "fake"; fake runs sessions without a
	// container runtime and never produces previews.
	SandboxProvider string `envconfig:"OSLAB_SANDBOX_PROVIDER" default:"docker"`
	SandboxImage    string `envconfig:"OSLAB_SANDBOX_IMAGE" default:"node:20-alpine"`
	SandboxWorkDir  string `envconfig:"OSLAB_SANDBOX_WORKDIR" default:"/app"`
	PreviewPort     int    `envconfig:"OSLAB_PREVIEW_PORT" default:"3000"`

	PreviewTTL     time.Duration `envconfig:"OSLAB_PREVIEW_TTL" default:"168h"`
	PreviewBaseURL string        `envconfig:"OSLAB_PREVIEW_BASE_URL" default:"http://localhost:8080"`
}
