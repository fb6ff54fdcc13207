package config

import (
	"time"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `json:"server"`
	Canvas    CanvasConfig    `json:"canvas"`
	Viewport  ViewportConfig  `json:"viewport"`
	Detection DetectionConfig `json:"detection"`
	Recording RecordingConfig `json:"recording"`
	Storage   StorageConfig   `json:"storage"`
	Examples  ExamplesConfig  `json:"examples"`
	Window    WindowConfig    `json:"window"`
	Log       LogConfig       `json:"log"`
}

// ServerConfig contains the control server settings
type ServerConfig struct {
	ListenAddr      string   `json:"listen_addr"`
	ReadTimeout     Duration `json:"read_timeout"`
	WriteTimeout    Duration `json:"write_timeout"`
	ShutdownTimeout Duration `json:"shutdown_timeout"`

	// Upgrade rate limiting per client IP
	RateLimit float64 `json:"rate_limit"`
	RateBurst int     `json:"rate_burst"`

	UploadDir     string `json:"upload_dir"`
	MaxUploadSize int64  `json:"max_upload_size"`
}

// CanvasConfig contains the initial drawing style and the config menu bounds
type CanvasConfig struct {
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	LineWidth float64 `json:"line_width"`
	Color     string  `json:"color"`

	MinLineWidth float64 `json:"min_line_width"`
	MaxLineWidth float64 `json:"max_line_width"`
	MinSize      int     `json:"min_size"`
	SizeStep     int     `json:"size_step"`
}

// ViewportConfig describes the display the canvas is shown in.
// Width feeds the video display cap and the canvas width slider bound.
type ViewportConfig struct {
	Width  int `json:"width"`
	Height int `json:"height"`

	VideoWidthFraction  float64 `json:"video_width_fraction"`
	CanvasWidthFraction float64 `json:"canvas_width_fraction"`
}

// DetectionConfig contains detector and gate settings
type DetectionConfig struct {
	Endpoint     string   `json:"endpoint"` // empty = no-op detector
	Timeout      Duration `json:"timeout"`
	MaxRetries   uint64   `json:"max_retries"`
	LabelsFile   string   `json:"labels_file"`
	DropStale    bool     `json:"drop_stale"`
	IoUThreshold float64  `json:"iou_threshold"`
	Score        float64  `json:"score_threshold"`
	MaxBoxes     int      `json:"max_boxes_per_class"`
	InputShape   [4]int   `json:"input_shape"`
}

// RecordingConfig contains recording settings
type RecordingConfig struct {
	FrameRate    int      `json:"frame_rate"`
	Timeslice    Duration `json:"timeslice"`
	JPEGQuality  int      `json:"jpeg_quality"`
	FileName     string   `json:"file_name"`
	MimeType     string   `json:"mime_type"`
	SnapshotName string   `json:"snapshot_name"`
	SaveTimeout  Duration `json:"save_timeout"`
}

// StorageConfig contains storage configuration
type StorageConfig struct {
	Type     string         `json:"type"` // file, minio
	Dir      string         `json:"dir"`
	MinIO    MinIOConfig    `json:"minio"`
	Postgres PostgresConfig `json:"postgres"`
}

// MinIOConfig contains MinIO-specific configuration
type MinIOConfig struct {
	Endpoint        string   `json:"endpoint"`
	AccessKeyID     string   `json:"access_key_id"`
	SecretAccessKey string   `json:"secret_access_key"`
	UseSSL          bool     `json:"use_ssl"`
	Bucket          string   `json:"bucket"`
	Region          string   `json:"region"`
	MaxUploads      int      `json:"max_uploads"`
	RequestTimeout  Duration `json:"request_timeout"`
	MaxRetries      int      `json:"max_retries"`
}

// PostgresConfig contains the optional artifact catalog settings.
// The catalog is disabled when Host is empty.
type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	Username string `json:"username"`
	Password string `json:"password"`
	SSLMode  string `json:"ssl_mode"`

	MaxConnections  int      `json:"max_connections"`
	MaxIdleConns    int      `json:"max_idle_conns"`
	ConnMaxLifetime Duration `json:"conn_max_lifetime"`
}

// ExamplesConfig lists the example videos offered next to the uploaded one
type ExamplesConfig struct {
	Videos []string `json:"videos"`
	Images []string `json:"images"`
}

// WindowConfig controls the optional desktop window
type WindowConfig struct {
	Enabled bool `json:"enabled"`
	Width   int  `json:"width"`
	Height  int  `json:"height"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

// NewDefaultConfig returns a Config with default values
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      "localhost:7000",
			ReadTimeout:     Seconds(15),
			WriteTimeout:    Seconds(15),
			ShutdownTimeout: Seconds(10),
			RateLimit:       5,
			RateBurst:       10,
			UploadDir:       "uploads/",
			MaxUploadSize:   200 << 20,
		},
		Canvas: CanvasConfig{
			Width:        640,
			Height:       640,
			LineWidth:    6,
			Color:        "#000000",
			MinLineWidth: 2,
			MaxLineWidth: 40,
			MinSize:      100,
			SizeStep:     10,
		},
		Viewport: ViewportConfig{
			Width:               1920,
			Height:              1080,
			VideoWidthFraction:  0.4,
			CanvasWidthFraction: 0.8,
		},
		Detection: DetectionConfig{
			Timeout:      Seconds(5),
			MaxRetries:   2,
			IoUThreshold: 0.45,
			Score:        0.25,
			MaxBoxes:     100,
			InputShape:   [4]int{1, 3, 640, 640},
		},
		Recording: RecordingConfig{
			FrameRate:    30,
			Timeslice:    Seconds(1),
			JPEGQuality:  85,
			FileName:     "predictions.webm",
			MimeType:     "video/webm",
			SnapshotName: "predictions.png",
			SaveTimeout:  Seconds(60),
		},
		Storage: StorageConfig{
			Type: "file",
			Dir:  "recordings/",
			MinIO: MinIOConfig{
				Endpoint:       "localhost:9000",
				Bucket:         "annotations",
				Region:         "us-east-1",
				MaxUploads:     4,
				RequestTimeout: Seconds(300),
				MaxRetries:     3,
			},
			Postgres: PostgresConfig{
				Port:            5432,
				Database:        "sketchdetect",
				SSLMode:         "disable",
				MaxConnections:  10,
				MaxIdleConns:    2,
				ConnMaxLifetime: Seconds(300),
			},
		},
		Window: WindowConfig{
			Width:  1280,
			Height: 800,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// SampleRate is the fixed number of video frames sampled per second
const SampleRate = 15

// SampleInterval is the delay between two frame samples, 1000/15 ms
func (c *Config) SampleInterval() time.Duration {
	return time.Second / SampleRate
}
