package sink

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/logging"
)

// folderStamp names capture folders after their local start time, the
// layout the downstream analysis tooling expects.
const folderStamp = "2006_01_02__15_04"

// FileSink writes each frame to its own file inside a per-span capture
// folder. Files are numbered %08d.raw in emission order, restarting at
// zero for every span.
type FileSink struct {
	root    string
	spanDir string
	count   int
	logger  *slog.Logger
}

// NewFileSink ensures the output root exists and returns a sink writing
// one capture folder per span beneath it.
func NewFileSink(root string) (*FileSink, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("output folder %s: %w", root, err)
	}
	return &FileSink{
		root:   root,
		logger: logging.GetLogger("sink"),
	}, nil
}

// BeginSpan creates a fresh capture folder named after the span's start
// time, suffixed with a counter when a folder for the same minute exists.
func (s *FileSink) BeginSpan(span SpanInfo) error {
	stamp := span.StartedAt.Format(folderStamp)
	dir := filepath.Join(s.root, stamp)
	for n := 0; ; n++ {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			break
		}
		dir = filepath.Join(s.root, stamp+strconv.Itoa(n))
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		return fmt.Errorf("capture folder %s: %w", dir, err)
	}

	s.spanDir = dir
	s.count = 0
	s.logger.Info("Capture folder created", "dir", dir, "preset", span.Preset.Name)
	return nil
}

func (s *FileSink) WriteFrame(buf []byte, timestampUS int64) error {
	if s.spanDir == "" {
		return fmt.Errorf("file sink has no open capture folder")
	}
	path := filepath.Join(s.spanDir, fmt.Sprintf("%08d.raw", s.count))
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("write frame %s: %w", path, err)
	}
	s.count++
	return nil
}

func (s *FileSink) EndSpan() error {
	if s.spanDir != "" {
		s.logger.Info("Capture folder closed", "dir", s.spanDir, "frames", s.count)
	}
	s.spanDir = ""
	return nil
}

func (s *FileSink) Close() error {
	return nil
}
