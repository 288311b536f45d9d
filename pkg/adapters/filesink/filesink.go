// Package filesink appends analytics events to a newline-delimited JSON
// file with size-based rotation.
package filesink

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/beacon/pkg/analytics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	currentName   = "events.ndjson"
	rotatedPrefix = "events-"
	rotatedSuffix = ".ndjson"
)

// Record is one line of the event file
type Record struct {
	ID           string               `json:"id"`
	Timestamp    time.Time            `json:"timestamp"`
	Name         string               `json:"name"`
	UserID       string               `json:"user_id,omitempty"`
	Properties   analytics.Properties `json:"properties,omitempty"`
	OutOfSession bool                 `json:"out_of_session,omitempty"`
}

// Config configures the file sink
type Config struct {
	Dir      string `yaml:"dir"`       // Directory holding the event files
	Rotate   bool   `yaml:"rotate"`    // Enable size-based rotation
	MaxSize  int64  `yaml:"max_size"`  // Max file size in bytes (default: 100MB)
	MaxFiles int    `yaml:"max_files"` // Max number of rotated files to keep (default: 10)
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Dir:      "/var/log/beacon",
		Rotate:   true,
		MaxSize:  100 * 1024 * 1024, // 100MB
		MaxFiles: 10,
	}
}

// Sink is an EventLogger writing one JSON record per event
type Sink struct {
	dir      string
	rotate   bool
	maxSize  int64
	maxFiles int
	log      logrus.FieldLogger
	now      func() time.Time

	mu      sync.Mutex
	file    *os.File
	encoder *jsoniter.Encoder
	userID  string
	seq     int
}

// New creates the directory if needed and opens the current event file
func New(cfg Config, log logrus.FieldLogger) (*Sink, error) {
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create event log directory: %w", err)
	}
	if log == nil {
		log = logrus.New()
	}

	s := &Sink{
		dir:      cfg.Dir,
		rotate:   cfg.Rotate,
		maxSize:  cfg.MaxSize,
		maxFiles: cfg.MaxFiles,
		log:      log.WithField("component", "filesink"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	if s.maxSize <= 0 {
		s.maxSize = 100 * 1024 * 1024
	}
	if s.maxFiles <= 0 {
		s.maxFiles = 10
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.openFile(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the path of the file currently written to
func (s *Sink) Path() string {
	return filepath.Join(s.dir, currentName)
}

func (s *Sink) openFile() error {
	if s.rotate {
		if info, err := os.Stat(s.Path()); err == nil && info.Size() >= s.maxSize {
			if err := s.rotateFile(); err != nil {
				return fmt.Errorf("failed to rotate event log: %w", err)
			}
		}
	}

	file, err := os.OpenFile(s.Path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	s.file = file
	s.encoder = json.NewEncoder(file)
	return nil
}

func (s *Sink) rotateFile() error {
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}

	// The sequence number keeps names unique within one second
	s.seq++
	rotated := filepath.Join(s.dir, fmt.Sprintf("%s%s-%04d%s",
		rotatedPrefix, s.now().Format("2006-01-02-15-04-05"), s.seq, rotatedSuffix))
	if err := os.Rename(s.Path(), rotated); err != nil {
		return fmt.Errorf("failed to rename event log: %w", err)
	}

	if err := s.cleanup(); err != nil {
		s.log.WithError(err).Warn("failed to clean up rotated event logs")
	}
	return nil
}

// cleanup removes the oldest rotated files beyond maxFiles
func (s *Sink) cleanup() error {
	files, err := s.RotatedFiles()
	if err != nil {
		return err
	}
	if len(files) <= s.maxFiles {
		return nil
	}
	for _, f := range files[:len(files)-s.maxFiles] {
		if err := os.Remove(f); err != nil {
			s.log.WithError(err).WithField("file", f).Warn("failed to remove rotated event log")
		}
	}
	return nil
}

// RotatedFiles returns the rotated files, oldest first
func (s *Sink) RotatedFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(s.dir, rotatedPrefix+"*"+rotatedSuffix))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (s *Sink) Configure(ctx context.Context) {}

func (s *Sink) ConfigureUser(ctx context.Context, userID string) {
	s.SetUserID(ctx, userID)
}

func (s *Sink) SetUserID(ctx context.Context, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
}

func (s *Sink) LogEvent(ctx context.Context, name string) {
	s.LogEventWithProperties(ctx, name, nil, false)
}

func (s *Sink) LogEventWithProperties(ctx context.Context, name string, props analytics.Properties, outOfSession bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.write(Record{
		ID:           uuid.New().String(),
		Timestamp:    s.now(),
		Name:         name,
		UserID:       s.userID,
		Properties:   props,
		OutOfSession: outOfSession,
	}); err != nil {
		s.log.WithError(err).WithField("event", name).Error("failed to write analytics event")
	}
}

// write appends rec, rotating first when the file is full. Callers hold s.mu.
func (s *Sink) write(rec Record) error {
	if s.file == nil {
		return fmt.Errorf("event log is closed")
	}
	if s.rotate {
		if info, err := s.file.Stat(); err == nil && info.Size() >= s.maxSize {
			if err := s.openFile(); err != nil {
				return err
			}
		}
	}
	if err := s.encoder.Encode(rec); err != nil {
		return fmt.Errorf("failed to write event log: %w", err)
	}
	return nil
}

// Close closes the current file
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}

// ReadRecords reads records from path. A positive count stops after that
// many records. Numeric properties come back as int64, uint64 or float64.
func ReadRecords(path string, count int) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	defer file.Close()

	var records []Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var raw struct {
			Record
			Properties jsoniter.RawMessage `json:"properties,omitempty"`
		}
		if err := json.Unmarshal(line, &raw); err != nil {
			return nil, fmt.Errorf("failed to decode event log entry: %w", err)
		}
		rec := raw.Record
		rec.Properties = analytics.Properties{}
		if len(raw.Properties) > 0 {
			props, err := analytics.Encode(raw.Properties)
			if err != nil {
				return nil, fmt.Errorf("failed to decode properties of %s: %w", rec.ID, err)
			}
			rec.Properties = props
		}
		records = append(records, rec)

		if count > 0 && len(records) >= count {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read event log: %w", err)
	}
	return records, nil
}

var _ analytics.EventLogger = (*Sink)(nil)
