package persistence

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"drugclassifier/internal/models"
	"drugclassifier/internal/pipeline"
)

const (
	magic         = "DRUGPIPE"
	formatVersion = uint16(1)
)

var (
	// ErrUntrusted is returned when an artifact is loaded without the caller
	// vouching for its origin.
	ErrUntrusted   = errors.New("refusing to load artifact: not marked trusted")
	ErrBadMagic    = errors.New("not a pipeline artifact")
	ErrBadVersion  = errors.New("unsupported artifact version")
	ErrBadChecksum = errors.New("artifact checksum mismatch")
)

var registerOnce sync.Once

type Bundle struct {
	Pipeline  *pipeline.Pipeline
	Metadata  BundleMetadata
	CreatedAt time.Time
}

type BundleMetadata struct {
	ModelName    string
	Dataset      string
	Accuracy     float64
	F1Score      float64
	TrainingTime time.Duration
	TrainSize    int
	TestSize     int
	Features     []string
	Classes      []string
	Parameters   map[string]any
}

type LoadOptions struct {
	// Trusted acknowledges that the artifact comes from a known source.
	// Load refuses to decode anything otherwise.
	Trusted bool
}

func NewBundle(p *pipeline.Pipeline) *Bundle {
	classes, _ := p.Classes()
	return &Bundle{
		Pipeline:  p,
		CreatedAt: time.Now(),
		Metadata: BundleMetadata{
			ModelName:  p.Model.GetName(),
			Parameters: p.Params(),
			Features:   p.Features,
			Classes:    classes,
		},
	}
}

func register() {
	registerOnce.Do(func() {
		gob.Register(&models.DecisionTree{})
		gob.Register(&models.RandomForest{})
		gob.Register(&models.KNN{})
		gob.Register(&models.NaiveBayes{})
	})
}

// Save writes the bundle as magic | version | sha256(payload) | gob payload.
// The parent directory is created and an existing file is replaced.
func (b *Bundle) Save(filename string) error {
	register()

	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(b); err != nil {
		return fmt.Errorf("failed to encode bundle: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	sum := sha256.Sum256(payload.Bytes())
	if _, err := w.WriteString(magic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, formatVersion); err != nil {
		return err
	}
	if _, err := w.Write(sum[:]); err != nil {
		return err
	}
	if _, err := payload.WriteTo(w); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write bundle: %w", err)
	}

	return file.Close()
}

func Load(filename string, opts LoadOptions) (*Bundle, error) {
	if !opts.Trusted {
		return nil, ErrUntrusted
	}

	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer file.Close()

	return Decode(file, opts)
}

func Decode(r io.Reader, opts LoadOptions) (*Bundle, error) {
	if !opts.Trusted {
		return nil, ErrUntrusted
	}
	register()

	head := make([]byte, len(magic))
	if _, err := io.ReadFull(r, head); err != nil || string(head) != magic {
		return nil, ErrBadMagic
	}

	var version uint16
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, fmt.Errorf("failed to read version: %w", err)
	}
	if version != formatVersion {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, version)
	}

	var want [sha256.Size]byte
	if _, err := io.ReadFull(r, want[:]); err != nil {
		return nil, fmt.Errorf("failed to read checksum: %w", err)
	}

	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	if sha256.Sum256(payload) != want {
		return nil, ErrBadChecksum
	}

	var bundle Bundle
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&bundle); err != nil {
		return nil, fmt.Errorf("failed to decode bundle: %w", err)
	}
	if bundle.Pipeline == nil {
		return nil, fmt.Errorf("failed to decode bundle: no pipeline")
	}

	return &bundle, nil
}

func (b *Bundle) SaveMetadata(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	fmt.Fprintf(file, "Model: %s\n", b.Metadata.ModelName)
	fmt.Fprintf(file, "Dataset: %s\n", b.Metadata.Dataset)
	fmt.Fprintf(file, "Created: %s\n", b.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(file, "Classes: %v\n", b.Metadata.Classes)
	fmt.Fprintf(file, "Accuracy: %.4f\n", b.Metadata.Accuracy)
	fmt.Fprintf(file, "F1 Score: %.4f\n", b.Metadata.F1Score)
	fmt.Fprintf(file, "Training Time: %v\n", b.Metadata.TrainingTime)

	return file.Close()
}
