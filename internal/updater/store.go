package updater

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

var (
	ErrNotFound = errors.New("file not found")
	// ErrInvalidFile covers bad extensions, unsafe names and undecodable metadata.
	ErrInvalidFile = errors.New("invalid file")
)

const (
	infoFile         = "update_info.json"
	packageFile      = "main.zip"
	metadataFile     = "metadata.json"
	OCRInstallerName = "Tesseract-OCR-Setup.exe"
)

// Info is the release pointer clients poll for.
type Info struct {
	Latest string `json:"latest"`
	Date   string `json:"date"`
	Detail string `json:"detail"`
}

// Store serves update packages and installers from local directories.
type Store struct {
	updateDir     string
	uploadDir     string
	dependencyDir string
}

func NewStore(updateDir, uploadDir, dependencyDir string) *Store {
	return &Store{
		updateDir:     updateDir,
		uploadDir:     uploadDir,
		dependencyDir: dependencyDir,
	}
}

func (s *Store) Info() (json.RawMessage, error) {
	data, err := os.ReadFile(filepath.Join(s.updateDir, infoFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, infoFile)
		}
		return nil, fmt.Errorf("read update info: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: %s is not valid JSON", ErrInvalidFile, infoFile)
	}
	return data, nil
}

func (s *Store) SetInfo(info Info) error {
	data, err := json.MarshalIndent(info, "", "    ")
	if err != nil {
		return fmt.Errorf("encode update info: %w", err)
	}
	if err := os.MkdirAll(s.updateDir, 0o755); err != nil {
		return fmt.Errorf("create update dir: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(s.updateDir, infoFile), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write update info: %w", err)
	}
	log.Info().Str("latest", info.Latest).Msg("Update info modified")
	return nil
}

func (s *Store) versionDir(version string) (string, error) {
	if err := checkName(version); err != nil {
		return "", err
	}
	return filepath.Join(s.updateDir, "data", "v"+version), nil
}

// PackagePath returns the path of the zip for version.
func (s *Store) PackagePath(version string) (string, error) {
	dir, err := s.versionDir(version)
	if err != nil {
		return "", err
	}
	return existing(filepath.Join(dir, packageFile), fmt.Sprintf("v%s/%s", version, packageFile))
}

// Metadata returns the decoded metadata document for version.
func (s *Store) Metadata(version string) (json.RawMessage, error) {
	dir, err := s.versionDir(version)
	if err != nil {
		return nil, err
	}
	path, err := existing(filepath.Join(dir, metadataFile), fmt.Sprintf("v%s/%s", version, metadataFile))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: v%s/%s is not valid JSON", ErrInvalidFile, version, metadataFile)
	}
	return data, nil
}

// Publish stores a release: the package as main.zip and the metadata
// re-indented as metadata.json.
func (s *Store) Publish(version, metadataName string, metadata io.Reader, packageName string, pkg io.Reader) error {
	if !strings.EqualFold(filepath.Ext(packageName), ".zip") {
		return fmt.Errorf("%w: only zip files are allowed for package", ErrInvalidFile)
	}
	if !strings.EqualFold(filepath.Ext(metadataName), ".json") {
		return fmt.Errorf("%w: only json files are allowed for metadata", ErrInvalidFile)
	}

	raw, err := io.ReadAll(metadata)
	if err != nil {
		return fmt.Errorf("read metadata upload: %w", err)
	}
	var indented bytes.Buffer
	if err := json.Indent(&indented, raw, "", "    "); err != nil {
		return fmt.Errorf("%w: metadata is not valid JSON: %w", ErrInvalidFile, err)
	}

	dir, err := s.versionDir(version)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create version dir: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, packageFile), pkg); err != nil {
		return fmt.Errorf("save package: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, metadataFile), &indented); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}

	log.Info().Str("version", version).Str("package", packageName).Msg("Published update")
	return nil
}

// InstallerPath returns an uploaded installer by file name.
func (s *Store) InstallerPath(name string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	return existing(filepath.Join(s.uploadDir, name), name)
}

// SaveUpload writes r to the upload directory under name and returns the bytes written.
func (s *Store) SaveUpload(name string, r io.Reader) (int64, error) {
	if err := checkName(name); err != nil {
		return 0, err
	}
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return 0, fmt.Errorf("create upload dir: %w", err)
	}

	counter := &countingReader{r: r}
	if err := writeFileAtomic(filepath.Join(s.uploadDir, name), counter); err != nil {
		return 0, fmt.Errorf("save upload: %w", err)
	}
	log.Info().Str("file", name).Int64("bytes", counter.n).Msg("Saved upload")
	return counter.n, nil
}

func (s *Store) OCRInstallerPath() (string, error) {
	return existing(filepath.Join(s.dependencyDir, OCRInstallerName), OCRInstallerName)
}

// checkName rejects anything that could escape its directory.
func checkName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: unsafe name %q", ErrInvalidFile, name)
	}
	return nil
}

func existing(path, display string) (string, error) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		log.Error().Str("path", path).Msg("File not found")
		return "", fmt.Errorf("%w: %s", ErrNotFound, display)
	}
	return path, nil
}

// writeFileAtomic writes to a temp file in the same directory and renames it over path.
func writeFileAtomic(path string, r io.Reader) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
