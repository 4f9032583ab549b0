package scoring

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/mbrdecode/mbr-decode/internal/pkg/errors"
	"github.com/mbrdecode/mbr-decode/internal/pkg/logger"
	"github.com/mbrdecode/mbr-decode/internal/pkg/security"
)

// Checkpoint describes a neural metric checkpoint the scoring backend
// can load from the shared models directory.
type Checkpoint struct {
	// Name is the manifest key (e.g., "wmt22-comet-da").
	Name string `json:"name"`

	// RepoID is the HuggingFace repository holding the files.
	RepoID string `json:"repo_id"`

	// Metric is the metric registry name served by this checkpoint.
	Metric string `json:"metric"`

	// Files are the repository files required to load the checkpoint.
	Files []string `json:"files"`

	// SHA256 maps file name to expected checksum. Empty entries skip
	// verification.
	SHA256 map[string]string `json:"sha256,omitempty"`

	Description string `json:"description,omitempty"`
}

// defaultManifest lists the checkpoints the backend knows how to serve.
var defaultManifest = []Checkpoint{
	{
		Name:        "wmt22-comet-da",
		RepoID:      "Unbabel/wmt22-comet-da",
		Metric:      "comet",
		Files:       []string{"checkpoints/model.ckpt", "hparams.yaml"},
		Description: "Reference-based COMET trained on WMT22 direct assessments",
	},
	{
		Name:        "wmt22-cometkiwi-da",
		RepoID:      "Unbabel/wmt22-cometkiwi-da",
		Metric:      "cometqe",
		Files:       []string{"checkpoints/model.ckpt", "hparams.yaml"},
		Description: "Reference-free COMET quality estimation",
	},
	{
		Name:        "bleurt-20",
		RepoID:      "lucadiliello/BLEURT-20",
		Metric:      "bleurt",
		Files:       []string{"pytorch_model.bin", "config.json", "tokenizer.json"},
		Description: "BLEURT-20 learned regression metric",
	},
}

// CheckpointStatus reports whether a checkpoint is ready on disk.
type CheckpointStatus struct {
	Checkpoint Checkpoint `json:"checkpoint"`
	Installed  bool       `json:"installed"`
	Path       string     `json:"path"`
	SizeBytes  int64      `json:"size_bytes"`
}

// ModelManager downloads and inspects checkpoints in a local directory.
// The scoring backend reads the same directory when loading models.
type ModelManager struct {
	dir        string
	manifest   []Checkpoint
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
}

// NewModelManager creates a manager over the given checkpoint directory.
func NewModelManager(dir string, log *logger.Logger) *ModelManager {
	if log == nil {
		log = logger.Default()
	}
	return &ModelManager{
		dir:      dir,
		manifest: defaultManifest,
		baseURL:  "https://huggingface.co",
		httpClient: &http.Client{
			Timeout: 30 * time.Minute, // checkpoint files run to gigabytes
		},
		log: log,
	}
}

// List returns the known checkpoints sorted by name.
func (m *ModelManager) List() []Checkpoint {
	out := make([]Checkpoint, len(m.manifest))
	copy(out, m.manifest)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup finds a checkpoint by manifest name.
func (m *ModelManager) Lookup(name string) (Checkpoint, error) {
	for _, cp := range m.manifest {
		if cp.Name == name {
			return cp, nil
		}
	}
	return Checkpoint{}, errors.NotFoundError("checkpoint " + name)
}

// Status reports install state for every known checkpoint.
func (m *ModelManager) Status() []CheckpointStatus {
	list := m.List()
	out := make([]CheckpointStatus, 0, len(list))
	for _, cp := range list {
		out = append(out, m.statusOf(cp))
	}
	return out
}

func (m *ModelManager) statusOf(cp Checkpoint) CheckpointStatus {
	st := CheckpointStatus{
		Checkpoint: cp,
		Path:       filepath.Join(m.dir, cp.Name),
		Installed:  true,
	}
	for _, file := range cp.Files {
		info, err := os.Stat(filepath.Join(st.Path, filepath.FromSlash(file)))
		if err != nil {
			st.Installed = false
			continue
		}
		st.SizeBytes += info.Size()
	}
	return st
}

// Installed reports whether the named checkpoint has all files on disk.
func (m *ModelManager) Installed(name string) bool {
	cp, err := m.Lookup(name)
	if err != nil {
		return false
	}
	return m.statusOf(cp).Installed
}

// Download fetches every file of the named checkpoint. onProgress, when
// non-nil, is called as bytes arrive for each file. Already-present
// files with matching checksums are skipped.
func (m *ModelManager) Download(ctx context.Context, name string, onProgress func(file string, downloaded, total int64)) error {
	cp, err := m.Lookup(name)
	if err != nil {
		return err
	}

	dir := filepath.Join(m.dir, cp.Name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.ModelError("cannot create checkpoint directory", err)
	}

	for _, file := range cp.Files {
		// Manifest entries are relative paths; reject anything that
		// would escape the checkpoint directory.
		if err := security.ValidatePath(file); err != nil {
			return errors.ModelError("invalid manifest file path", err)
		}

		dest := filepath.Join(dir, filepath.FromSlash(file))

		if m.fileValid(dest, cp.SHA256[file]) {
			m.log.Debug("checkpoint file present, skipping", "checkpoint", name, "file", file)
			continue
		}

		m.log.Info("downloading checkpoint file", "checkpoint", name, "file", file)
		if err := m.downloadFile(ctx, cp.RepoID, file, dest, onProgress); err != nil {
			return err
		}

		if sum := cp.SHA256[file]; sum != "" {
			if !m.fileValid(dest, sum) {
				os.Remove(dest)
				return errors.ModelError(fmt.Sprintf("checksum mismatch for %s/%s", name, file), nil)
			}
		}
	}

	return nil
}

// Remove deletes the named checkpoint's directory.
func (m *ModelManager) Remove(name string) error {
	cp, err := m.Lookup(name)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(m.dir, cp.Name)); err != nil {
		return errors.ModelError("cannot remove checkpoint", err)
	}
	return nil
}

// fileValid reports whether dest exists and, when a checksum is given,
// matches it.
func (m *ModelManager) fileValid(dest, sum string) bool {
	info, err := os.Stat(dest)
	if err != nil || info.Size() == 0 {
		return false
	}
	if sum == "" {
		return true
	}

	f, err := os.Open(dest)
	if err != nil {
		return false
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false
	}
	return hex.EncodeToString(h.Sum(nil)) == sum
}

// downloadFile streams one repository file to dest via a temp file so a
// failed download never leaves a truncated checkpoint behind.
func (m *ModelManager) downloadFile(ctx context.Context, repoID, file, dest string, onProgress func(file string, downloaded, total int64)) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return errors.ModelError("cannot create file directory", err)
	}

	url := fmt.Sprintf("%s/%s/resolve/main/%s", m.baseURL, repoID, file)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.ModelError("cannot create download request", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return errors.ModelError("download failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.ModelError(fmt.Sprintf("download of %s failed with HTTP %d", file, resp.StatusCode), nil)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return errors.ModelError("cannot create temp file", err)
	}
	defer os.Remove(tmp.Name())

	total := resp.ContentLength
	var downloaded int64

	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			written, werr := tmp.Write(buf[:n])
			if werr != nil {
				tmp.Close()
				return errors.ModelError("cannot write checkpoint file", werr)
			}
			downloaded += int64(written)
			if onProgress != nil {
				onProgress(file, downloaded, total)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			tmp.Close()
			return errors.ModelError("download interrupted", err)
		}
	}

	if err := tmp.Close(); err != nil {
		return errors.ModelError("cannot close temp file", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return errors.ModelError("cannot move checkpoint file into place", err)
	}

	return nil
}
