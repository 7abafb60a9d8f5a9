package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"zkml-orchestrator/core/models"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrInvalidProjectName is returned for names that could escape the workspace root
	ErrInvalidProjectName = errors.New("invalid project name")
	// ErrWorkspace wraps directory creation and access failures
	ErrWorkspace = errors.New("workspace error")
)

var projectNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ArtifactKind names a file inside a project workspace
type ArtifactKind string

const (
	ArtifactInput           ArtifactKind = "input"
	ArtifactModel           ArtifactKind = "model"
	ArtifactOutput          ArtifactKind = "output"
	ArtifactVerificationKey ArtifactKind = "vk"
	ArtifactProof           ArtifactKind = "proof"
	ArtifactVerifierSource  ArtifactKind = "sol"
	ArtifactDeploymentCode  ArtifactKind = "code"
)

// Paths is the resolved layout of one project workspace
type Paths struct {
	Project  string
	Dir      string
	ModelExt string
}

// Manager owns the per-project directory layout under a single root
type Manager struct {
	root     string
	modelExt string
}

// NewManager creates a workspace manager rooted at root
func NewManager(root, modelExt string) *Manager {
	if modelExt == "" {
		modelExt = "onnx"
	}
	return &Manager{root: filepath.Clean(root), modelExt: strings.TrimPrefix(modelExt, ".")}
}

// Root returns the workspace root directory
func (m *Manager) Root() string {
	return m.root
}

// ModelExt returns the model file extension without the dot
func (m *Manager) ModelExt() string {
	return m.modelExt
}

// Init creates the workspace root if it does not exist
func (m *Manager) Init() error {
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return fmt.Errorf("%w: creating root %s: %v", ErrWorkspace, m.root, err)
	}
	return nil
}

// ValidateProjectName rejects empty names, separators and parent references
func ValidateProjectName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidProjectName, name)
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") || !projectNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidProjectName, name)
	}
	return nil
}

// Dir returns the canonical workspace directory for a project without touching disk
func (m *Manager) Dir(name string) string {
	return filepath.Join(m.root, name)
}

// EnsureProject creates the project directory if absent and returns its layout.
// An existing directory is left untouched.
func (m *Manager) EnsureProject(name string) (Paths, error) {
	if err := ValidateProjectName(name); err != nil {
		return Paths{}, err
	}

	dir := m.Dir(name)
	err := os.Mkdir(dir, 0o755)
	switch {
	case err == nil:
		log.WithField("project", name).Printf("Created workspace directory %s", dir)
	case errors.Is(err, os.ErrExist):
		info, statErr := os.Stat(dir)
		if statErr != nil {
			return Paths{}, fmt.Errorf("%w: %v", ErrWorkspace, statErr)
		}
		if !info.IsDir() {
			return Paths{}, fmt.Errorf("%w: %s exists and is not a directory", ErrWorkspace, dir)
		}
	default:
		return Paths{}, fmt.Errorf("%w: creating %s: %v", ErrWorkspace, dir, err)
	}

	return Paths{Project: name, Dir: dir, ModelExt: m.modelExt}, nil
}

// PathFor maps an artifact kind to its canonical path inside the workspace
func PathFor(ws Paths, kind ArtifactKind) string {
	var file string
	switch kind {
	case ArtifactInput:
		file = "input.json"
	case ArtifactModel:
		file = "network." + ws.ModelExt
	case ArtifactOutput:
		file = "output.json"
	case ArtifactVerificationKey:
		file = ws.Project + ".vk"
	case ArtifactProof:
		file = ws.Project + ".pf"
	case ArtifactVerifierSource:
		file = ws.Project + ".sol"
	case ArtifactDeploymentCode:
		file = ws.Project + ".code"
	default:
		return ""
	}
	return filepath.Join(ws.Dir, file)
}

// ConfigPath returns where the rendered config document for a job kind is stored
func ConfigPath(ws Paths, kind models.JobKind) string {
	return filepath.Join(ws.Dir, fmt.Sprintf("%s_%s.json", kind, ws.Project))
}

// JobPaths builds the path-set a job kind references in this workspace
func JobPaths(ws Paths, kind models.JobKind, paramsPath string) models.JobPaths {
	p := models.JobPaths{
		Data:  PathFor(ws, ArtifactInput),
		Model: PathFor(ws, ArtifactModel),
	}
	switch kind {
	case models.JobKindForward:
		p.Output = PathFor(ws, ArtifactOutput)
	case models.JobKindProve:
		p.VKPath = PathFor(ws, ArtifactVerificationKey)
		p.ProofPath = PathFor(ws, ArtifactProof)
		p.ParamsPath = paramsPath
	case models.JobKindGenerateVerifier:
		p.Data = ""
		p.VKPath = PathFor(ws, ArtifactVerificationKey)
		p.ParamsPath = paramsPath
		p.DeploymentCodePath = PathFor(ws, ArtifactDeploymentCode)
		p.SolCodePath = PathFor(ws, ArtifactVerifierSource)
	}
	return p
}

// Contains reports whether path resolves inside the project workspace
func Contains(ws Paths, path string) bool {
	rel, err := filepath.Rel(ws.Dir, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
