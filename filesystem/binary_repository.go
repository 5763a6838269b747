package filesystem

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"

	"github.com/min-tian-thomas/deployment/deploy"
	"github.com/min-tian-thomas/deployment/util"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	yaml "gopkg.in/yaml.v2"
)

type binaryDoc struct {
	Tags             map[string]string `yaml:"tags"`
	RequiredVersions []string          `yaml:"required_versions"`
}

// BinaryRepository resolves binary versions against
// <root>/deployments/required_binaries.yaml and reconciles the binary
// directory tree under binariesDir with the required_versions sets.
type BinaryRepository struct {
	root        string
	binariesDir string
	logger      zerolog.Logger
}

func NewBinaryRepository(root, binariesDir string, logger zerolog.Logger) *BinaryRepository {
	return &BinaryRepository{root: root, binariesDir: binariesDir, logger: logger}
}

func (repo *BinaryRepository) load() (map[string]binaryDoc, error) {
	filename := filepath.Join(repo.root, "deployments", "required_binaries.yaml")
	content, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, util.NewError(err, "cannot read binary requirements file %s", filename)
	}
	docs := map[string]binaryDoc{}
	if err := yaml.Unmarshal(content, &docs); err != nil {
		return nil, util.NewError(err, "cannot parse binary requirements file %s", filename)
	}
	return docs, nil
}

// Resolve maps a tag through the binary's tag table, falling back to treating
// the argument as an explicit version, and enforces required_versions
// membership when the set is non-empty.
func (repo *BinaryRepository) Resolve(binary, tagOrVersion string) (deploy.BinaryTarget, error) {
	docs, err := repo.load()
	if err != nil {
		return deploy.BinaryTarget{}, err
	}
	doc, ok := docs[binary]
	if !ok {
		return deploy.BinaryTarget{}, deploy.ErrBinaryNotFound
	}

	version := tagOrVersion
	if mapped, ok := doc.Tags[tagOrVersion]; ok {
		version = mapped
	}

	if len(doc.RequiredVersions) > 0 && !containsString(doc.RequiredVersions, version) {
		return deploy.BinaryTarget{}, fmt.Errorf("version '%s' (from tag '%s'): %w", version, tagOrVersion, deploy.ErrVersionNotRequired)
	}

	return deploy.BinaryTarget{
		Binary:  binary,
		Version: version,
		Path:    filepath.Join(repo.binariesDir, binary, version, binary),
	}, nil
}

// Reconcile makes the on-disk binary tree match required_versions: missing
// versions get a directory with a mock executable, versions no longer
// required are pruned.
func (repo *BinaryRepository) Reconcile() error {
	docs, err := repo.load()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(repo.binariesDir, 0755); err != nil {
		return util.NewError(err, "cannot create binaries directory")
	}

	names := make([]string, 0, len(docs))
	for name := range docs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		required := map[string]bool{}
		for _, version := range docs[name].RequiredVersions {
			required[version] = true
		}
		if len(required) == 0 {
			continue
		}

		binRoot := filepath.Join(repo.binariesDir, name)
		versions := make([]string, 0, len(required))
		for version := range required {
			versions = append(versions, version)
		}
		sort.Strings(versions)

		for _, version := range versions {
			path, err := repo.ensureBinary(name, version)
			if err != nil {
				return err
			}
			size, err := util.GetFileSize(path)
			if err != nil {
				return util.NewError(err, "cannot stat binary %s", path)
			}
			repo.logger.Info().
				Str("binary", name).
				Str("version", version).
				Str("size", humanize.IBytes(size)).
				Msg("binary version present")
		}

		children, err := ioutil.ReadDir(binRoot)
		if err != nil {
			return util.NewError(err, "cannot list binary directory %s", binRoot)
		}
		for _, child := range children {
			if !child.IsDir() || required[child.Name()] {
				continue
			}
			obsolete := filepath.Join(binRoot, child.Name())
			if err := os.RemoveAll(obsolete); err != nil {
				return util.NewError(err, "cannot remove obsolete version %s", obsolete)
			}
			repo.logger.Warn().
				Str("binary", name).
				Str("version", child.Name()).
				Msg("obsolete binary version removed")
		}
	}
	return nil
}

func (repo *BinaryRepository) ensureBinary(name, version string) (string, error) {
	dir := filepath.Join(repo.binariesDir, name, version)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", util.NewError(err, "cannot create binary directory %s", dir)
	}
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	mock := fmt.Sprintf("#!/usr/bin/env bash\necho 'mock %s %s' \"$@\"\n", name, version)
	if err := ioutil.WriteFile(path, []byte(mock), 0755); err != nil {
		return "", util.NewError(err, "cannot write mock binary %s", path)
	}
	return path, nil
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
