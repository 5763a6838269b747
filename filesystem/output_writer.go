package filesystem

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"

	"github.com/min-tian-thomas/deployment/deploy"
	"github.com/min-tian-thomas/deployment/util"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// OutputWriter materializes a fully validated run. The whole tree is written
// under a staging directory first and promoted per datacenter afterwards, so
// a failed run never disturbs previously generated output.
type OutputWriter struct {
	outputDir string
	logger    zerolog.Logger
}

func NewOutputWriter(outputDir string, logger zerolog.Logger) *OutputWriter {
	return &OutputWriter{outputDir: outputDir, logger: logger}
}

func (w *OutputWriter) WriteAll(result *deploy.RunResult) error {
	if len(result.Files) == 0 && len(result.Links) == 0 {
		w.logger.Info().Msg("nothing to write")
		return nil
	}
	if err := os.MkdirAll(w.outputDir, 0755); err != nil {
		return util.NewError(err, "cannot create output directory")
	}

	staging := filepath.Join(w.outputDir, ".staging-"+uuid.New().String())
	defer os.RemoveAll(staging)

	datacenters := map[string]bool{}
	for _, file := range result.Files {
		datacenters[file.Datacenter] = true
		dir := filepath.Join(staging, file.Datacenter, file.Host, file.App)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return deploy.NewErrorf(deploy.IOError, fileScope(file), "", nil,
				"cannot create staging directory: %s", err)
		}
		filename := filepath.Join(dir, file.Template)
		if err := ioutil.WriteFile(filename, file.Content, 0644); err != nil {
			return deploy.NewErrorf(deploy.IOError, fileScope(file), "", nil,
				"cannot write rendered config: %s", err)
		}
		w.logger.Debug().
			Str("dc", file.Datacenter).
			Str("host", file.Host).
			Str("app", file.App).
			Str("template", file.Template).
			Str("size", humanize.Bytes(uint64(len(file.Content)))).
			Msg("rendered config staged")
	}

	for _, link := range result.Links {
		datacenters[link.Datacenter] = true
		if err := w.writeLink(staging, link); err != nil {
			return err
		}
	}

	names := make([]string, 0, len(datacenters))
	for dc := range datacenters {
		names = append(names, dc)
	}
	sort.Strings(names)
	for _, dc := range names {
		final := filepath.Join(w.outputDir, dc)
		if err := os.RemoveAll(final); err != nil {
			return util.NewError(err, "cannot replace output tree %s", final)
		}
		if err := os.Rename(filepath.Join(staging, dc), final); err != nil {
			return util.NewError(err, "cannot promote output tree %s", final)
		}
	}
	w.logger.Info().
		Int("configs", len(result.Files)).
		Int("symlinks", len(result.Links)).
		Msg("output tree promoted")
	return nil
}

// writeLink creates the application symlink inside the staging tree. The
// relative target is computed against the final location, not the staging
// one, so the link stays valid after promotion.
func (w *OutputWriter) writeLink(staging string, link deploy.BinaryLink) error {
	scope := deploy.Scope{Datacenter: link.Datacenter, Host: link.Host, App: link.App}
	stagingDir := filepath.Join(staging, link.Datacenter, link.Host, link.App)
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return deploy.NewErrorf(deploy.IOError, scope, "", nil,
			"cannot create staging directory: %s", err)
	}

	finalDir, err := filepath.Abs(filepath.Join(w.outputDir, link.Datacenter, link.Host, link.App))
	if err != nil {
		return deploy.NewErrorf(deploy.IOError, scope, "", nil,
			"cannot resolve output directory: %s", err)
	}
	target, err := filepath.Abs(link.Target.Path)
	if err != nil {
		return deploy.NewErrorf(deploy.IOError, scope, "", link.Target.Path,
			"cannot resolve binary path: %s", err)
	}
	relTarget, err := filepath.Rel(finalDir, target)
	if err != nil {
		return deploy.NewErrorf(deploy.IOError, scope, "", target,
			"cannot compute relative binary path: %s", err)
	}

	linkPath := filepath.Join(stagingDir, link.App)
	if err := os.Symlink(relTarget, linkPath); err != nil {
		return deploy.NewErrorf(deploy.IOError, scope, "", relTarget,
			"cannot create binary symlink: %s", err)
	}
	w.logger.Debug().
		Str("app", link.App).
		Str("target", relTarget).
		Msg("binary symlink staged")
	return nil
}

func fileScope(file deploy.RenderedFile) deploy.Scope {
	return deploy.Scope{
		Datacenter: file.Datacenter,
		Host:       file.Host,
		App:        file.App,
		Template:   file.Template,
	}
}
