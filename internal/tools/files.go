package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/soyeahso/dealflow/internal/domain"
	"github.com/soyeahso/dealflow/internal/plugin"
	"github.com/soyeahso/dealflow/internal/tool"
	"github.com/soyeahso/dealflow/internal/version"
)

// FilesPlugin reads documents from data-room directories. Every access goes
// through os.Root so paths cannot escape the configured roots.
type FilesPlugin struct {
	dirs     []string
	maxBytes int64
	roots    []*os.Root
}

// NewFilesPlugin creates the files plugin over the given root directories.
func NewFilesPlugin(dirs []string, maxBytes int64) *FilesPlugin {
	return &FilesPlugin{dirs: dirs, maxBytes: maxBytes}
}

func (p *FilesPlugin) ID() string      { return "files" }
func (p *FilesPlugin) Name() string    { return "Data Room Files" }
func (p *FilesPlugin) Version() string { return version.Version }

func (p *FilesPlugin) Init(_ context.Context, api plugin.API) error {
	for _, dir := range p.dirs {
		r, err := os.OpenRoot(dir)
		if err != nil {
			api.Log.Warn().Err(err).Str("dir", dir).Msg("data room root unavailable")
			continue
		}
		p.roots = append(p.roots, r)
	}

	for _, t := range []tool.Tool{
		tool.Func{
			Def: domain.ToolDefinition{
				Name:        "list_files",
				Description: "List documents in the data room, optionally inside a sub-folder.",
				ParameterSchema: tool.ObjectSchema(map[string]any{
					"path": tool.StringProp("Folder relative to the data room (default: top level)."),
				}),
			},
			Fn: p.list,
		},
		tool.Func{
			Def: domain.ToolDefinition{
				Name:        "read_file",
				Description: "Read a text document from the data room, e.g. a memo or term sheet.",
				ParameterSchema: tool.ObjectSchema(map[string]any{
					"path": tool.StringProp("File path relative to the data room."),
				}, "path"),
			},
			Fn: p.read,
		},
	} {
		if err := api.Tools.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func (p *FilesPlugin) Close() error {
	var errs []error
	for _, r := range p.roots {
		errs = append(errs, r.Close())
	}
	p.roots = nil
	return errors.Join(errs...)
}

func cleanRel(path string) string {
	path = strings.TrimSpace(filepath.ToSlash(path))
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return "."
	}
	return filepath.Clean(path)
}

func (p *FilesPlugin) list(_ context.Context, args map[string]any) (domain.ToolResult, error) {
	if len(p.roots) == 0 {
		return domain.Failed("no data room directory is configured"), nil
	}
	dir := cleanRel(stringArg(args, "path", "folder", "dir"))

	var names []string
	found := false
	for _, r := range p.roots {
		f, err := r.Open(dir)
		if err != nil {
			continue
		}
		entries, err := f.ReadDir(-1)
		f.Close()
		if err != nil {
			continue
		}
		found = true
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), ".") {
				continue
			}
			name := e.Name()
			if e.IsDir() {
				name += "/"
			}
			names = append(names, name)
		}
	}
	if !found {
		return domain.Failed(fmt.Sprintf("folder %q not found in the data room", dir)), nil
	}
	sort.Strings(names)

	items := make([]any, len(names))
	for i, n := range names {
		items[i] = n
	}
	res := domain.Succeeded(fmt.Sprintf("%d entries in %s", len(names), dir), map[string]any{"path": dir, "entries": items})
	if len(names) == 0 {
		res.Display = fmt.Sprintf("The data room folder %s is empty.", dir)
	} else {
		res.Display = fmt.Sprintf("Data room %s:\n  %s", dir, strings.Join(names, "\n  "))
	}
	return res, nil
}

func (p *FilesPlugin) read(_ context.Context, args map[string]any) (domain.ToolResult, error) {
	if len(p.roots) == 0 {
		return domain.Failed("no data room directory is configured"), nil
	}
	path := cleanRel(stringArg(args, "path", "file", "name", "entities"))
	if path == "." {
		return domain.Failed("read_file needs a file path"), nil
	}

	for _, r := range p.roots {
		f, err := r.Open(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return domain.Failed(fmt.Sprintf("cannot open %s: %v", path, err)), nil
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return domain.ToolResult{}, err
		}
		if info.IsDir() {
			return domain.Failed(fmt.Sprintf("%s is a folder; use list_files", path)), nil
		}

		data, err := io.ReadAll(io.LimitReader(f, p.maxBytes+1))
		if err != nil {
			return domain.ToolResult{}, fmt.Errorf("reading %s: %w", path, err)
		}
		truncated := int64(len(data)) > p.maxBytes
		if truncated {
			data = data[:p.maxBytes]
		}
		return domain.Succeeded(fmt.Sprintf("read %s (%d bytes)", path, len(data)), map[string]any{
			"path":      path,
			"size":      info.Size(),
			"truncated": truncated,
			"content":   string(data),
		}), nil
	}
	return domain.Failed(fmt.Sprintf("file %q not found in the data room", path)), nil
}
