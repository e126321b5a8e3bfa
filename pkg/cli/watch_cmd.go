package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jlrickert/cli-toolkit/mylog"
	"github.com/spf13/cobra"
)

// NewWatchCmd returns the `watch` cobra command. It prints the hash of each
// file again whenever the file, or the schema, changes on disk.
func NewWatchCmd(deps *Deps) *cobra.Command {
	var (
		flags    hashFlags
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch FILE...",
		Short: "rehash value files whenever they change",
		Long: `Print the cross-check hash of each file, then keep watching the files and
the schema. A changed file is hashed again; a changed schema is reloaded and
every file is hashed again. Errors are reported and watching continues.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			lg := mylog.LoggerFromContext(ctx)
			out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

			ss, err := openSession(ctx, deps, deps.SchemaPath, flags, true)
			if err != nil {
				return err
			}

			last := make(map[string]uint64, len(args))
			rehash := func(path string) {
				res, err := ss.hashSource(nil, path)
				if err != nil {
					fmt.Fprintf(errOut, "xcheck: %s\n", renderUserError(err, deps))
					delete(last, path)
					return
				}
				if prev, ok := last[path]; ok && prev == res.Hash {
					return
				}
				last[path] = res.Hash
				fmt.Fprintf(out, "%016x  %s\n", res.Hash, res.Source)
			}
			for _, path := range args {
				rehash(path)
			}

			schemaAbs, err := filepath.Abs(deps.SchemaPath)
			if err != nil {
				return err
			}
			byAbs := make(map[string]string, len(args))
			watched := []string{schemaAbs}
			for _, path := range args {
				abs, err := filepath.Abs(path)
				if err != nil {
					return err
				}
				byAbs[abs] = path
				watched = append(watched, abs)
			}

			return watchPaths(ctx, watched, debounce, func(abs string) {
				if abs == schemaAbs {
					lg.Info("schema changed", "path", deps.SchemaPath)
					next, err := openSession(ctx, deps, deps.SchemaPath, flags, true)
					if err != nil {
						fmt.Fprintf(errOut, "xcheck: %s\n", renderUserError(err, deps))
						return
					}
					ss = next
					clear(last)
					for _, path := range args {
						rehash(path)
					}
					return
				}
				if path, ok := byAbs[abs]; ok {
					lg.Debug("file changed", "path", path)
					rehash(path)
				}
			})
		},
	}

	bindHashFlags(cmd, &flags)
	cmd.Flags().DurationVar(&debounce, "debounce", 150*time.Millisecond, "quiet period before a change is handled")
	return cmd
}

// watchPaths calls onChange with the absolute path of each watched file that
// was written, created or replaced, once the file has been quiet for
// debounce. Parent directories are watched so editors that save by rename
// are seen. It returns nil when ctx is done.
func watchPaths(ctx context.Context, paths []string, debounce time.Duration, onChange func(path string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch files: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	want := make(map[string]bool, len(paths))
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		want[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch directory %s: %w", dir, err)
		}
		dirs[dir] = true
	}

	lg := mylog.LoggerFromContext(ctx)
	pending := make(map[string]time.Time)
	tick := debounce / 2
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			for p, since := range pending {
				if now.Sub(since) >= debounce {
					delete(pending, p)
					onChange(p)
				}
			}
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name := filepath.Clean(event.Name)
			if !want[name] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				pending[name] = time.Now()
			}
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			lg.Warn("file watcher error", "error", watchErr)
		case <-ctx.Done():
			return nil
		}
	}
}
