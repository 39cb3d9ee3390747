// Package dispatch runs external hook scripts when the policy engine
// reports a noteworthy change, such as a new system hostname.
package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/datawire/dlib/dexec"
	"github.com/datawire/dlib/dlog"

	"github.com/vireonet/vireo/pkg/core"
)

// DefaultScriptDir is where hook scripts are looked up unless overridden.
const DefaultScriptDir = "/etc/vireo/dispatcher.d"

// Runner implements core.Dispatcher by executing every script in its
// directory with the action name as the first argument. Scripts run
// asynchronously; the engine never waits for them.
type Runner struct {
	dir string
}

func NewRunner(dir string) *Runner {
	if dir == "" {
		dir = DefaultScriptDir
	}
	return &Runner{dir: dir}
}

func (r *Runner) Call(ctx context.Context, action core.DispatchAction) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			dlog.Warnf(ctx, "cannot read dispatcher directory %s: %v", r.dir, err)
		}
		return
	}
	var scripts []string
	for _, en := range entries {
		if en.Type().IsRegular() || en.Type()&os.ModeSymlink != 0 {
			scripts = append(scripts, filepath.Join(r.dir, en.Name()))
		}
	}
	sort.Strings(scripts)
	go func() {
		for _, script := range scripts {
			cmd := dexec.CommandContext(ctx, script, string(action))
			cmd.Env = append(os.Environ(), "VIREO_ACTION="+string(action))
			if err := cmd.Run(); err != nil {
				dlog.Warnf(ctx, "dispatcher script %s (%s): %v", script, action, err)
			}
		}
	}()
}
