// Package recovery implements CrashRecoverer (spec.md 4.10): a
// process-local hint file guarding the UpdateStrategy's critical section.
// The atomic write here is grounded on node/store/manifest.go's
// write-temp-fsync-rename-fsync-dir commit pattern, generalized from a
// fixed Manifest struct to an arbitrary JSON-round-trippable hint.
package recovery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/graphsense/graphsense-lib-sub000/internal/engineerr"
)

// Recoverer guards a single critical section backed by one hint file.
type Recoverer struct {
	path string
}

// New returns a Recoverer whose hint file path is derived from the
// (raw-keyspace, transformed-keyspace) pair, per spec.md 4.10.
func New(stateDir, rawKeyspace, transformedKeyspace string) *Recoverer {
	name := fmt.Sprintf("recovery_%s_%s.json", rawKeyspace, transformedKeyspace)
	return &Recoverer{path: filepath.Join(stateDir, name)}
}

// IsInRecoveryMode reports whether the hint file exists.
func (r *Recoverer) IsInRecoveryMode() bool {
	_, err := os.Stat(r.path)
	return err == nil
}

// GetRecoveryHint reads the persisted hint.
func (r *Recoverer) GetRecoveryHint() (map[string]any, error) {
	b, err := os.ReadFile(r.path)
	if err != nil {
		return nil, engineerr.SinkError("recovery: read hint", err)
	}
	var hint map[string]any
	if err := json.Unmarshal(b, &hint); err != nil {
		return nil, engineerr.Wrap(engineerr.KindAssertionFailure, "recovery: malformed hint file", err)
	}
	return hint, nil
}

// LeaveRecoveryMode deletes the hint file.
func (r *Recoverer) LeaveRecoveryMode() error {
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return engineerr.SinkError("recovery: remove hint", err)
	}
	return nil
}

// Scope is returned by EnterCriticalSection. Callers must call Done(err)
// exactly once: on a non-nil err the hint is re-persisted (so a later
// process can inspect it) and the error propagates; on nil the hint is
// left in place for the caller to clear explicitly via LeaveRecoveryMode
// once the batch's checkpoint write has also succeeded (spec.md 4.10:
// "on success does nothing" — the hint's removal is a separate, later
// step owned by the caller, not this scope).
type Scope struct {
	r    *Recoverer
	hint map[string]any
}

// Done re-persists the hint if err is non-nil, then returns err unchanged.
func (s *Scope) Done(err error) error {
	if err != nil {
		if werr := writeHintAtomic(s.r.path, s.hint); werr != nil {
			return werr
		}
	}
	return err
}

// EnterCriticalSection persists hint and returns a guard. It is an error
// to call this while already in recovery mode (spec.md 4.10: "a process
// may only enter a critical section when not already in recovery mode").
func (r *Recoverer) EnterCriticalSection(hint map[string]any) (*Scope, error) {
	if r.IsInRecoveryMode() {
		return nil, engineerr.AssertionFailure("recovery: already in recovery mode")
	}
	if err := writeHintAtomic(r.path, hint); err != nil {
		return nil, err
	}
	return &Scope{r: r, hint: hint}, nil
}

// writeHintAtomic mirrors store.writeManifestAtomic: write temp, fsync
// temp, rename, fsync directory.
func writeHintAtomic(path string, hint map[string]any) error {
	b, err := json.MarshalIndent(hint, "", "  ")
	if err != nil {
		return engineerr.Wrap(engineerr.KindAssertionFailure, "recovery: marshal hint", err)
	}
	b = append(b, '\n')

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return engineerr.SinkError("recovery: open tmp hint", err)
	}
	_, werr := f.Write(b)
	serr := f.Sync()
	cerr := f.Close()
	if werr != nil {
		return engineerr.SinkError("recovery: write tmp hint", werr)
	}
	if serr != nil {
		return engineerr.SinkError("recovery: fsync tmp hint", serr)
	}
	if cerr != nil {
		return engineerr.SinkError("recovery: close tmp hint", cerr)
	}
	if err := os.Rename(tmp, path); err != nil {
		return engineerr.SinkError("recovery: rename hint", err)
	}

	dir := filepath.Dir(path)
	d, err := os.Open(dir)
	if err != nil {
		return engineerr.SinkError("recovery: open dir for fsync", err)
	}
	if err := d.Sync(); err != nil {
		_ = d.Close()
		return engineerr.SinkError("recovery: fsync dir", err)
	}
	if err := d.Close(); err != nil {
		return engineerr.SinkError("recovery: close dir", err)
	}
	return nil
}
