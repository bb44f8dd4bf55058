package errs

import "errors"

// Error kinds shared by every component. Callers wrap them with
// fmt.Errorf("%w: ...") and test with errors.Is.
var (
	// ErrConfig: missing or invalid configuration. Fatal for shared config,
	// skips the account for per-account config.
	ErrConfig = errors.New("config error")

	// ErrExternal: a collaborator (site, notifier, git) failed.
	ErrExternal = errors.New("external error")

	// ErrCommand: malformed command, unknown verb or unknown target.
	ErrCommand = errors.New("command error")

	// ErrUpdate: update apply/rollback failed; the running release is unchanged.
	ErrUpdate = errors.New("update error")

	// ErrStorage: state could not be persisted or read.
	ErrStorage = errors.New("storage error")
)

// Kind returns the short name of the error kind err belongs to, or "internal".
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConfig):
		return "config"
	case errors.Is(err, ErrExternal):
		return "external"
	case errors.Is(err, ErrCommand):
		return "command"
	case errors.Is(err, ErrUpdate):
		return "update"
	case errors.Is(err, ErrStorage):
		return "storage"
	default:
		return "internal"
	}
}
