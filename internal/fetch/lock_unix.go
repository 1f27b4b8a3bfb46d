//go:build unix

package fetch

import (
	"os"

	"github.com/rotisserie/eris"
	"golang.org/x/sys/unix"
)

// lockFile takes an exclusive lock on path, blocking while another process
// holds it. The lock file itself stays in place.
func lockFile(path string) (unlock func(), err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, eris.Wrap(err, "failed to create lock file")
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, eris.Wrap(err, "failed to acquire lock for download")
	}
	return func() {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
	}, nil
}
