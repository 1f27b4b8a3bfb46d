package fetch

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"

	"github.com/goplus/depbuild/recipe"
	"github.com/rotisserie/eris"
	"lukechampine.com/blake3"
)

// ChecksumError reports an archive whose digest differs from the recipe.
type ChecksumError struct {
	File string
	Algo string
	Want string
	Got  string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: %s:%s, want %s:%s", e.File, e.Algo, e.Got, e.Algo, e.Want)
}

func newHash(algo string) (hash.Hash, error) {
	switch algo {
	case "sha256":
		return sha256.New(), nil
	case "blake3":
		return blake3.New(32, nil), nil
	}
	return nil, eris.Errorf("unsupported checksum algorithm %q", algo)
}

// Sum returns the hex digest of the file at path.
func Sum(path, algo string) (string, error) {
	h, err := newHash(algo)
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if info, err := f.Stat(); err == nil && info.IsDir() {
		return "", eris.Errorf("cannot checksum directory %s", path)
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", eris.Wrapf(err, "failed to read %s", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify checks the file at path against an "algorithm:hexdigest"
// checksum and returns a *ChecksumError on mismatch.
func Verify(path, checksum string) error {
	algo, want, err := recipe.ParseChecksum(checksum)
	if err != nil {
		return err
	}
	got, err := Sum(path, algo)
	if err != nil {
		return err
	}
	if got != want {
		return &ChecksumError{File: filepath.Base(path), Algo: algo, Want: want, Got: got}
	}
	return nil
}
