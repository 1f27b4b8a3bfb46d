// Command depbuild builds third-party dependencies from per-project recipes.
package main

import (
	"os"

	"github.com/goplus/depbuild/cmd/depbuild/internal"
)

func main() {
	os.Exit(internal.Execute())
}
