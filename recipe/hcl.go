package recipe

import (
	"runtime"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/rotisserie/eris"
	"github.com/zclconf/go-cty/cty"
)

// hclFile is the top-level structure of a recipe.hcl file:
//
//	version   = "1.3.1"
//	downloads = ["https://zlib.net/zlib-1.3.1.tar.gz"]
//	commands  = ["./configure --prefix={buildDir}", "make -j {jobs} install"]
//
//	platform "windows" {
//	  commands = ["cmake -B build -DCMAKE_INSTALL_PREFIX={buildDir}"]
//	}
type hclFile struct {
	Platforms []*hclPlatform `hcl:"platform,block"`
	Recipe    Recipe         `hcl:",remain"`
}

type hclPlatform struct {
	Name     string   `hcl:"name,label"`
	Override Override `hcl:",remain"`
}

// evalContext exposes the target platform and the host os/arch to HCL
// expressions.
func evalContext(p Platform) *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"platform": cty.StringVal(string(p)),
			"os":       cty.StringVal(runtime.GOOS),
			"arch":     cty.StringVal(runtime.GOARCH),
		},
	}
}

func decodeHCL(name string, data []byte, p Platform) (*Recipe, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, name)
	if diags.HasErrors() {
		return nil, eris.Wrapf(diags, "failed to parse %s", name)
	}

	var parsed hclFile
	diags = gohcl.DecodeBody(file.Body, evalContext(p), &parsed)
	if diags.HasErrors() {
		return nil, eris.Wrapf(diags, "failed to decode %s", name)
	}

	r := parsed.Recipe
	for _, block := range parsed.Platforms {
		if r.Platforms == nil {
			r.Platforms = make(map[Platform]*Override)
		}
		key := Platform(block.Name)
		if _, dup := r.Platforms[key]; dup {
			return nil, eris.Errorf("%s: duplicate platform block %q", name, block.Name)
		}
		o := block.Override
		r.Platforms[key] = &o
	}
	return &r, nil
}
