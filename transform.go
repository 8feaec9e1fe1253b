// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package docrepl

import (
	_ "embed"
	"encoding/json"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

//go:embed compartment.js
var compartmentJS string

// transform compiles JSX to createElement calls. With modules, import and
// export statements become CommonJS.
func transform(code string, modules bool) (string, error) {
	opts := api.TransformOptions{
		Loader:      api.LoaderJSX,
		JSXFactory:  "createElement",
		JSXFragment: "Fragment",
		Target:      api.ES2017,
		Sourcefile:  "snippet.jsx",
	}
	if modules {
		opts.Format = api.FormatCommonJS
	}

	result := api.Transform(code, opts)
	if len(result.Errors) > 0 {
		formatted := api.FormatMessages(result.Errors, api.FormatMessagesOptions{
			Kind: api.ErrorMessage,
		})
		return "", &EvaluationError{
			Message: "SyntaxError: " + result.Errors[0].Text,
			Stack:   strings.TrimSpace(strings.Join(formatted, "\n")),
		}
	}
	return string(result.Code), nil
}

// compartmentScript wraps a compiled snippet so that evaluating it yields a
// promise of the serialized element tree.
func compartmentScript(prelude, compiled string, opts EvaluateOptions) (*JsScript, error) {
	source, err := json.Marshal(compiled)
	if err != nil {
		return nil, err
	}
	options, err := json.Marshal(opts)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("(")
	sb.WriteString(strings.TrimSpace(compartmentJS))
	sb.WriteString(")(function (Fragment) {\n")
	sb.WriteString(prelude)
	sb.WriteString("\n}, ")
	sb.Write(source)
	sb.WriteString(", ")
	sb.Write(options)
	sb.WriteString(")")
	return &JsScript{Content: sb.String(), FileName: "snippet.js"}, nil
}
