// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package quickjsengine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/buke/docrepl"
	quickjsengine "github.com/buke/docrepl/engines/quickjs-go"
)

const snippet = `
const styles = StyleSheet.create({ page: { padding: 30 }, title: { fontSize: 24 } });

render(
  <Document title="Hello">
    <Page size="A4" style={styles.page}>
      <Text style={styles.title}>Hello world</Text>
    </Page>
  </Document>
);
`

const moduleSnippet = `
import { Document, Page, View } from "@react-pdf/renderer";
import React from "react";

const Box = ({ color }) => <View style={{ height: 20, backgroundColor: color }} />;

render(
  <Document>
    <Page>
      <>
        <Box color="red" />
        <Box color="blue" />
      </>
    </Page>
  </Document>
);
`

// TestIntegration_QuickJSSession evaluates snippets end to end.
func TestIntegration_QuickJSSession(t *testing.T) {
	session, err := docrepl.NewSession(docrepl.WithJsEngine(quickjsengine.NewFactory()))
	require.NoError(t, err)
	defer session.Close()

	ctx := context.Background()
	require.NoError(t, session.Init(ctx, "3.0.0"))

	info, err := session.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, "3.0.0", info.Version)
	require.True(t, info.IsDebuggingSupported)

	result, err := session.Evaluate(ctx, docrepl.EvaluateRequest{Code: snippet})
	require.NoError(t, err)
	require.Contains(t, result.URL, "blob:")
	require.NotNil(t, result.Layout)
	require.Equal(t, "DOCUMENT", result.Layout.Type)
	require.Equal(t, "PAGE", result.Layout.Children[0].Type)
	require.Equal(t, "DOCUMENT__PAGE__1", result.Layout.Children[0].ID)

	result, err = session.Evaluate(ctx, docrepl.EvaluateRequest{
		Code:    moduleSnippet,
		Options: docrepl.EvaluateOptions{Modules: true},
	})
	require.NoError(t, err)
	require.Len(t, result.Layout.Children[0].Children, 2)
}

// TestIntegration_QuickJSTimeout checks that a snippet that never renders
// fails with a fatal timeout.
func TestIntegration_QuickJSTimeout(t *testing.T) {
	var reported error
	session, err := docrepl.NewSession(
		docrepl.WithJsEngine(quickjsengine.NewFactory()),
		docrepl.WithReporter(docrepl.FatalReporterFunc(func(err error, code string) {
			reported = err
		})),
	)
	require.NoError(t, err)
	defer session.Close()

	ctx := context.Background()
	require.NoError(t, session.Init(ctx, ""))

	start := time.Now()
	_, err = session.Evaluate(ctx, docrepl.EvaluateRequest{Code: "while (true) {}", Timeout: 100})
	require.ErrorIs(t, err, docrepl.ErrTimeout)
	require.Less(t, time.Since(start), 5*time.Second)
	require.ErrorIs(t, reported, docrepl.ErrTimeout)

	// The worker keeps serving after a timeout.
	_, err = session.Evaluate(ctx, docrepl.EvaluateRequest{Code: snippet})
	require.NoError(t, err)
}

// TestIntegration_QuickJSErrors checks error classification.
func TestIntegration_QuickJSErrors(t *testing.T) {
	session, err := docrepl.NewSession(docrepl.WithJsEngine(quickjsengine.NewFactory()))
	require.NoError(t, err)
	defer session.Close()

	ctx := context.Background()
	_, err = session.Evaluate(ctx, docrepl.EvaluateRequest{Code: snippet})
	require.ErrorIs(t, err, docrepl.ErrNoRuntimeLoaded)

	require.NoError(t, session.Init(ctx, "2.0.21"))

	var evalErr *docrepl.EvaluationError
	_, err = session.Evaluate(ctx, docrepl.EvaluateRequest{Code: "throw new RangeError('nope')"})
	require.ErrorAs(t, err, &evalErr)
	require.Contains(t, evalErr.Message, "nope")

	_, err = session.Evaluate(ctx, docrepl.EvaluateRequest{Code: "render(<View />)"})
	require.ErrorAs(t, err, &evalErr)
	require.Contains(t, evalErr.Message, "Document")

	_, err = session.Evaluate(ctx, docrepl.EvaluateRequest{Code: "render(<Document><Page></Document>)"})
	require.ErrorAs(t, err, &evalErr)

	_, err = session.Evaluate(ctx, docrepl.EvaluateRequest{Code: "setTimeout(() => render(<Document />), 0)"})
	require.ErrorAs(t, err, &evalErr)

	// Layout trees are only produced by releases that support debugging.
	result, err := session.Evaluate(ctx, docrepl.EvaluateRequest{Code: snippet})
	require.NoError(t, err)
	require.Nil(t, result.Layout)
}
