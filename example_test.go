// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package docrepl_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/buke/docrepl"
	"github.com/buke/docrepl/document"
	gojaengine "github.com/buke/docrepl/engines/goja"
)

// Example demonstrates evaluating a snippet and reading back the document.
func Example() {
	session, err := docrepl.NewSession(docrepl.WithJsEngine(gojaengine.NewFactory()))
	if err != nil {
		fmt.Printf("Error creating session: %v\n", err)
		return
	}
	defer session.Close()

	ctx := context.Background()
	if err := session.Init(ctx, "3.0.0"); err != nil {
		fmt.Printf("Error loading runtime: %v\n", err)
		return
	}

	result, err := session.Evaluate(ctx, docrepl.EvaluateRequest{
		Code: `render(
  <Document>
    <Page size="A4"><Text>Hello</Text></Page>
    <Page size="LETTER" orientation="landscape" />
  </Document>
)`,
	})
	if err != nil {
		fmt.Printf("Error evaluating: %v\n", err)
		return
	}

	data, err := session.Store().Fetch(ctx, result.URL)
	if err != nil {
		fmt.Printf("Error fetching artifact: %v\n", err)
		return
	}
	doc, err := document.Decode(data)
	if err != nil {
		fmt.Printf("Error decoding artifact: %v\n", err)
		return
	}
	for i, page := range doc.Pages {
		fmt.Printf("page %d: %.2f x %.2f\n", i+1, page.Width, page.Height)
	}
	for _, page := range result.Layout.Children {
		fmt.Println(page.ID)
	}

	// Output:
	// page 1: 595.28 x 841.89
	// page 2: 792.00 x 612.00
	// DOCUMENT__PAGE__1
	// DOCUMENT__PAGE__2
}

// Example_timeout demonstrates that a snippet which never renders fails
// with a fatal timeout.
func Example_timeout() {
	session, err := docrepl.NewSession(docrepl.WithJsEngine(gojaengine.NewFactory()))
	if err != nil {
		fmt.Printf("Error creating session: %v\n", err)
		return
	}
	defer session.Close()

	ctx := context.Background()
	if err := session.Init(ctx, ""); err != nil {
		fmt.Printf("Error loading runtime: %v\n", err)
		return
	}

	_, err = session.Evaluate(ctx, docrepl.EvaluateRequest{
		Code:    "new Promise(() => {})",
		Timeout: 50,
	})
	fmt.Println(err)
	fmt.Println(errors.Is(err, docrepl.ErrTimeout), docrepl.Fatal(err))

	// Output:
	// evaluation did not finish within 50ms
	// true true
}
