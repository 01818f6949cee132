package main

import (
	"testing"

	"go.uber.org/fx"
)

// The graph must resolve with each type provided exactly once; a
// module re-providing config would fail validation here.
func TestAppGraphResolves(t *testing.T) {
	if err := fx.ValidateApp(appOptions()); err != nil {
		t.Fatalf("app graph does not resolve: %v", err)
	}
}
