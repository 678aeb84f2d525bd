package main

import (
	"testing"

	"github.com/odyssey-erp/floorflow/internal/app"
	fftesting "github.com/odyssey-erp/floorflow/testing"
)

func TestMain(m *testing.M) {
	fftesting.TestMain(m)
}

func TestMainSkipsStartupInTestMode(t *testing.T) {
	cfg, err := app.LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.TestMode {
		t.Fatal("expected test mode to be active")
	}
	main()
}
