// ggchat CI
//
// Package main provides reproducible builds and tests locally and in GitHub actions.
package main

import (
	"context"

	"dagger/ggchat/internal/dagger"
)

// GGChat is the main module for the ggchat CI pipeline
type GGChat struct {
	// Project source directory
	//
	// +private
	Source *dagger.Directory
}

// New creates a new GGChat CI module instance
func New(
	// Project source directory.
	//
	// +defaultPath="/"
	// +ignore=[".git", "build", "tmp", "_examples"]
	source *dagger.Directory,
) *GGChat {
	return &GGChat{
		Source: source,
	}
}

// goContainer returns a Go container with module and build caches and the
// project source mounted. ggchat is pure Go, so CGO stays off.
func (g *GGChat) goContainer() *dagger.Container {
	return dag.Container().
		From("golang:1.25-alpine").
		WithEnvVariable("CGO_ENABLED", "0").
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build")).
		WithWorkdir("/src").
		WithDirectory("/src", g.Source)
}

// Test runs the ggchat unit tests via "go test"
//
// +check
func (g *GGChat) Test(ctx context.Context) (string, error) {
	return g.goContainer().
		WithExec([]string{"go", "test", "./..."}).
		Stdout(ctx)
}

// Vet runs "go vet" over every package
//
// +check
func (g *GGChat) Vet(ctx context.Context) (string, error) {
	return g.goContainer().
		WithExec([]string{"go", "vet", "./..."}).
		Stdout(ctx)
}
