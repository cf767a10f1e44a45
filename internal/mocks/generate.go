// Package mocks provides generated mock implementations for testing.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks
// for the auth ports. The mocks are generated with go:generate directives
// and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
package mocks

// Generate mock for UserStore from internal/ports. Creates MockUserStore
// with FindByUsername, FindOrCreate, and UpdateProfile.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=user_store_mock.go github.com/campusid/shibgate/internal/ports UserStore
