// Package gateway provides the public API for embedding the OpenAPI gateway.
// This is the stable API for external consumers.
package gateway

import (
	"github.com/tjfontaine/openapi-gateway/internal/config"
	"github.com/tjfontaine/openapi-gateway/internal/controller"
	"github.com/tjfontaine/openapi-gateway/internal/domain"
	"github.com/tjfontaine/openapi-gateway/internal/runtime"
)

// Gateway serves mounted API documents.
// See internal/runtime.Gateway for full documentation.
type Gateway = runtime.Gateway

// Option is a functional option for configuring a Gateway.
type Option = runtime.Option

// Config is the gateway configuration.
type Config = config.Config

// Controller types
type (
	Registry = controller.Registry
	Func     = controller.Func
	Params   = controller.Params
	Response = controller.Response
)

// Error is the structured error controllers return to choose the response
// status and body.
type Error = domain.Error

// New creates a new Gateway with the given options.
// Example:
//
//	gw, err := gateway.New(
//	    gateway.WithControllers(map[string]gateway.Func{"getPet": getPet}),
//	)
//	err = gw.Mount(ctx, "petstore.yaml")
//	err = gw.Start(ctx)
var New = runtime.New

// NewRegistry creates an empty controller registry.
var NewRegistry = controller.NewRegistry

// ErrNothingMounted is returned when no document could be mounted.
var ErrNothingMounted = runtime.ErrNothingMounted

// Configuration options
var (
	WithConfig      = runtime.WithConfig
	WithRegistry    = runtime.WithRegistry
	WithControllers = runtime.WithControllers
	WithLogger      = runtime.WithLogger
	WithVersion     = runtime.WithVersion
	WithMetrics     = runtime.WithMetrics

	// LoadConfig reads configuration from gateway.yaml and API_GW_ variables.
	LoadConfig = config.Load
	// DefaultConfig returns the built-in configuration.
	DefaultConfig = config.Default
)

// Error constructors for controllers
var (
	ErrBadRequest      = domain.ErrBadRequest
	ErrValidation      = domain.ErrValidation
	ErrRouteNotFound   = domain.ErrRouteNotFound
	ErrPayloadTooLarge = domain.ErrPayloadTooLarge
	ErrServer          = domain.ErrServer
	NewError           = domain.NewError
)
